// Package user is the session slice: who is signed in, whether they are
// an admin, and the outcome of the last auth or profile request.
package user

import (
	"fmt"

	"blogclient/internal/models"
	"blogclient/internal/state"
)

// Slice names this container in observer events.
const Slice = "user"

type ActionType string

const (
	LoginUser         ActionType = "user/loginUser"
	RegisterUser      ActionType = "user/registerUser"
	LogoutUser        ActionType = "user/logoutUser"
	FetchUser         ActionType = "user/fetchUser"
	UpdateUserProfile ActionType = "user/updateUserProfile"
	ClearState        ActionType = "user/clearState"
	ClearUserState    ActionType = "user/clearUserState"
)

var defaultMessages = map[ActionType]string{
	LoginUser:         "Login failed.",
	RegisterUser:      "Registration failed.",
	LogoutUser:        "Logout failed.",
	FetchUser:         "Could not fetch user information.",
	UpdateUserProfile: "Profile could not be updated.",
}

func DefaultMessage(t ActionType) string {
	if m, ok := defaultMessages[t]; ok {
		return m
	}
	return "Request failed."
}

var pendingNotes = map[ActionType]string{
	LoginUser:         "login started",
	RegisterUser:      "registration started",
	LogoutUser:        "logout started",
	FetchUser:         "fetching user",
	UpdateUserProfile: "profile update started",
}

// State is a snapshot of the slice.
type State struct {
	UserInfo   *models.User `json:"userInfo"`
	IsLoggedIn bool         `json:"isLoggedIn"`
	IsAdmin    bool         `json:"isAdmin"`
	state.Flags
}

func Initial() State { return State{} }

// Clone returns a copy that shares no pointers with s.
func (s State) Clone() State {
	out := s
	if s.UserInfo != nil {
		u := *s.UserInfo
		out.UserInfo = &u
	}
	return out
}

// Result is the payload of login, register and profile calls.
type Result struct {
	Success bool
	User    *models.User
}

// Session is the payload of a current-user lookup.
type Session struct {
	Valid bool
	User  *models.User
}

type Action struct {
	Type    ActionType
	Phase   state.Phase
	Result  *Result
	Session *Session
	Failure state.Failure
}

// Reduce applies a to s and returns the next state with a note for
// observers. It does not modify s.
func Reduce(s State, a Action) (State, string) {
	next := s.Clone()

	switch a.Phase {
	case state.Pending:
		next.Flags.Begin()
		return next, pendingNotes[a.Type]
	case state.Rejected:
		next.Flags.Fail(a.Failure, DefaultMessage(a.Type))
		return next, "failed: " + next.ErrorMessage
	case state.Local:
		return reduceLocal(next, a)
	}

	next.Flags.Succeed()
	switch a.Type {
	case LoginUser, RegisterUser:
		if a.Result != nil && a.Result.Success && a.Result.User != nil {
			signIn(&next, a.Result.User)
			if a.Type == RegisterUser {
				return next, fmt.Sprintf("%s registered", a.Result.User.DisplayName())
			}
			return next, fmt.Sprintf("%s logged in", a.Result.User.DisplayName())
		}
		next.IsLoggedIn = false
		return next, "request succeeded but no user was returned"
	case LogoutUser:
		next.UserInfo = nil
		next.IsLoggedIn = false
		next.IsAdmin = false
		return next, "user logged out"
	case FetchUser:
		if a.Session != nil && a.Session.Valid && a.Session.User != nil {
			signIn(&next, a.Session.User)
			return next, fmt.Sprintf("%s fetched", a.Session.User.DisplayName())
		}
		next.IsLoggedIn = false
		next.IsAdmin = false
		return next, "user fetched (no session)"
	case UpdateUserProfile:
		if a.Result != nil && a.Result.Success && a.Result.User != nil {
			u := *a.Result.User
			next.UserInfo = &u
			return next, fmt.Sprintf("%s profile updated", u.DisplayName())
		}
		return next, "profile update succeeded but no data was returned"
	}
	return next, ""
}

func signIn(next *State, u *models.User) {
	cp := *u
	next.UserInfo = &cp
	next.IsAdmin = cp.Role == models.RoleAdmin
	next.IsLoggedIn = true
}

func reduceLocal(next State, a Action) (State, string) {
	switch a.Type {
	case ClearState:
		hadOutcome := next.IsSuccess || next.IsError
		next.Flags.Reset()
		if hadOutcome {
			return next, "clearing transient state (user kept)"
		}
		return next, ""
	case ClearUserState:
		next = Initial()
		return next, "clearing user state"
	}
	return next, ""
}
