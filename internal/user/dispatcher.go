package user

import (
	"context"
	"log"
	"net/url"

	"blogclient/internal/api"
	"blogclient/internal/models"
)

// Codes for failures raised by the current-user lookup itself.
const (
	CodeInvalidToken = "INVALID_TOKEN"
	CodeUserNotFound = "USER_NOT_FOUND"
)

// Backend is the subset of *api.Client the dispatcher needs.
type Backend interface {
	Get(ctx context.Context, path string, query url.Values) (api.Response, error)
	Post(ctx context.Context, path string, body any) (api.Response, error)
	Put(ctx context.Context, path string, body any) (api.Response, error)
}

type credentials struct {
	UserName string `json:"userName,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Dispatcher struct {
	backend Backend
}

func NewDispatcher(b Backend) *Dispatcher {
	return &Dispatcher{backend: b}
}

func (d *Dispatcher) Login(ctx context.Context, email, password string) (Action, string, error) {
	resp, err := d.backend.Post(ctx, "/auth/login", credentials{Email: email, Password: password})
	return d.auth(LoginUser, resp, err)
}

func (d *Dispatcher) Register(ctx context.Context, userName, email, password string) (Action, string, error) {
	resp, err := d.backend.Post(ctx, "/auth/register", credentials{UserName: userName, Email: email, Password: password})
	return d.auth(RegisterUser, resp, err)
}

func (d *Dispatcher) auth(t ActionType, resp api.Response, err error) (Action, string, error) {
	if err != nil {
		return rejected(t, err), resp.RequestID, err
	}
	res := &Result{Success: resp.Envelope.Success}
	var data models.AuthData
	if _, err := api.DecodeData(resp, &data); err != nil {
		log.Printf("user: %s: %v", t, err)
	}
	res.User = data.User
	return fulfilled(Action{Type: t, Result: res}), resp.RequestID, nil
}

func (d *Dispatcher) Logout(ctx context.Context) (Action, string, error) {
	resp, err := d.backend.Post(ctx, "/auth/logout", struct{}{})
	if err != nil {
		return rejected(LogoutUser, err), resp.RequestID, err
	}
	return fulfilled(Action{Type: LogoutUser}), resp.RequestID, nil
}

// FetchCurrentUser validates the session token, then tries to load the
// full profile of the user it names. A failed profile load falls back to
// the user embedded in the token response.
func (d *Dispatcher) FetchCurrentUser(ctx context.Context) (Action, string, error) {
	resp, err := d.backend.Post(ctx, "/auth/verify-token", struct{}{})
	if err != nil {
		return rejected(FetchUser, err), resp.RequestID, err
	}
	if !resp.Envelope.Success {
		err := api.E(CodeInvalidToken, "Token is invalid.")
		return rejected(FetchUser, err), resp.RequestID, err
	}

	var data models.TokenData
	if _, err := api.DecodeData(resp, &data); err != nil {
		log.Printf("user: %s: %v", FetchUser, err)
	}
	if data.Valid != nil && !*data.Valid {
		return fulfilled(Action{Type: FetchUser, Session: &Session{Valid: false}}), resp.RequestID, nil
	}
	if data.User == nil {
		err := api.E(CodeUserNotFound, "User information not found.")
		return rejected(FetchUser, err), resp.RequestID, err
	}

	sess := &Session{Valid: true, User: data.User}
	if data.User.ID != "" {
		if full, ok := d.profile(ctx, data.User.ID); ok {
			sess.User = full
		}
	}
	return fulfilled(Action{Type: FetchUser, Session: sess}), resp.RequestID, nil
}

func (d *Dispatcher) profile(ctx context.Context, id string) (*models.User, bool) {
	resp, err := d.backend.Get(ctx, "/user/"+url.PathEscape(id), nil)
	if err != nil {
		log.Printf("user: profile %s unavailable, using token data: %v", id, err)
		return nil, false
	}
	if !resp.Envelope.Success {
		return nil, false
	}
	var u models.User
	ok, err := api.DecodeData(resp, &u)
	if err != nil || !ok {
		return nil, false
	}
	return &u, true
}

func (d *Dispatcher) UpdateProfile(ctx context.Context, userID string, in models.ProfileInput) (Action, string, error) {
	resp, err := d.backend.Put(ctx, "/user/"+url.PathEscape(userID), in)
	if err != nil {
		return rejected(UpdateUserProfile, err), resp.RequestID, err
	}
	res := &Result{Success: resp.Envelope.Success}
	var u models.User
	ok, err := api.DecodeData(resp, &u)
	if err != nil {
		log.Printf("user: %s: %v", UpdateUserProfile, err)
	}
	if ok && err == nil {
		res.User = &u
	}
	return fulfilled(Action{Type: UpdateUserProfile, Result: res}), resp.RequestID, nil
}
