package user

import (
	"context"
	"sync"

	"blogclient/internal/api"
	"blogclient/internal/models"
	"blogclient/internal/state"
)

// Store owns the current session. It follows the same concurrency rules
// as the post store: blocking operations, arrival-order application.
type Store struct {
	mu        sync.Mutex
	st        State
	dispatch  *Dispatcher
	seq       state.Sequencer
	observers state.Observers
}

func NewStore(b Backend, observers ...state.Observer) *Store {
	s := &Store{st: Initial(), dispatch: NewDispatcher(b)}
	for _, o := range observers {
		s.observers.Add(o)
	}
	return s
}

func (s *Store) Subscribe(o state.Observer) func() {
	return s.observers.Add(o)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.Clone()
}

func (s *Store) apply(a Action, seq uint64, requestID string) {
	s.mu.Lock()
	next, note := Reduce(s.st, a)
	s.st = next
	s.mu.Unlock()

	s.observers.Notify(state.Event{
		Slice:     Slice,
		Action:    string(a.Type),
		Phase:     a.Phase,
		Note:      note,
		Seq:       seq,
		RequestID: requestID,
	})
}

func (s *Store) run(ctx context.Context, t ActionType, call func(context.Context) (Action, string, error)) error {
	seq := s.seq.Next()
	s.apply(Action{Type: t, Phase: state.Pending}, seq, "")
	a, reqID, err := call(ctx)
	s.apply(a, seq, reqID)
	return err
}

func (s *Store) Login(ctx context.Context, email, password string) error {
	return s.run(ctx, LoginUser, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.Login(ctx, email, password)
	})
}

func (s *Store) Register(ctx context.Context, userName, email, password string) error {
	return s.run(ctx, RegisterUser, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.Register(ctx, userName, email, password)
	})
}

func (s *Store) Logout(ctx context.Context) error {
	return s.run(ctx, LogoutUser, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.Logout(ctx)
	})
}

// FetchCurrentUser restores the session from the backend's cookie.
func (s *Store) FetchCurrentUser(ctx context.Context) error {
	return s.run(ctx, FetchUser, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.FetchCurrentUser(ctx)
	})
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, in models.ProfileInput) error {
	return s.run(ctx, UpdateUserProfile, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.UpdateProfile(ctx, userID, in)
	})
}

// ClearState resets the transient flags only. The signed-in user
// survives, unlike ClearUserState.
func (s *Store) ClearState() {
	s.apply(Action{Type: ClearState, Phase: state.Local}, 0, "")
}

// ClearUserState wipes the whole session.
func (s *Store) ClearUserState() {
	s.apply(Action{Type: ClearUserState, Phase: state.Local}, 0, "")
}

func rejected(t ActionType, err error) Action {
	return Action{Type: t, Phase: state.Rejected, Failure: api.Normalize(err, DefaultMessage(t))}
}

func fulfilled(a Action) Action {
	a.Phase = state.Fulfilled
	return a
}
