package posts

import (
	"context"
	"sync"

	"blogclient/internal/api"
	"blogclient/internal/models"
	"blogclient/internal/state"
)

// Store owns one post list. Operations block until their request
// settles; callers may run several at once from different goroutines.
// Responses are applied in arrival order, so a slow older response can
// overwrite a newer one.
type Store struct {
	mu        sync.Mutex
	st        State
	dispatch  *Dispatcher
	seq       state.Sequencer
	observers state.Observers
}

// NewStore returns a store dispatching through b. Observers receive
// every transition.
func NewStore(b Backend, observers ...state.Observer) *Store {
	s := &Store{st: Initial(), dispatch: NewDispatcher(b)}
	for _, o := range observers {
		s.observers.Add(o)
	}
	return s
}

// Subscribe registers o and returns a function that removes it.
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

// List fetches one page and replaces the list with it.
func (s *Store) List(ctx context.Context, page, limit int) error {
	return s.run(ctx, FetchPosts, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.List(ctx, page, limit)
	})
}

// GetOne fetches a post and upserts it by id.
func (s *Store) GetOne(ctx context.Context, id string) error {
	return s.run(ctx, FetchPostByID, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.GetOne(ctx, id)
	})
}

// Vote casts a vote and replaces the post in place when it is listed.
func (s *Store) Vote(ctx context.Context, id string, dir Direction) error {
	t := VotePost
	switch dir {
	case Up:
		t = UpvotePost
	case Down:
		t = DownvotePost
	}
	return s.run(ctx, t, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.Vote(ctx, id, dir)
	})
}

func (s *Store) Upvote(ctx context.Context, id string) error   { return s.Vote(ctx, id, Up) }
func (s *Store) Downvote(ctx context.Context, id string) error { return s.Vote(ctx, id, Down) }

// ByCategory replaces the list with the posts of one category.
// Pagination is left as it was.
func (s *Store) ByCategory(ctx context.Context, category string) error {
	return s.run(ctx, FetchPostsByCategory, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.ByCategory(ctx, category)
	})
}

// Create publishes a post and puts it at the front of the list.
func (s *Store) Create(ctx context.Context, in models.PostInput) error {
	return s.run(ctx, AddNewPost, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.Create(ctx, in)
	})
}

func (s *Store) Update(ctx context.Context, id string, in models.PostInput) error {
	return s.run(ctx, UpdatePost, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.Update(ctx, id, in)
	})
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.run(ctx, DeletePost, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.Delete(ctx, id)
	})
}

func (s *Store) IncrementView(ctx context.Context, id string) error {
	return s.run(ctx, IncrementPostView, func(ctx context.Context) (Action, string, error) {
		return s.dispatch.IncrementView(ctx, id)
	})
}

// ClearState resets the transient flags; the list is kept.
func (s *Store) ClearState() {
	s.apply(Action{Type: ClearState, Phase: state.Local}, 0, "")
}

// RemovePost drops a post from the list without calling the backend.
func (s *Store) RemovePost(id string) {
	s.apply(Action{Type: RemovePost, Phase: state.Local, ID: id}, 0, "")
}

func rejected(t ActionType, err error) Action {
	return Action{Type: t, Phase: state.Rejected, Failure: api.Normalize(err, DefaultMessage(t))}
}

func fulfilled(a Action) Action {
	a.Phase = state.Fulfilled
	return a
}
