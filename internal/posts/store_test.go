package posts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"blogclient/internal/api"
	"blogclient/internal/models"
	"blogclient/internal/state"
)

func newTestStore(t *testing.T, h http.HandlerFunc, observers ...state.Observer) *Store {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := api.New(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return NewStore(c, observers...)
}

type recorder struct {
	mu     sync.Mutex
	events []state.Event
}

func (r *recorder) Observe(e state.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func TestStoreListExample(t *testing.T) {
	t.Parallel()

	var query string
	rec := &recorder{}
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		fmt.Fprint(w, `{"success":true,"data":{"posts":[{"_id":"a"}],"pagination":{"total":1,"count":1,"next":null},"count":1,"total":1}}`)
	}, rec)

	if err := s.List(context.Background(), 0, 0); err != nil {
		t.Fatalf("list: %v", err)
	}
	if query != "limit=20&page=1" {
		t.Fatalf("expected default paging, got %q", query)
	}

	st := s.Snapshot()
	if len(st.Posts) != 1 || st.Posts[0].ID != "a" || st.Count != 1 || st.Total != 1 {
		t.Fatalf("unexpected state %+v", st)
	}
	if !st.IsSuccess || st.IsLoading {
		t.Fatalf("unexpected flags %+v", st.Flags)
	}

	if len(rec.events) != 2 {
		t.Fatalf("expected pending and fulfilled events, got %d", len(rec.events))
	}
	if rec.events[0].Phase != state.Pending || rec.events[1].Phase != state.Fulfilled {
		t.Fatalf("unexpected phases %s, %s", rec.events[0].Phase, rec.events[1].Phase)
	}
	if rec.events[0].Seq != rec.events[1].Seq || rec.events[1].RequestID == "" {
		t.Fatalf("expected one sequence number and a request id, got %+v", rec.events)
	}
}

func TestStoreListKeepsPostsWhenScalarsAreOff(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"posts":[{"_id":"a","views":"4"},{"_id":"b","upvotes":{}},{"_id":"c"}],"pagination":{"next":"007","total":3,"count":3},"count":"2","total":"x"}}`)
	})
	if err := s.List(context.Background(), 1, 20); err != nil {
		t.Fatalf("list: %v", err)
	}
	st := s.Snapshot()
	if len(st.Posts) != 2 || st.Posts[0].ID != "a" || st.Posts[1].ID != "c" {
		t.Fatalf("expected the decodable posts kept, got %+v", st.Posts)
	}
	if st.Posts[0].Views != 4 {
		t.Fatalf("expected views from a numeric string, got %d", st.Posts[0].Views)
	}
	if st.Count != 2 || st.Total != 0 || st.Pagination.Next.String() != "007" {
		t.Fatalf("unexpected counts %+v", st)
	}
	if !st.IsSuccess {
		t.Fatalf("unexpected flags %+v", st.Flags)
	}
}

func TestStoreViewKeepsPostWithStringCounter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"post":{"_id":"a","title":"A","views":"7"}}}`)
	})
	s.st.Posts = []models.Post{{ID: "a", Title: "A"}}
	if err := s.IncrementView(context.Background(), "a"); err != nil {
		t.Fatalf("view: %v", err)
	}
	if got := s.Snapshot().Posts[0]; got.Views != 7 {
		t.Fatalf("expected 7 views, got %d", got.Views)
	}
}

func TestStoreCategorySkipsBadEntries(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[{"_id":"a"},{"_id":5},{"_id":"b"}]}`)
	})
	if err := s.ByCategory(context.Background(), "go"); err != nil {
		t.Fatalf("category: %v", err)
	}
	if st := s.Snapshot(); len(st.Posts) != 2 || st.Posts[1].ID != "b" {
		t.Fatalf("expected two posts, got %+v", st.Posts)
	}
}

func TestStoreGetOneFailure(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/posts/one-post/missing" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"code":"POST_NOT_FOUND","message":"Post not found"}`)
	})

	err := s.GetOne(context.Background(), "missing")
	if !errors.Is(err, api.E("POST_NOT_FOUND", "")) {
		t.Fatalf("expected POST_NOT_FOUND, got %v", err)
	}
	st := s.Snapshot()
	if !st.IsError || st.ErrorMessage != "Post not found" || st.ErrorCode != "POST_NOT_FOUND" {
		t.Fatalf("unexpected flags %+v", st.Flags)
	}
}

func TestStoreVoteInvalidDirectionSkipsBackend(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	err := s.Vote(context.Background(), "a", Direction("sideways"))
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no request, got %d", calls.Load())
	}
	st := s.Snapshot()
	if st.ErrorCode != CodeInvalidDirection || !st.IsError {
		t.Fatalf("unexpected flags %+v", st.Flags)
	}
}

func TestStoreVoteReplacesListedPost(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/posts":
			fmt.Fprint(w, `{"success":true,"data":{"posts":[{"_id":"a","upvotes":0},{"_id":"b"}],"count":2,"total":2}}`)
		case r.Method == http.MethodPut && r.URL.Path == "/posts/a/upvote":
			fmt.Fprint(w, `{"success":true,"data":{"_id":"a","upvotes":["u1"]}}`)
		case r.Method == http.MethodPut && r.URL.Path == "/posts/zz/downvote":
			fmt.Fprint(w, `{"success":true,"data":{"_id":"zz","downvotes":1}}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()
	if err := s.List(ctx, 1, 20); err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := s.Upvote(ctx, "a"); err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if err := s.Downvote(ctx, "zz"); err != nil {
		t.Fatalf("downvote: %v", err)
	}

	st := s.Snapshot()
	if len(st.Posts) != 2 || st.Posts[0].Upvotes != 1 {
		t.Fatalf("unexpected posts %+v", st.Posts)
	}
}

func TestStoreCreateUpdateDelete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/posts":
			fmt.Fprint(w, `{"success":true,"data":{"post":{"_id":"n1","title":"New"}}}`)
		case r.Method == http.MethodPut && r.URL.Path == "/posts/n1":
			fmt.Fprint(w, `{"success":true,"data":{"_id":"n1","title":"Edited"}}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/posts/n1":
			// the payload id is ignored; the requested id is removed
			fmt.Fprint(w, `{"success":true,"data":{"_id":"other"}}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	if err := s.Create(ctx, models.PostInput{Title: "New", Content: "body"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if st := s.Snapshot(); len(st.Posts) != 1 || st.Posts[0].Title != "New" {
		t.Fatalf("unexpected posts after create %+v", st.Posts)
	}

	if err := s.Update(ctx, "n1", models.PostInput{Title: "Edited"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if st := s.Snapshot(); st.Posts[0].Title != "Edited" {
		t.Fatalf("unexpected posts after update %+v", st.Posts)
	}

	if err := s.Delete(ctx, "n1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if st := s.Snapshot(); len(st.Posts) != 0 {
		t.Fatalf("expected empty list after delete, got %+v", st.Posts)
	}
}

func TestStoreConcurrentGetOne(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/posts/one-post/")
		fmt.Fprintf(w, `{"success":true,"data":{"_id":%q}}`, id)
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.GetOne(context.Background(), fmt.Sprintf("p%d", i)); err != nil {
				t.Errorf("get %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	st := s.Snapshot()
	if len(st.Posts) != 10 {
		t.Fatalf("expected 10 posts, got %d", len(st.Posts))
	}
	if !st.Settled() {
		t.Fatalf("expected settled flags, got %+v", st.Flags)
	}
}

func TestStoreLocalActionsAndSubscribe(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"posts":[{"_id":"a"},{"_id":"b"}]}}`)
	})
	rec := &recorder{}
	unsubscribe := s.Subscribe(rec)

	if err := s.List(context.Background(), 1, 20); err != nil {
		t.Fatalf("list: %v", err)
	}
	s.RemovePost("a")
	s.ClearState()
	unsubscribe()
	s.RemovePost("b")

	st := s.Snapshot()
	if len(st.Posts) != 0 {
		t.Fatalf("expected empty list, got %+v", st.Posts)
	}
	if st.Flags != (state.Flags{}) {
		t.Fatalf("expected initial flags, got %+v", st.Flags)
	}
	if len(rec.events) != 4 {
		t.Fatalf("expected 4 events before unsubscribe, got %d", len(rec.events))
	}
	if rec.events[2].Phase != state.Local || rec.events[2].Action != string(RemovePost) {
		t.Fatalf("unexpected local event %+v", rec.events[2])
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"posts":[{"_id":"a","title":"A"}]}}`)
	})
	if err := s.List(context.Background(), 1, 20); err != nil {
		t.Fatalf("list: %v", err)
	}
	snap := s.Snapshot()
	snap.Posts[0].Title = "mutated"
	if s.Snapshot().Posts[0].Title != "A" {
		t.Fatal("expected store state to be isolated from snapshots")
	}
}
