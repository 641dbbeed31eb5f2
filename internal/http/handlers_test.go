package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"blogclient/internal/api"
	"blogclient/internal/app"
	"blogclient/internal/db"
	"blogclient/internal/models"
	"blogclient/internal/posts"
	"blogclient/internal/user"
)

type session struct {
	jar   *cookiejar.Jar
	base  *url.URL
	posts *posts.Store
	user  *user.Store
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := db.Migrate(d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := app.Config{
		SessionLifetime: time.Hour,
		TokenSecret:     "test-secret",
		AdminEmails:     []string{"root@example.com"},
		RequestTimeout:  5 * time.Second,
	}
	srv := httptest.NewServer(NewServer(d, cfg))
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, srv *httptest.Server) *session {
	t.Helper()
	jar, err := api.NewJar()
	if err != nil {
		t.Fatalf("jar: %v", err)
	}
	c, err := api.New(srv.URL, api.NewHTTPClient(5*time.Second, jar))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return &session{jar: jar, base: c.BaseURL(), posts: posts.NewStore(c), user: user.NewStore(c)}
}

func register(t *testing.T, s *session, name, email string) *models.User {
	t.Helper()
	if err := s.user.Register(context.Background(), name, email, "secret1"); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	st := s.user.Snapshot()
	if !st.IsLoggedIn || st.UserInfo == nil {
		t.Fatalf("expected %s signed in, got %+v", name, st)
	}
	return st.UserInfo
}

func wantCode(t *testing.T, err error, code string) {
	t.Helper()
	if !errors.Is(err, api.E(code, "")) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestPostLifecycle(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	ctx := context.Background()
	ana := newSession(t, srv)
	register(t, ana, "ana", "ana@example.com")

	in := models.PostInput{Title: "Hello", Content: "First post", Category: "Go", Tags: []string{"intro", "go"}}
	if err := ana.posts.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	st := ana.posts.Snapshot()
	if len(st.Posts) != 1 {
		t.Fatalf("expected created post in list, got %+v", st.Posts)
	}
	p := st.Posts[0]
	if p.ID == "" || p.Category != "go" || p.Author.UserName != "ana" || len(p.Tags) != 2 {
		t.Fatalf("unexpected post %+v", p)
	}

	if err := ana.posts.Upvote(ctx, p.ID); err != nil {
		t.Fatalf("upvote: %v", err)
	}
	if err := ana.posts.Upvote(ctx, p.ID); err != nil {
		t.Fatalf("second upvote: %v", err)
	}
	if got := ana.posts.Snapshot().Posts[0]; got.Upvotes != 1 || got.Downvotes != 0 {
		t.Fatalf("expected one upvote per user, got %d/%d", got.Upvotes, got.Downvotes)
	}
	if err := ana.posts.Downvote(ctx, p.ID); err != nil {
		t.Fatalf("downvote: %v", err)
	}
	if got := ana.posts.Snapshot().Posts[0]; got.Upvotes != 0 || got.Downvotes != 1 {
		t.Fatalf("expected vote switched, got %d/%d", got.Upvotes, got.Downvotes)
	}

	if err := ana.posts.IncrementView(ctx, p.ID); err != nil {
		t.Fatalf("view: %v", err)
	}
	if got := ana.posts.Snapshot().Posts[0]; got.Views != 1 {
		t.Fatalf("expected 1 view, got %d", got.Views)
	}

	if err := ana.posts.Update(ctx, p.ID, models.PostInput{Title: "Hello again"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := ana.posts.Snapshot().Posts[0]; got.Title != "Hello again" || got.Content != "First post" {
		t.Fatalf("unexpected updated post %+v", got)
	}

	if err := ana.posts.ByCategory(ctx, "GO"); err != nil {
		t.Fatalf("category: %v", err)
	}
	if st := ana.posts.Snapshot(); len(st.Posts) != 1 || st.Posts[0].ID != p.ID {
		t.Fatalf("expected post in category, got %+v", st.Posts)
	}
	if err := ana.posts.ByCategory(ctx, "rust"); err != nil {
		t.Fatalf("empty category: %v", err)
	}
	if st := ana.posts.Snapshot(); len(st.Posts) != 0 {
		t.Fatalf("expected empty category, got %+v", st.Posts)
	}

	if err := ana.posts.GetOne(ctx, p.ID); err != nil {
		t.Fatalf("get one: %v", err)
	}
	if err := ana.posts.Delete(ctx, p.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if st := ana.posts.Snapshot(); len(st.Posts) != 0 {
		t.Fatalf("expected post removed, got %+v", st.Posts)
	}
	wantCode(t, ana.posts.GetOne(ctx, p.ID), CodePostNotFound)
	wantCode(t, ana.posts.IncrementView(ctx, p.ID), CodePostNotFound)
}

func TestPostListPagination(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	ctx := context.Background()
	ana := newSession(t, srv)
	register(t, ana, "ana", "ana@example.com")

	for _, title := range []string{"one", "two", "three"} {
		if err := ana.posts.Create(ctx, models.PostInput{Title: title, Content: "body"}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}

	if err := ana.posts.List(ctx, 1, 2); err != nil {
		t.Fatalf("list: %v", err)
	}
	st := ana.posts.Snapshot()
	if len(st.Posts) != 2 || st.Total != 3 || st.Count != 2 {
		t.Fatalf("unexpected first page %+v", st)
	}
	if st.Pagination.Next != models.PageCursor(2) || st.Posts[0].Title != "three" {
		t.Fatalf("unexpected first page order or cursor %+v", st)
	}

	if err := ana.posts.List(ctx, 2, 2); err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	st = ana.posts.Snapshot()
	if len(st.Posts) != 1 || !st.Pagination.Next.IsZero() || st.Posts[0].Title != "one" {
		t.Fatalf("unexpected last page %+v", st)
	}
}

func TestPostListPastLastPage(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	ctx := context.Background()
	ana := newSession(t, srv)
	register(t, ana, "ana", "ana@example.com")
	for _, title := range []string{"one", "two", "three"} {
		if err := ana.posts.Create(ctx, models.PostInput{Title: title, Content: "body"}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}

	for _, page := range []int{3, 1 << 62} {
		if err := ana.posts.List(ctx, page, 2); err != nil {
			t.Fatalf("list page %d: %v", page, err)
		}
		st := ana.posts.Snapshot()
		if len(st.Posts) != 0 || st.Total != 3 || !st.Pagination.Next.IsZero() {
			t.Fatalf("expected empty page %d without a cursor, got %+v", page, st)
		}
	}
}

func TestPostPermissions(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	ctx := context.Background()

	anon := newSession(t, srv)
	wantCode(t, anon.posts.Create(ctx, models.PostInput{Title: "x", Content: "y"}), CodeUnauthorized)
	if st := anon.posts.Snapshot(); !st.IsError || st.ErrorCode != CodeUnauthorized {
		t.Fatalf("unexpected flags %+v", st.Flags)
	}

	ana := newSession(t, srv)
	register(t, ana, "ana", "ana@example.com")
	if err := ana.posts.Create(ctx, models.PostInput{Title: "mine", Content: "body"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	id := ana.posts.Snapshot().Posts[0].ID

	bo := newSession(t, srv)
	register(t, bo, "bo", "bo@example.com")
	wantCode(t, bo.posts.Update(ctx, id, models.PostInput{Title: "stolen"}), CodeForbidden)
	wantCode(t, bo.posts.Delete(ctx, id), CodeForbidden)
	wantCode(t, bo.posts.Create(ctx, models.PostInput{Title: "no body"}), CodeValidation)

	root := newSession(t, srv)
	admin := register(t, root, "root", "root@example.com")
	if admin.Role != models.RoleAdmin || !root.user.Snapshot().IsAdmin {
		t.Fatalf("expected admin account, got %+v", admin)
	}
	if err := root.posts.Delete(ctx, id); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestSessionFlow(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	ctx := context.Background()
	ana := newSession(t, srv)
	u := register(t, ana, "ana", "ana@example.com")

	// a fresh client reusing nothing is anonymous
	anon := newSession(t, srv)
	if err := anon.user.FetchCurrentUser(ctx); err != nil {
		t.Fatalf("anonymous fetch: %v", err)
	}
	if st := anon.user.Snapshot(); st.IsLoggedIn || !st.IsSuccess {
		t.Fatalf("expected anonymous success, got %+v", st)
	}

	if err := ana.user.UpdateProfile(ctx, u.ID, models.ProfileInput{FullName: "Ana G", Bio: "hi"}); err != nil {
		t.Fatalf("update profile: %v", err)
	}
	ana.user.ClearUserState()
	if err := ana.user.FetchCurrentUser(ctx); err != nil {
		t.Fatalf("fetch current user: %v", err)
	}
	st := ana.user.Snapshot()
	if !st.IsLoggedIn || st.UserInfo.FullName != "Ana G" {
		t.Fatalf("expected full profile, got %+v", st.UserInfo)
	}

	bo := newSession(t, srv)
	register(t, bo, "bo", "bo@example.com")
	wantCode(t, bo.user.UpdateProfile(ctx, u.ID, models.ProfileInput{Bio: "nope"}), CodeForbidden)

	if err := ana.user.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := ana.user.FetchCurrentUser(ctx); err != nil {
		t.Fatalf("fetch after logout: %v", err)
	}
	if st := ana.user.Snapshot(); st.IsLoggedIn || st.UserInfo != nil {
		t.Fatalf("expected signed out, got %+v", st)
	}

	if err := ana.user.Login(ctx, "ana@example.com", "wrong-pass"); err == nil {
		t.Fatal("expected login failure")
	}
	if st := ana.user.Snapshot(); st.ErrorCode != CodeInvalidCredentials {
		t.Fatalf("unexpected flags %+v", st.Flags)
	}
	if err := ana.user.Login(ctx, "ana@example.com", "secret1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if st := ana.user.Snapshot(); !st.IsLoggedIn || st.UserInfo.ID != u.ID {
		t.Fatalf("expected signed in, got %+v", st)
	}
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	s := newSession(t, srv)
	s.jar.SetCookies(s.base, []*http.Cookie{{Name: CookieName, Value: "garbage", Path: "/"}})

	err := s.user.FetchCurrentUser(context.Background())
	wantCode(t, err, CodeInvalidToken)
	if st := s.user.Snapshot(); !st.IsError || st.IsLoggedIn {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestRegisterConflicts(t *testing.T) {
	t.Parallel()

	srv := newBackend(t)
	ana := newSession(t, srv)
	register(t, ana, "ana", "ana@example.com")

	other := newSession(t, srv)
	wantCode(t, other.user.Register(context.Background(), "ana2", "ana@example.com", "secret1"), CodeEmailTaken)
	wantCode(t, other.user.Register(context.Background(), "ana", "new@example.com", "secret1"), CodeUsernameTaken)
	wantCode(t, other.user.Register(context.Background(), "x", "bad-email", "secret1"), CodeValidation)
}
