package posts

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"strconv"

	"blogclient/internal/api"
	"blogclient/internal/models"
)

// Direction selects the vote endpoint.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// CodeInvalidDirection is recorded for a vote that is neither up nor down.
const CodeInvalidDirection = "INVALID_DIRECTION"

// Backend is the subset of *api.Client the dispatcher needs.
type Backend interface {
	Get(ctx context.Context, path string, query url.Values) (api.Response, error)
	Post(ctx context.Context, path string, body any) (api.Response, error)
	Put(ctx context.Context, path string, body any) (api.Response, error)
	Delete(ctx context.Context, path string) (api.Response, error)
}

// Dispatcher turns post operations into one backend call each and
// reports the settled action. It never returns a Rejected action without
// a non-nil error.
type Dispatcher struct {
	backend Backend
}

func NewDispatcher(b Backend) *Dispatcher {
	return &Dispatcher{backend: b}
}

func postPath(id string, suffix ...string) string {
	p := "/posts/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func (d *Dispatcher) List(ctx context.Context, page, limit int) (Action, string, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	resp, err := d.backend.Get(ctx, "/posts", q)
	if err != nil {
		return rejected(FetchPosts, err), resp.RequestID, err
	}
	a := Action{Type: FetchPosts}
	var raw json.RawMessage
	ok, err := api.DecodeData(resp, &raw)
	if err != nil {
		log.Printf("posts.List: %v", err)
	}
	if ok && err == nil {
		pg, err := models.DecodePostPage(raw)
		if err != nil {
			log.Printf("posts.List: %v", err)
		}
		a.Page = pg
	}
	return fulfilled(a), resp.RequestID, nil
}

func (d *Dispatcher) GetOne(ctx context.Context, id string) (Action, string, error) {
	resp, err := d.backend.Get(ctx, "/posts/one-post/"+url.PathEscape(id), nil)
	return d.single(FetchPostByID, resp, err)
}

func (d *Dispatcher) Vote(ctx context.Context, id string, dir Direction) (Action, string, error) {
	var (
		t      ActionType
		suffix string
	)
	switch dir {
	case Up:
		t, suffix = UpvotePost, "upvote"
	case Down:
		t, suffix = DownvotePost, "downvote"
	default:
		err := api.E(CodeInvalidDirection, "unknown vote direction "+strconv.Quote(string(dir)))
		return rejected(VotePost, err), "", err
	}
	resp, err := d.backend.Put(ctx, postPath(id, suffix), nil)
	return d.single(t, resp, err)
}

func (d *Dispatcher) ByCategory(ctx context.Context, category string) (Action, string, error) {
	resp, err := d.backend.Get(ctx, "/category/"+url.PathEscape(category), nil)
	if err != nil {
		return rejected(FetchPostsByCategory, err), resp.RequestID, err
	}
	var raw json.RawMessage
	if _, err := api.DecodeData(resp, &raw); err != nil {
		log.Printf("posts.ByCategory: %v", err)
	}
	list, err := models.DecodePosts(raw)
	if err != nil {
		log.Printf("posts.ByCategory: %v", err)
	}
	return fulfilled(Action{Type: FetchPostsByCategory, Posts: list}), resp.RequestID, nil
}

func (d *Dispatcher) Create(ctx context.Context, in models.PostInput) (Action, string, error) {
	resp, err := d.backend.Post(ctx, "/posts", in)
	return d.single(AddNewPost, resp, err)
}

func (d *Dispatcher) Update(ctx context.Context, id string, in models.PostInput) (Action, string, error) {
	resp, err := d.backend.Put(ctx, postPath(id), in)
	return d.single(UpdatePost, resp, err)
}

func (d *Dispatcher) Delete(ctx context.Context, id string) (Action, string, error) {
	resp, err := d.backend.Delete(ctx, postPath(id))
	if err != nil {
		return rejected(DeletePost, err), resp.RequestID, err
	}
	return fulfilled(Action{Type: DeletePost, ID: id}), resp.RequestID, nil
}

func (d *Dispatcher) IncrementView(ctx context.Context, id string) (Action, string, error) {
	resp, err := d.backend.Put(ctx, postPath(id, "view"), nil)
	return d.single(IncrementPostView, resp, err)
}

func (d *Dispatcher) single(t ActionType, resp api.Response, err error) (Action, string, error) {
	if err != nil {
		return rejected(t, err), resp.RequestID, err
	}
	var raw json.RawMessage
	if _, err := api.DecodeData(resp, &raw); err != nil {
		log.Printf("posts: %s: %v", t, err)
	}
	p, err := models.UnwrapPost(raw)
	if err != nil {
		log.Printf("posts: %s: decode post: %v", t, err)
		p = nil
	}
	return fulfilled(Action{Type: t, Post: p}), resp.RequestID, nil
}
