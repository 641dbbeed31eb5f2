// Package posts is the post list slice: the list of posts the UI shows,
// its pagination, and the outcome of the last request.
package posts

import (
	"fmt"

	"blogclient/internal/models"
	"blogclient/internal/state"
)

// Slice names this container in observer events.
const Slice = "posts"

// ActionType names a post operation.
type ActionType string

const (
	FetchPosts           ActionType = "posts/fetchPosts"
	FetchPostByID        ActionType = "posts/fetchPostById"
	UpvotePost           ActionType = "posts/upvotePost"
	DownvotePost         ActionType = "posts/downvotePost"
	VotePost             ActionType = "posts/votePost"
	FetchPostsByCategory ActionType = "posts/fetchPostsByCategory"
	AddNewPost           ActionType = "posts/addNewPost"
	UpdatePost           ActionType = "posts/updatePost"
	DeletePost           ActionType = "posts/deletePost"
	IncrementPostView    ActionType = "posts/incrementPostView"
	ClearState           ActionType = "posts/clearState"
	RemovePost           ActionType = "posts/removePost"
)

var defaultMessages = map[ActionType]string{
	FetchPosts:           "Failed to fetch posts.",
	FetchPostByID:        "Failed to fetch post.",
	UpvotePost:           "Failed to upvote post.",
	DownvotePost:         "Failed to downvote post.",
	VotePost:             "Failed to vote on post.",
	FetchPostsByCategory: "Failed to fetch posts.",
	AddNewPost:           "Failed to add post.",
	UpdatePost:           "Failed to update post.",
	DeletePost:           "Failed to delete post.",
	IncrementPostView:    "Failed to increment post view.",
}

// DefaultMessage is the error message recorded when a failure has none.
func DefaultMessage(t ActionType) string {
	if m, ok := defaultMessages[t]; ok {
		return m
	}
	return "Request failed."
}

// State is a snapshot of the slice.
type State struct {
	Posts      []models.Post     `json:"posts"`
	Pagination models.Pagination `json:"pagination"`
	Count      int               `json:"count"`
	Total      int               `json:"total"`
	state.Flags
}

// Initial returns the empty slice state.
func Initial() State {
	return State{Posts: []models.Post{}}
}

// Clone returns a copy that shares no backing array with s.
func (s State) Clone() State {
	out := s
	out.Posts = make([]models.Post, len(s.Posts))
	for i, p := range s.Posts {
		p.Tags = append([]string(nil), p.Tags...)
		out.Posts[i] = p
	}
	return out
}

// Index returns the position of the post with id, or -1.
func (s State) Index(id string) int {
	for i := range s.Posts {
		if s.Posts[i].ID == id {
			return i
		}
	}
	return -1
}

// Action is one lifecycle signal or local mutation.
type Action struct {
	Type  ActionType
	Phase state.Phase

	// ID is the post the operation targeted (delete, removePost).
	ID string
	// Post is the single-entity payload (get, vote, create, update, view).
	Post *models.Post
	// Page is the list payload; nil means the response had no usable data.
	Page *models.PostPage
	// Posts is the category payload.
	Posts []models.Post

	Failure state.Failure
}

// Reduce applies a to s and returns the next state with a note for
// observers. It does not modify s.
func Reduce(s State, a Action) (State, string) {
	next := s.Clone()

	switch a.Phase {
	case state.Pending:
		next.Flags.Begin()
		return next, ""
	case state.Rejected:
		next.Flags.Fail(a.Failure, DefaultMessage(a.Type))
		return next, fmt.Sprintf("failed: %s (%s)", next.ErrorMessage, next.ErrorCode)
	case state.Local:
		return reduceLocal(next, a)
	}

	next.Flags.Succeed()
	switch a.Type {
	case FetchPosts:
		return applyPage(next, a.Page)
	case FetchPostByID:
		if a.Post == nil {
			return next, "post data not found"
		}
		if i := next.Index(a.Post.ID); i >= 0 {
			next.Posts[i] = *a.Post
			return next, "post refreshed: " + a.Post.Label()
		}
		next.Posts = append(next.Posts, *a.Post)
		return next, "post added: " + a.Post.Label()
	case UpvotePost, DownvotePost, UpdatePost, IncrementPostView:
		if a.Post == nil {
			return next, "no post in response"
		}
		if i := next.Index(a.Post.ID); i >= 0 {
			next.Posts[i] = *a.Post
			return next, verb(a.Type) + ": " + a.Post.Label()
		}
		return next, verb(a.Type) + ": " + a.Post.ID + " not in list"
	case FetchPostsByCategory:
		next.Posts = append([]models.Post{}, a.Posts...)
		return next, fmt.Sprintf("%d posts fetched by category", len(next.Posts))
	case AddNewPost:
		if a.Post == nil {
			return next, "no post in response"
		}
		next.Posts = append([]models.Post{*a.Post}, next.Posts...)
		return next, "post added: " + a.Post.Label()
	case DeletePost:
		next.Posts = without(next.Posts, a.ID)
		return next, "post deleted: " + a.ID
	}
	return next, ""
}

func reduceLocal(next State, a Action) (State, string) {
	switch a.Type {
	case ClearState:
		next.Flags.Reset()
		return next, "clearing post state"
	case RemovePost:
		next.Posts = without(next.Posts, a.ID)
		return next, "removing post: " + a.ID
	}
	return next, ""
}

func applyPage(next State, page *models.PostPage) (State, string) {
	if page == nil {
		next.Posts = []models.Post{}
		next.Pagination = models.Pagination{}
		next.Count = 0
		next.Total = 0
		return next, "response not in the expected format, using an empty list"
	}
	next.Posts = append([]models.Post{}, page.Posts...)
	next.Pagination = models.Pagination{}
	if page.Pagination != nil {
		next.Pagination = *page.Pagination
	}
	next.Count = page.Count
	next.Total = page.Total
	return next, fmt.Sprintf("%d posts fetched", len(next.Posts))
}

func without(list []models.Post, id string) []models.Post {
	out := make([]models.Post, 0, len(list))
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func verb(t ActionType) string {
	switch t {
	case UpvotePost:
		return "post upvoted"
	case DownvotePost:
		return "post downvoted"
	case IncrementPostView:
		return "post viewed"
	default:
		return "post updated"
	}
}
