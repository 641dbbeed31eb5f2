package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID        string    `json:"_id"`
	UserName  string    `json:"userName"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FullName  string    `json:"fullName,omitempty"`
	Bio       string    `json:"bio,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// UnmarshalJSON accepts both "id" and "_id"; "_id" wins when both are set.
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	if u.ID == "" {
		u.ID = aux.AltID
	}
	return nil
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// DisplayName falls back from the user name to the email.
func (u *User) DisplayName() string {
	if u == nil {
		return "user"
	}
	if u.UserName != "" {
		return u.UserName
	}
	if u.Email != "" {
		return u.Email
	}
	return "user"
}

// AuthorRef is the post author: either a bare id or a populated user.
type AuthorRef struct {
	ID       string `json:"_id"`
	UserName string `json:"userName,omitempty"`
}

func (a *AuthorRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*a = AuthorRef{}
		return nil
	}
	if b[0] == '"' {
		var id string
		if err := json.Unmarshal(b, &id); err != nil {
			return err
		}
		*a = AuthorRef{ID: id}
		return nil
	}
	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return err
	}
	*a = AuthorRef{ID: u.ID, UserName: u.UserName}
	return nil
}

// VoteCount decodes a number, a numeric string or an array of voter ids.
type VoteCount int

func (v *VoteCount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var voters []json.RawMessage
		if err := json.Unmarshal(b, &voters); err != nil {
			return err
		}
		*v = VoteCount(len(voters))
		return nil
	}
	n, err := lenientInt(b)
	if err != nil {
		return err
	}
	*v = VoteCount(n)
	return nil
}

// Counter is a plain count that also accepts a numeric string.
type Counter int

func (c *Counter) UnmarshalJSON(b []byte) error {
	n, err := lenientInt(b)
	if err != nil {
		return err
	}
	*c = Counter(n)
	return nil
}

// lenientInt reads null, a number or a quoted number. A string that is
// not a number reads as zero.
func lenientInt(b []byte) (int, error) {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		return 0, nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, nil
		}
		return int(f), nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return 0, err
	}
	return int(f), nil
}

type Post struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content,omitempty"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	Author    AuthorRef `json:"author"`
	Upvotes   VoteCount `json:"upvotes"`
	Downvotes VoteCount `json:"downvotes"`
	Views     Counter   `json:"views"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Label is what log lines show for a post: its title, or its id.
func (p Post) Label() string {
	if p.Title != "" {
		return p.Title
	}
	return p.ID
}

// PostInput is the body of create and update calls.
type PostInput struct {
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content,omitempty"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ProfileInput is the body of a profile update.
type ProfileInput struct {
	UserName string `json:"userName,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Bio      string `json:"bio,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Cursor is the pagination "next" token. The backend sends null, a page
// number or an opaque string; the value is kept as text and written back
// in the kind it arrived as.
type Cursor struct {
	Value   string
	Numeric bool
}

// PageCursor is the numeric cursor for page n.
func PageCursor(n int) Cursor {
	return Cursor{Value: strconv.Itoa(n), Numeric: true}
}

func (c Cursor) String() string { return c.Value }

// IsZero reports whether there is no next page.
func (c Cursor) IsZero() bool { return c.Value == "" }

func (c *Cursor) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*c = Cursor{}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Cursor{Value: s}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*c = Cursor{Value: n.String(), Numeric: true}
	}
	return nil
}

func (c Cursor) MarshalJSON() ([]byte, error) {
	if c.Value == "" {
		return []byte("null"), nil
	}
	if c.Numeric && json.Valid([]byte(c.Value)) {
		return []byte(c.Value), nil
	}
	return json.Marshal(c.Value)
}

type Pagination struct {
	Next  Cursor `json:"next"`
	Total int    `json:"total"`
	Count int    `json:"count"`
}

// PostPage is the data of a list response.
type PostPage struct {
	Posts      []Post      `json:"posts"`
	Pagination *Pagination `json:"pagination"`
	Count      int         `json:"count"`
	Total      int         `json:"total"`
}

// Envelope is the shape of every backend response.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// HasData reports whether the envelope carries a non-null data field.
func (e Envelope) HasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// AuthData is the data of login and register responses.
type AuthData struct {
	User *User `json:"user"`
}

// TokenData is the data of a verify-token response. Valid is nil when
// the backend omits it.
type TokenData struct {
	Valid *bool `json:"valid"`
	User  *User `json:"user"`
}

// DecodePosts decodes a post array entry by entry. Entries that fail to
// decode are skipped and reported in the joined error.
func DecodePosts(raw json.RawMessage) ([]Post, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("posts: %w", err)
	}
	out := make([]Post, 0, len(items))
	var errs []error
	for i, item := range items {
		var p Post
		if err := json.Unmarshal(item, &p); err != nil {
			errs = append(errs, fmt.Errorf("posts[%d]: %w", i, err))
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

// DecodePostPage decodes a list payload one field at a time, so a bad
// count or pagination block still leaves the posts. It returns a nil page
// only when the payload is not an object.
func DecodePostPage(raw json.RawMessage) (*PostPage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("post page: %w", err)
	}
	if fields == nil {
		return nil, errors.New("post page: null payload")
	}
	var (
		pg   PostPage
		errs []error
	)
	posts, err := DecodePosts(fields["posts"])
	pg.Posts = posts
	errs = append(errs, err)

	if p := bytes.TrimSpace(fields["pagination"]); len(p) > 0 && !bytes.Equal(p, []byte("null")) {
		var pag Pagination
		if err := json.Unmarshal(p, &pag); err != nil {
			errs = append(errs, fmt.Errorf("pagination: %w", err))
		} else {
			pg.Pagination = &pag
		}
	}
	if pg.Count, err = lenientInt(fields["count"]); err != nil {
		errs = append(errs, fmt.Errorf("count: %w", err))
	}
	if pg.Total, err = lenientInt(fields["total"]); err != nil {
		errs = append(errs, fmt.Errorf("total: %w", err))
	}
	return &pg, errors.Join(errs...)
}

// UnwrapPost decodes a post payload that is either the post itself or
// {"post": {...}}. It returns nil when the payload is empty.
func UnwrapPost(raw json.RawMessage) (*Post, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var wrapped struct {
		Post *Post `json:"post"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Post != nil {
		return wrapped.Post, nil
	}
	var p Post
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// NormalizeCategory trims and lowercases a category name.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
