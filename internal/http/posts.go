package httpx

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"blogclient/internal/auth"
	"blogclient/internal/models"
	"blogclient/internal/util"

	"github.com/google/uuid"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

var errPostNotFound = errors.New("post not found")

// Votes are aggregated per post; CASE keeps the query valid on both
// SQLite and Postgres.
const postSelect = `
SELECT
  p.id, p.title, p.content, p.category, p.tags, p.views, p.created_at, p.updated_at,
  u.id, u.user_name,
  COALESCE(SUM(CASE WHEN v.value = 1  THEN 1 ELSE 0 END), 0) AS upvotes,
  COALESCE(SUM(CASE WHEN v.value = -1 THEN 1 ELSE 0 END), 0) AS downvotes
FROM posts p
JOIN users u ON u.id = p.user_id
LEFT JOIN post_votes v ON v.post_id = p.id
`

const postGroup = `
GROUP BY p.id, p.title, p.content, p.category, p.tags, p.views, p.created_at, p.updated_at, u.id, u.user_name
`

// ---------------------------------------------------------------------------------
// ------------Queries-----------------------------------------------

func scanPost(row interface{ Scan(...any) error }) (models.Post, error) {
	var (
		p    models.Post
		tags string
		up    int
		down  int
		views int
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Category, &tags, &views, &p.CreatedAt, &p.UpdatedAt,
		&p.Author.ID, &p.Author.UserName, &up, &down); err != nil {
		return models.Post{}, err
	}
	p.Tags = splitTags(tags)
	p.Upvotes = models.VoteCount(up)
	p.Downvotes = models.VoteCount(down)
	p.Views = models.Counter(views)
	return p, nil
}

// queryPosts collects every row before returning, so callers may issue
// further queries on a single-connection pool.
func (s *Server) queryPosts(ctx context.Context, query string, args ...any) ([]models.Post, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Server) loadPost(ctx context.Context, id string) (models.Post, error) {
	p, err := scanPost(s.DB.QueryRowContext(ctx, postSelect+`WHERE p.id = $1`+postGroup, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Post{}, errPostNotFound
	}
	return p, err
}

func (s *Server) postOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := s.DB.QueryRowContext(ctx, `SELECT user_id FROM posts WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errPostNotFound
	}
	return owner, err
}

// ---------------------------------------------------------------------------------
// ------------HandlePostList Function-----------------------------------------------

func (s *Server) handlePostList(w http.ResponseWriter, r *http.Request) {
	page := atoiDefault(r.URL.Query().Get("page"), 1)
	limit := atoiDefault(r.URL.Query().Get("limit"), defaultLimit)
	if limit > maxLimit {
		limit = maxLimit
	}

	var total int
	if err := s.DB.QueryRowContext(r.Context(), `SELECT COUNT(1) FROM posts`).Scan(&total); err != nil {
		log.Printf("posts count err: %v", err)
		s.internal(w)
		return
	}
	// past the last page: an empty page, without overflowing the offset
	if last := max(1, (total+limit-1)/limit); page > last {
		page = last + 1
	}

	posts, err := s.queryPosts(r.Context(),
		postSelect+postGroup+`ORDER BY p.created_at DESC, p.id DESC LIMIT $1 OFFSET $2`,
		limit, (page-1)*limit,
	)
	if err != nil {
		log.Printf("posts query err: %v", err)
		s.internal(w)
		return
	}

	pg := &models.Pagination{Total: total, Count: len(posts)}
	if page*limit < total {
		pg.Next = models.PageCursor(page + 1)
	}
	util.OK(w, http.StatusOK, "", models.PostPage{
		Posts:      posts,
		Pagination: pg,
		Count:      len(posts),
		Total:      total,
	})
}

// ---------------------------------------------------------------------------------
// ------------HandlePostOne Function-----------------------------------------------

func (s *Server) handlePostOne(w http.ResponseWriter, r *http.Request) {
	p, err := s.loadPost(r.Context(), r.PathValue("id"))
	if s.postErr(w, err) {
		return
	}
	util.OK(w, http.StatusOK, "", p)
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	cat := models.NormalizeCategory(r.PathValue("category"))
	posts, err := s.queryPosts(r.Context(),
		postSelect+`WHERE p.category = $1`+postGroup+`ORDER BY p.created_at DESC, p.id DESC`, cat)
	if err != nil {
		log.Printf("category %q query err: %v", cat, err)
		s.internal(w)
		return
	}
	util.OK(w, http.StatusOK, "", posts)
}

func (s *Server) handlePostView(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.DB.ExecContext(r.Context(), `UPDATE posts SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		log.Printf("post view err: %v", err)
		s.internal(w)
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.postErr(w, errPostNotFound)
		return
	}
	p, err := s.loadPost(r.Context(), id)
	if s.postErr(w, err) {
		return
	}
	util.OK(w, http.StatusOK, "", p)
}

// ---------------------------------------------------------------------------------
// ------------HandlePost Create Function-----------------------------------------------

func (s *Server) handlePostCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	var in models.PostInput
	if err := util.Decode(r, &in); err != nil {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "Malformed request body")
		return
	}
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" || content == "" {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "Title and content required")
		return
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := s.DB.ExecContext(r.Context(),
		`INSERT INTO posts (id, user_id, title, content, category, tags, views, created_at, updated_at)
         VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`,
		id, p.UserID, title, content, models.NormalizeCategory(in.Category), joinTags(in.Tags), now, now,
	)
	if err != nil {
		log.Printf("create post err: %v", err)
		s.internal(w)
		return
	}
	post, err := s.loadPost(r.Context(), id)
	if s.postErr(w, err) {
		return
	}
	log.Printf("create post uid=%s id=%s title=%q", p.UserID, id, title)
	util.OK(w, http.StatusCreated, "Post created", map[string]models.Post{"post": post})
}

func (s *Server) handlePostUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.canEdit(w, r, id) {
		return
	}
	var in models.PostInput
	if err := util.Decode(r, &in); err != nil {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "Malformed request body")
		return
	}
	cur, err := s.loadPost(r.Context(), id)
	if s.postErr(w, err) {
		return
	}
	if v := strings.TrimSpace(in.Title); v != "" {
		cur.Title = v
	}
	if v := strings.TrimSpace(in.Content); v != "" {
		cur.Content = v
	}
	if v := models.NormalizeCategory(in.Category); v != "" {
		cur.Category = v
	}
	if in.Tags != nil {
		cur.Tags = in.Tags
	}

	_, err = s.DB.ExecContext(r.Context(),
		`UPDATE posts SET title = $1, content = $2, category = $3, tags = $4, updated_at = $5 WHERE id = $6`,
		cur.Title, cur.Content, cur.Category, joinTags(cur.Tags), time.Now().UTC(), id,
	)
	if err != nil {
		log.Printf("update post err: %v", err)
		s.internal(w)
		return
	}
	post, err := s.loadPost(r.Context(), id)
	if s.postErr(w, err) {
		return
	}
	util.OK(w, http.StatusOK, "Post updated", map[string]models.Post{"post": post})
}

func (s *Server) handlePostDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.canEdit(w, r, id) {
		return
	}

	tx, err := s.DB.BeginTx(r.Context(), nil)
	if err != nil {
		s.internal(w)
		return
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(r.Context(), `DELETE FROM post_votes WHERE post_id = $1`, id); err != nil {
		log.Printf("delete votes err: %v", err)
		s.internal(w)
		return
	}
	if _, err := tx.ExecContext(r.Context(), `DELETE FROM posts WHERE id = $1`, id); err != nil {
		log.Printf("delete post err: %v", err)
		s.internal(w)
		return
	}
	if err := tx.Commit(); err != nil {
		s.internal(w)
		return
	}
	util.OK(w, http.StatusOK, "Post deleted", map[string]string{"_id": id})
}

// ---------------------------------------------------------------------------------
// ------------Votes-----------------------------------------------

// voteHandler records the caller's vote; one vote per user per post, a
// later vote replaces the earlier one.
func (s *Server) voteHandler(value int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.PrincipalFrom(r.Context())
		id := r.PathValue("id")
		if _, err := s.postOwner(r.Context(), id); s.postErr(w, err) {
			return
		}
		_, err := s.DB.ExecContext(r.Context(), `
INSERT INTO post_votes (user_id, post_id, value) VALUES ($1, $2, $3)
ON CONFLICT (user_id, post_id) DO UPDATE SET value = excluded.value
`, p.UserID, id, value)
		if err != nil {
			log.Printf("vote err: %v", err)
			s.internal(w)
			return
		}
		post, err := s.loadPost(r.Context(), id)
		if s.postErr(w, err) {
			return
		}
		util.OK(w, http.StatusOK, "", post)
	}
}

// ---------------------------------------------------------------------------------
// ------------helpers-----------------------------------------------

// canEdit allows the post's author and admins.
func (s *Server) canEdit(w http.ResponseWriter, r *http.Request, id string) bool {
	p, _ := auth.PrincipalFrom(r.Context())
	owner, err := s.postOwner(r.Context(), id)
	if s.postErr(w, err) {
		return false
	}
	if owner != p.UserID && !p.IsAdmin() {
		util.Fail(w, http.StatusForbidden, CodeForbidden, "Only the author or an admin can change this post")
		return false
	}
	return true
}

// postErr writes the response for a non-nil err and reports whether it did.
func (s *Server) postErr(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, errPostNotFound):
		util.Fail(w, http.StatusNotFound, CodePostNotFound, "Post not found")
	default:
		log.Printf("post query err: %v", err)
		s.internal(w)
	}
	return true
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func joinTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" && !strings.Contains(t, ",") {
			out = append(out, t)
		}
	}
	return strings.Join(out, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
