package httpx

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"blogclient/internal/app"
	"blogclient/internal/auth"
	"blogclient/internal/models"
	"blogclient/internal/util"
)

// Failure codes written in response envelopes.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeUsernameTaken      = "USERNAME_TAKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodePostNotFound       = "POST_NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

type Server struct {
	DB     *sql.DB
	Cfg    app.Config
	Mux    *http.ServeMux
	Tokens auth.Signer

	handler http.Handler
}

func NewServer(db *sql.DB, cfg app.Config) *Server {
	s := &Server{
		DB:     db,
		Cfg:    cfg,
		Mux:    http.NewServeMux(),
		Tokens: auth.Signer{Secret: []byte(cfg.TokenSecret)},
	}

	// posts
	s.Mux.HandleFunc("GET /posts", s.handlePostList)
	s.Mux.HandleFunc("GET /posts/one-post/{id}", s.handlePostOne)
	s.Mux.HandleFunc("GET /category/{category}", s.handleCategory)
	s.Mux.HandleFunc("PUT /posts/{id}/view", s.handlePostView)
	s.Mux.Handle("POST /posts", s.requireAuth(s.handlePostCreate))
	s.Mux.Handle("PUT /posts/{id}", s.requireAuth(s.handlePostUpdate))
	s.Mux.Handle("DELETE /posts/{id}", s.requireAuth(s.handlePostDelete))
	s.Mux.Handle("PUT /posts/{id}/upvote", s.requireAuth(s.voteHandler(1)))
	s.Mux.Handle("PUT /posts/{id}/downvote", s.requireAuth(s.voteHandler(-1)))

	// auth
	s.Mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.Mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.Mux.HandleFunc("POST /auth/logout", s.handleLogout)
	s.Mux.HandleFunc("POST /auth/verify-token", s.handleVerifyToken)

	// users
	s.Mux.Handle("GET /user/{id}", s.requireAuth(s.handleUserGet))
	s.Mux.Handle("PUT /user/{id}", s.requireAuth(s.handleUserUpdate))

	s.handler = WithAccessLog(WithTrace(WithTimeout(s.withSession(s.Mux), cfg.RequestTimeout)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

type credentials struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ---------------------------------------------------------------------------------
// ------------HandleRegister Function-----------------------------------------------

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := util.Decode(r, &in); err != nil {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "Malformed request body")
		return
	}
	if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.UserName) == "" || in.Password == "" {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "userName, email and password are required")
		return
	}

	role := models.RoleUser
	if s.Cfg.IsAdminEmail(in.Email) {
		role = models.RoleAdmin
	}
	u, err := auth.Register(r.Context(), s.DB, in.Email, in.UserName, in.Password, role)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		util.Fail(w, http.StatusConflict, CodeEmailTaken, "Email already taken")
		return
	case errors.Is(err, auth.ErrUsernameTaken):
		util.Fail(w, http.StatusConflict, CodeUsernameTaken, "Username already taken")
		return
	case errors.Is(err, auth.ErrInvalidInput):
		util.Fail(w, http.StatusBadRequest, CodeValidation, err.Error())
		return
	case err != nil:
		log.Printf("register FAIL email=%s err=%v", in.Email, err)
		s.internal(w)
		return
	}

	sid, exp, err := auth.CreateSession(r.Context(), s.DB, u.ID, s.Cfg.SessionLifetime)
	if err != nil {
		s.internal(w)
		return
	}
	if !s.setSessionCookie(w, sid, u, exp) {
		return
	}
	log.Printf("register OK email=%s uid=%s role=%s", u.Email, u.ID, u.Role)
	util.OK(w, http.StatusCreated, "Registration successful", models.AuthData{User: &u})
}

// ---------------------------------------------------------------------------------
// ------------HandleLogin Function-----------------------------------------------

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := util.Decode(r, &in); err != nil {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "Malformed request body")
		return
	}
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "email and password are required")
		return
	}

	sid, u, exp, err := auth.Login(r.Context(), s.DB, in.Email, in.Password, s.Cfg.SessionLifetime)
	if errors.Is(err, auth.ErrInvalidLogin) {
		util.Fail(w, http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password")
		return
	}
	if err != nil {
		// registra el fallo para saber por qué
		log.Printf("login FAIL email=%s err=%v", in.Email, err)
		s.internal(w)
		return
	}
	if !s.setSessionCookie(w, sid, u, exp) {
		return
	}
	util.OK(w, http.StatusOK, "Login successful", models.AuthData{User: &u})
}

// ---------------------------------------------------------------------------------
// ------------HandleLogout Function-----------------------------------------------

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		if err := auth.Logout(r.Context(), s.DB, p.SessionID); err != nil {
			log.Printf("logout: delete session err: %v", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	util.OK(w, http.StatusOK, "Logged out", nil)
}

// ---------------------------------------------------------------------------------
// ------------HandleVerifyToken Function-----------------------------------------------

// No cookie is a valid anonymous answer; a cookie that does not verify is a
// failure.
func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		valid := true
		u := p.User()
		util.OK(w, http.StatusOK, "", models.TokenData{Valid: &valid, User: &u})
		return
	}
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		util.Fail(w, http.StatusUnauthorized, CodeInvalidToken, "Token is invalid.")
		return
	}
	valid := false
	util.OK(w, http.StatusOK, "", models.TokenData{Valid: &valid})
}

// ---------------------------------------------------------------------------------
// ------------Users-----------------------------------------------

func (s *Server) handleUserGet(w http.ResponseWriter, r *http.Request) {
	u, err := auth.GetUser(r.Context(), s.DB, r.PathValue("id"))
	if errors.Is(err, auth.ErrUserNotFound) {
		util.Fail(w, http.StatusNotFound, CodeUserNotFound, "User not found")
		return
	}
	if err != nil {
		log.Printf("user get err: %v", err)
		s.internal(w)
		return
	}
	util.OK(w, http.StatusOK, "", u)
}

func (s *Server) handleUserUpdate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	id := r.PathValue("id")
	if p.UserID != id && !p.IsAdmin() {
		util.Fail(w, http.StatusForbidden, CodeForbidden, "You can only update your own profile")
		return
	}
	var in models.ProfileInput
	if err := util.Decode(r, &in); err != nil {
		util.Fail(w, http.StatusBadRequest, CodeValidation, "Malformed request body")
		return
	}

	u, err := auth.UpdateProfile(r.Context(), s.DB, id, in)
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		util.Fail(w, http.StatusNotFound, CodeUserNotFound, "User not found")
	case errors.Is(err, auth.ErrUsernameTaken):
		util.Fail(w, http.StatusConflict, CodeUsernameTaken, "Username already taken")
	case errors.Is(err, auth.ErrInvalidInput):
		util.Fail(w, http.StatusBadRequest, CodeValidation, err.Error())
	case err != nil:
		log.Printf("user update err: %v", err)
		s.internal(w)
	default:
		util.OK(w, http.StatusOK, "Profile updated", u)
	}
}

//--------------------------------------------------------------------------------------
//--------------helpers-------------------------------------------

func (s *Server) setSessionCookie(w http.ResponseWriter, sid string, u models.User, exp time.Time) bool {
	tok, err := s.Tokens.Issue(sid, u, exp)
	if err != nil {
		log.Printf("issue token err: %v", err)
		s.internal(w)
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
	return true
}

func (s *Server) internal(w http.ResponseWriter) {
	util.Fail(w, http.StatusInternalServerError, CodeInternal, "Internal server error")
}
