// internal/auth/auth.go
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"blogclient/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken    = errors.New("email already taken")
	ErrUsernameTaken = errors.New("username already taken")
	ErrInvalidLogin  = errors.New("invalid email or password")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNoSession     = errors.New("session not found")
	ErrUserNotFound  = errors.New("user not found")
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[\p{L}0-9_]{3,20}$`)
)

// ----------------------------
// Context helpers (para middleware y handlers)
// ----------------------------

// Principal is the caller resolved from a valid session token.
type Principal struct {
	SessionID string
	UserID    string
	UserName  string
	Email     string
	Role      string
}

// User returns the token-embedded view of the principal.
func (p Principal) User() models.User {
	return models.User{ID: p.UserID, UserName: p.UserName, Email: p.Email, Role: p.Role}
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

type ctxKeyPrincipal struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal{}).(Principal)
	return p, ok && p.UserID != ""
}

// ValidateCredentials checks registration input.
func ValidateCredentials(email, username, password string) error {
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username must be 3-20 letters, digits or underscores", ErrInvalidInput)
	}
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	return nil
}

// ----------------------------
// Register
// ----------------------------

func Register(ctx context.Context, db *sql.DB, email, username, password, role string) (models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)
	if err := ValidateCredentials(email, username, password); err != nil {
		return models.User{}, err
	}
	if role != models.RoleAdmin {
		role = models.RoleUser
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE email = $1`, email).Scan(&exists); err != nil {
		return models.User{}, err
	}
	if exists > 0 {
		return models.User{}, ErrEmailTaken
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE LOWER(user_name) = LOWER($1)`, username).Scan(&exists); err != nil {
		return models.User{}, err
	}
	if exists > 0 {
		return models.User{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	u := models.User{
		ID:        uuid.NewString(),
		UserName:  username,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, user_name, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.UserName, u.Email, string(hash), u.Role, u.CreatedAt,
	)
	// Por si hay condición de carrera con UNIQUE:
	if isUniqueErr(err, "users.email") {
		return models.User{}, ErrEmailTaken
	}
	if isUniqueErr(err, "users.user_name") {
		return models.User{}, ErrUsernameTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("auth: insert user: %w", err)
	}
	return u, nil
}

// ----------------------------
// Login (crea sesión con UUID y expiración)
// ----------------------------

func Login(ctx context.Context, db *sql.DB, email, password string, lifetime time.Duration) (string, models.User, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var passwdHash string
	u, err := scanUser(db.QueryRowContext(ctx, userSelect+` WHERE email = $1`, email), &passwdHash)
	if errors.Is(err, ErrUserNotFound) {
		log.Printf("auth.Login: no user for email=%s", email)
		return "", models.User{}, time.Time{}, ErrInvalidLogin
	}
	if err != nil {
		log.Printf("auth.Login: query user err: %v", err)
		return "", models.User{}, time.Time{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(password)); err != nil {
		log.Printf("auth.Login: bad password for email=%s", email)
		return "", models.User{}, time.Time{}, ErrInvalidLogin
	}

	sid, exp, err := CreateSession(ctx, db, u.ID, lifetime)
	if err != nil {
		return "", models.User{}, time.Time{}, err
	}
	log.Printf("auth.Login: OK email=%s uid=%s", email, u.ID)
	return sid, u, exp, nil
}

// CreateSession replaces the user's sessions with a fresh one.
func CreateSession(ctx context.Context, db *sql.DB, userID string, lifetime time.Duration) (string, time.Time, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Printf("auth.CreateSession: begin tx err: %v", err)
		return "", time.Time{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		log.Printf("auth.CreateSession: delete old sessions err: %v", err)
		return "", time.Time{}, err
	}

	sid := uuid.NewString()
	exp := time.Now().Add(lifetime).UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at) VALUES ($1, $2, $3)`,
		sid, userID, exp,
	); err != nil {
		log.Printf("auth.CreateSession: insert session err: %v", err)
		return "", time.Time{}, err
	}
	if err := tx.Commit(); err != nil {
		log.Printf("auth.CreateSession: commit err: %v", err)
		return "", time.Time{}, err
	}
	return sid, exp, nil
}

// ----------------------------
// Logout (borra la sesión por ID)
// ----------------------------

func Logout(ctx context.Context, db *sql.DB, sid string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, sid)
	return err
}

// ----------------------------
// UserFromSession: valida la sesión y devuelve (uid, expires)
// ----------------------------

func UserFromSession(ctx context.Context, db *sql.DB, sid string) (string, time.Time, error) {
	var (
		uid string
		exp time.Time
	)
	err := db.QueryRowContext(ctx, `SELECT user_id, expires_at FROM sessions WHERE id = $1`, sid).Scan(&uid, &exp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, ErrNoSession
	}
	if err != nil {
		return "", time.Time{}, err
	}
	return uid, exp, nil
}

// ----------------------------
// Users
// ----------------------------

const userSelect = `SELECT id, user_name, email, role, full_name, bio, avatar, created_at, password_hash FROM users`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, passwdHash *string) (models.User, error) {
	var (
		u    models.User
		hash string
	)
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.Role, &u.FullName, &u.Bio, &u.Avatar, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	if passwdHash != nil {
		*passwdHash = hash
	}
	return u, nil
}

func GetUser(ctx context.Context, db *sql.DB, id string) (models.User, error) {
	return scanUser(db.QueryRowContext(ctx, userSelect+` WHERE id = $1`, id), nil)
}

// UpdateProfile applies the non-empty fields of in.
func UpdateProfile(ctx context.Context, db *sql.DB, id string, in models.ProfileInput) (models.User, error) {
	cur, err := GetUser(ctx, db, id)
	if err != nil {
		return models.User{}, err
	}
	if name := strings.TrimSpace(in.UserName); name != "" && name != cur.UserName {
		if !usernameRegex.MatchString(name) {
			return models.User{}, fmt.Errorf("%w: username must be 3-20 letters, digits or underscores", ErrInvalidInput)
		}
		var taken int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM users WHERE LOWER(user_name) = LOWER($1) AND id <> $2`, name, id,
		).Scan(&taken); err != nil {
			return models.User{}, fmt.Errorf("auth: update profile: %w", err)
		}
		if taken > 0 {
			return models.User{}, ErrUsernameTaken
		}
		cur.UserName = name
	}
	if v := strings.TrimSpace(in.FullName); v != "" {
		cur.FullName = v
	}
	if v := strings.TrimSpace(in.Bio); v != "" {
		cur.Bio = v
	}
	if v := strings.TrimSpace(in.Avatar); v != "" {
		cur.Avatar = v
	}

	_, err = db.ExecContext(ctx,
		`UPDATE users SET user_name = $1, full_name = $2, bio = $3, avatar = $4 WHERE id = $5`,
		cur.UserName, cur.FullName, cur.Bio, cur.Avatar, id,
	)
	if isUniqueErr(err, "users.user_name") {
		return models.User{}, ErrUsernameTaken
	}
	if err != nil {
		return models.User{}, fmt.Errorf("auth: update profile: %w", err)
	}
	return cur, nil
}

// ----------------------------
// Helpers
// ----------------------------

func isUniqueErr(err error, col string) bool {
	// SQLite: "UNIQUE constraint failed: table.column"
	// Postgres: `duplicate key value violates unique constraint "table_column_key"`
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	col = strings.ToLower(col)
	if strings.Contains(msg, "unique constraint failed") && strings.Contains(msg, col) {
		return true
	}
	return strings.Contains(msg, "duplicate key") && strings.Contains(msg, strings.ReplaceAll(col, ".", "_"))
}
