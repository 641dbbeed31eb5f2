package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"blogclient/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid session token")

// claims is the session token payload: the session id plus enough of the
// user to answer verify-token without a profile lookup.
type claims struct {
	jwt.RegisteredClaims
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// Signer issues and checks HS256 session tokens.
type Signer struct {
	Secret []byte
	Now    func() time.Time
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Issue signs a token for session sid of user u.
func (s Signer) Issue(sid string, u models.User, exp time.Time) (string, error) {
	if len(s.Secret) == 0 {
		return "", errors.New("auth: token secret is not configured")
	}
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sid,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		UserName: u.UserName,
		Email:    u.Email,
		Role:     u.Role,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return tok, nil
}

// Parse checks the signature and expiry and returns the principal the
// token names. It does not consult the session table.
func (s Signer) Parse(token string) (Principal, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.ID == "" || c.Subject == "" {
		return Principal{}, fmt.Errorf("%w: missing session or subject", ErrInvalidToken)
	}
	return Principal{
		SessionID: c.ID,
		UserID:    c.Subject,
		UserName:  c.UserName,
		Email:     c.Email,
		Role:      c.Role,
	}, nil
}

// Verify parses token and checks that its session is still live.
func (s Signer) Verify(ctx context.Context, db *sql.DB, token string) (Principal, error) {
	p, err := s.Parse(token)
	if err != nil {
		return Principal{}, err
	}
	uid, exp, err := UserFromSession(ctx, db, p.SessionID)
	if err != nil {
		return Principal{}, err
	}
	if uid != p.UserID || !exp.After(s.now()) {
		return Principal{}, ErrNoSession
	}
	return p, nil
}
