// Package cookiestore keeps a cookie jar's contents for one backend in a
// SQL table, so a CLI session survives between invocations.
package cookiestore

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"blogclient/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS cookies (
  host       TEXT NOT NULL,
  name       TEXT NOT NULL,
  value      TEXT NOT NULL,
  updated_at TIMESTAMP NOT NULL,
  PRIMARY KEY (host, name)
);
`

// Jar is the part of http.CookieJar the store reads and writes.
type Jar interface {
	SetCookies(u *url.URL, cookies []*http.Cookie)
	Cookies(u *url.URL) []*http.Cookie
}

type Store struct {
	DB *sql.DB
}

// Open opens (and creates if needed) the cookie database at dsn.
func Open(dsn string) (*Store, error) {
	d, err := db.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("cookiestore: open: %w", err)
	}
	if err := db.Exec(d, schema); err != nil {
		d.Close()
		return nil, fmt.Errorf("cookiestore: %w", err)
	}
	return &Store{DB: d}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Load puts the cookies saved for base's host into jar.
func (s *Store) Load(ctx context.Context, jar Jar, base *url.URL) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT name, value FROM cookies WHERE host = $1 ORDER BY name`, base.Host)
	if err != nil {
		return fmt.Errorf("cookiestore: load: %w", err)
	}
	defer rows.Close()

	var cookies []*http.Cookie
	for rows.Next() {
		c := &http.Cookie{Path: "/"}
		if err := rows.Scan(&c.Name, &c.Value); err != nil {
			return fmt.Errorf("cookiestore: load: %w", err)
		}
		cookies = append(cookies, c)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("cookiestore: load: %w", err)
	}
	if len(cookies) > 0 {
		jar.SetCookies(base, cookies)
	}
	return nil
}

// Save replaces the stored cookies for base's host with what jar would
// send to base now. An empty jar clears the host.
func (s *Store) Save(ctx context.Context, jar Jar, base *url.URL) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cookiestore: save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cookies WHERE host = $1`, base.Host); err != nil {
		return fmt.Errorf("cookiestore: save: %w", err)
	}
	now := time.Now().UTC()
	seen := map[string]bool{}
	for _, c := range jar.Cookies(base) {
		// Cookies lists the most specific path first.
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cookies (host, name, value, updated_at) VALUES ($1, $2, $3, $4)`,
			base.Host, c.Name, c.Value, now,
		); err != nil {
			return fmt.Errorf("cookiestore: save %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}
