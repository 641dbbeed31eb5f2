package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schema string

// Migrate applies the embedded backend schema.
func Migrate(db *sql.DB) error {
	return Exec(db, schema)
}

// Exec runs a script statement by statement, so it works on drivers that
// reject multi-statement Exec calls.
func Exec(db *sql.DB, script string) error {
	for _, stmt := range Statements(script) {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Statements splits a script on semicolons and drops blanks and
// comment-only chunks.
func Statements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		var lines []string
		for _, l := range strings.Split(chunk, "\n") {
			if t := strings.TrimSpace(l); t != "" && !strings.HasPrefix(t, "--") {
				lines = append(lines, l)
			}
		}
		if stmt := strings.TrimSpace(strings.Join(lines, "\n")); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
