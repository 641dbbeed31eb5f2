package db

import (
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Driver picks the database/sql driver for a DSN: pgx for postgres URLs,
// sqlite3 for everything else.
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "sqlite3"
}

// Open abre la base de datos; en SQLite aplica las PRAGMA recomendadas.
func Open(dsn string) (*sql.DB, error) {
	driver := Driver(dsn)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if driver != "sqlite3" {
		return db, nil
	}

	// In-memory databases live per connection.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	_, _ = db.Exec(`PRAGMA journal_mode=WAL;`)  // lectores no bloquean al escritor
	_, _ = db.Exec(`PRAGMA busy_timeout=3000;`) // espera hasta 3s antes de "database is locked"
	_, _ = db.Exec(`PRAGMA foreign_keys=ON;`)
	return db, nil
}
