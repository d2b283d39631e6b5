// Package store is the SQLite-backed persistent store (schema V2):
// blocks, transaction outputs/inputs, enriched transactions, burn patterns,
// and the two classification tables.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/deadmanoz/p2ms-forensics/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const busyTimeoutMs = 5000

// Store wraps the single writer connection every stage shares. Readers
// (analytics, out of scope here) are expected to open their own read-only
// connections against the same file and never contend with the write path.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the SQLite database at path with WAL
// mode and a busy timeout, then applies any pending migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, config.NewError(config.KindIo, "create database directory", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL", path, busyTimeoutMs)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, config.NewError(config.KindDb, "open database", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, config.NewError(config.KindDb, "ping database", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, config.NewError(config.KindDb, "enable WAL", err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMs)); err != nil {
		conn.Close()
		return nil, config.NewError(config.KindDb, "set busy_timeout", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, config.NewError(config.KindDb, "enable foreign keys", err)
	}

	// SQLite has a single writer; the store serialises all writes through
	// one connection so stage orchestrators never need their own locking.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	s := &Store{db: conn, path: path}
	if err := s.runMigrations(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("[Store] opened %s", path)
	return s, nil
}

func (s *Store) Close() error {
	log.Printf("[Store] closing %s", s.path)
	return s.db.Close()
}

// Conn exposes the underlying *sql.DB for callers that need raw queries not
// otherwise wrapped by Store.
func (s *Store) Conn() *sql.DB { return s.db }

func (s *Store) runMigrations() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`); err != nil {
		return config.NewError(config.KindDb, "create schema_migrations", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return config.NewError(config.KindDb, "read embedded migrations", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d", &version); err != nil {
			log.Printf("[Store] skipping migration with unparseable version: %s", entry.Name())
			continue
		}

		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&count); err != nil {
			return config.NewError(config.KindDb, "check migration status", err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return config.NewError(config.KindDb, "read migration "+entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return config.NewError(config.KindDb, "begin migration tx", err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return config.NewError(config.KindDb, "apply migration "+entry.Name(), err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return config.NewError(config.KindDb, "record migration "+entry.Name(), err)
		}
		if err := tx.Commit(); err != nil {
			return config.NewError(config.KindDb, "commit migration "+entry.Name(), err)
		}
		log.Printf("[Store] applied migration %d (%s)", version, entry.Name())
	}
	return nil
}
