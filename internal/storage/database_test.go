package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"coralbricks/internal/config"
)

func TestOpenAndMigrateSQLite(t *testing.T) {
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// migrations are idempotent
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	for _, table := range []string{"users", "user_tokens", "contact_submissions"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{"oracle": {DSN: "x"}},
	}
	if _, err := Open("oracle", cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("sqlite3", cfg); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestOpenCreatesDefaultSQLiteDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open default sqlite: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, config.DefaultSQLiteDSN)); err != nil {
		t.Fatalf("database file not created: %v", err)
	}
}

func TestForeignKeysOnEveryConnection(t *testing.T) {
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: filepath.Join(t.TempDir(), "nested", "fk.db")},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	// hold one connection so the next queries use a second one
	held, err := db.Conn(ctx)
	if err != nil {
		t.Fatalf("conn: %v", err)
	}
	defer held.Close()
	var on int
	if err := held.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&on); err != nil || on != 1 {
		t.Fatalf("held connection foreign_keys=%d err=%v", on, err)
	}
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil || on != 1 {
		t.Fatalf("pooled connection foreign_keys=%d err=%v", on, err)
	}

	now := time.Now().UTC()
	if _, err := db.Exec(`INSERT INTO users (id, email, display_name, password_hash, created_at) VALUES (1, 'fk@example.com', '', '', ?)`, now); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO user_tokens (token, user_id, created_at, expires_at) VALUES ('tok', 1, ?, ?)`, now, now.Add(time.Hour)); err != nil {
		t.Fatalf("insert token: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM users WHERE id = 1`); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens`).Scan(&count); err != nil || count != 0 {
		t.Fatalf("tokens not cascaded: count=%d err=%v", count, err)
	}
}

func TestSQLiteDir(t *testing.T) {
	cases := map[string]string{
		":memory:":                     "",
		"file::memory:?cache=shared":   "",
		"file:x.db?mode=memory":        "",
		"app.db":                       "",
		"data/app.db":                  "data",
		"file:/srv/db/app.db?cache=ro": "/srv/db",
	}
	for dsn, want := range cases {
		if got := sqliteDir(dsn); got != want {
			t.Fatalf("sqliteDir(%q) = %q, want %q", dsn, got, want)
		}
	}
	if got := withForeignKeys("a.db?cache=shared"); got != "a.db?cache=shared&_foreign_keys=on" {
		t.Fatalf("unexpected dsn %q", got)
	}
}
