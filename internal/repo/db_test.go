package repo

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-location-digest/internal/domain"
)

func TestOpenSQLite_MissingParentDir(t *testing.T) {
	bad := filepath.Join(t.TempDir(), "missing", "digest.db")
	db, err := OpenSQLite(bad)
	if db != nil || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("OpenSQLite(%q) = %v, %v; want fs.ErrNotExist", bad, db, err)
	}
}

func TestOpenSQLite_PragmasOnEveryConnection(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "digest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if got := sqlDB.Stats().MaxOpenConnections; got != 10 {
		t.Fatalf("MaxOpenConnections = %d; want 10", got)
	}

	// Two connections held at once: the second is fresh from the pool.
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		defer conn.Close()

		var mode string
		var busy, sync, fk int
		for pragma, dst := range map[string]any{
			"journal_mode": &mode, "busy_timeout": &busy, "synchronous": &sync, "foreign_keys": &fk,
		} {
			if err := conn.QueryRowContext(ctx, "PRAGMA "+pragma).Scan(dst); err != nil {
				t.Fatalf("conn %d PRAGMA %s: %v", i, pragma, err)
			}
		}
		if !strings.EqualFold(mode, "wal") || busy != 5000 || sync != 1 || fk != 1 {
			t.Fatalf("conn %d: journal_mode=%s busy_timeout=%d synchronous=%d foreign_keys=%d", i, mode, busy, sync, fk)
		}
	}
}

func TestAutoMigrate_CreatesEventAndDigestTables(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "digest.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.Event{}, &domain.Digest{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T", tbl)
		}
	}

	ev := mkEvent("e1", "location", time.Now().UTC())
	if ok, err := InsertEventIfAbsent(context.Background(), db, ev); err != nil || !ok {
		t.Fatalf("insert event: ok=%v err=%v", ok, err)
	}
}

func TestOpen_SelectsDriver(t *testing.T) {
	if _, err := Open(Options{Driver: "mysql"}); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported driver error, got %v", err)
	}
	if _, err := Open(Options{Driver: "postgres", URL: "  "}); err == nil {
		t.Fatalf("expected error for empty postgres DSN")
	}

	db, err := Open(Options{Driver: "SQLite", Path: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if err := Ping(context.Background(), db); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPing_FailsOnClosedPool(t *testing.T) {
	db := newRepoDB(t)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()
	if err := Ping(context.Background(), db); err == nil {
		t.Fatalf("expected ping error after close")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
