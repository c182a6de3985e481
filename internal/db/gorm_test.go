package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenGormSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suwatha.db")
	gdb, err := OpenGorm("sqlite", path, nil)
	if err != nil {
		t.Fatalf("open gorm sqlite: %v", err)
	}
	var fk int
	if err := gdb.Raw("PRAGMA foreign_keys").Scan(&fk).Error; err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("expected foreign keys enabled, got %d", fk)
	}
	if err := Close(gdb); err != nil {
		t.Fatalf("close db: %v", err)
	}
}

func TestOpenGormInvalidDriver(t *testing.T) {
	if _, err := OpenGorm("invalid", "x", nil); err == nil {
		t.Fatalf("expected invalid driver error")
	}
}

func TestOpenGormPostgresRequiresDSN(t *testing.T) {
	if _, err := OpenGorm("postgres", " ", nil); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestOpenGormSQLiteCreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "path", "suwatha.db")

	gdb, err := OpenGorm("sqlite", dbPath, nil)
	if err != nil {
		t.Fatalf("open gorm sqlite: %v", err)
	}
	t.Cleanup(func() { _ = Close(gdb) })

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Fatalf("expected parent dir to be created: %v", err)
	}
}

func TestSQLiteFilePath(t *testing.T) {
	cases := []struct {
		dsn  string
		path string
		ok   bool
	}{
		{":memory:", "", false},
		{"file::memory:?cache=shared", "", false},
		{"file:data/app.db?mode=memory", "", false},
		{"data/app.db?_pragma=busy_timeout(100)", "data/app.db", true},
		{"file:/tmp/app.db", "/tmp/app.db", true},
	}
	for _, tc := range cases {
		path, ok := sqliteFilePath(tc.dsn)
		if path != tc.path || ok != tc.ok {
			t.Fatalf("sqliteFilePath(%q) = (%q, %v), want (%q, %v)", tc.dsn, path, ok, tc.path, tc.ok)
		}
	}
}
