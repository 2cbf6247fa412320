package journal

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db")+"?_journal_mode=WAL")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations_FreshDB(t *testing.T) {
	db := testDB(t)
	if err := runMigrations(db, testJournalLogger()); err != nil {
		t.Fatalf("runMigrations failed: %v", err)
	}
	v, err := currentVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, v)
	}

	for _, name := range []string{"dispatches", "schema_version", "idx_dispatches_action"} {
		var n int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&n)
		if n != 1 {
			t.Errorf("expected %s to exist", name)
		}
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := testDB(t)
	logger := testJournalLogger()
	if err := runMigrations(db, logger); err != nil {
		t.Fatal(err)
	}
	if err := runMigrations(db, logger); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	var rows int
	db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows)
	if rows != len(migrations) {
		t.Errorf("expected %d recorded migrations, got %d", len(migrations), rows)
	}
}

func TestRunMigrations_UpgradesFromV1(t *testing.T) {
	db := testDB(t)
	logger := testJournalLogger()

	all := migrations
	migrations = all[:1]
	err := runMigrations(db, logger)
	migrations = all
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := currentVersion(db); v != 1 {
		t.Fatalf("expected v1, got %d", v)
	}

	if err := runMigrations(db, logger); err != nil {
		t.Fatalf("upgrade failed: %v", err)
	}
	if v, _ := currentVersion(db); v != schemaVersion {
		t.Fatalf("expected v%d after upgrade, got %d", schemaVersion, v)
	}
}
