package migrate

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestLoadMigrationsOrdered(t *testing.T) {
	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatalf("no embedded migrations")
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].version >= migrations[i].version {
			t.Fatalf("versions out of order: %s before %s", migrations[i-1].name, migrations[i].name)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	if err := Migrate(conn); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if version == 0 {
		t.Fatalf("no migrations applied")
	}
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM journeys`).Scan(&n); err != nil {
		t.Fatalf("schema missing journeys table: %v", err)
	}
}
