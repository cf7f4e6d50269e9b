package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

var pragmas = []string{
	"PRAGMA journal_mode = WAL;",
	"PRAGMA busy_timeout = 5000;",
	"PRAGMA synchronous = NORMAL;",
}

const schemaRigState = `
CREATE TABLE IF NOT EXISTS rig_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    captured_at TIMESTAMP NOT NULL,
    device TEXT NOT NULL,
    shot TEXT NOT NULL,
    saved_at TIMESTAMP NOT NULL
);
`

// InitDB opens (or creates) the checkpoint database at path and brings its schema up to date.
func InitDB(path string) (*sql.DB, error) {
	conn, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	// One writer, one row.
	conn.SetMaxOpenConns(1)

	if err := prepare(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func prepare(conn *sql.DB) error {
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			return fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	var version int
	if err := conn.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case version == schemaVersion:
		return nil
	case version > schemaVersion:
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, schemaVersion)
	}

	if _, err := conn.Exec(schemaRigState); err != nil {
		return fmt.Errorf("create rig_state: %w", err)
	}
	// PRAGMA does not take bind parameters.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d;", schemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}
