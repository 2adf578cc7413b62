package db

import (
	"fmt"
	"strings"
)

// sqliteSchema is the full SQLite database schema.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'supervisor', 'member')),
    unit_id       TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS holders (
    id         TEXT PRIMARY KEY,
    unit_id    TEXT NOT NULL,
    name       TEXT NOT NULL,
    rank       TEXT NOT NULL DEFAULT '',
    user_id    TEXT NOT NULL DEFAULT '',
    version    INTEGER NOT NULL DEFAULT 1,
    deleted    BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS equipment_groups (
    id         TEXT PRIMARY KEY,
    unit_id    TEXT NOT NULL,
    name       TEXT NOT NULL,
    version    INTEGER NOT NULL DEFAULT 1,
    deleted    BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS equipment (
    id                 TEXT PRIMARY KEY,
    unit_id            TEXT NOT NULL,
    nsn                TEXT NOT NULL,
    nomenclature       TEXT NOT NULL DEFAULT '',
    serial_number      TEXT NOT NULL DEFAULT '',
    stock_number       TEXT NOT NULL DEFAULT '',
    location           TEXT NOT NULL DEFAULT '',
    holder_id          TEXT NOT NULL DEFAULT '',
    maintenance_status TEXT NOT NULL DEFAULT 'OPERATIONAL'
        CHECK (maintenance_status IN ('OPERATIONAL', 'DEGRADED', 'NON_MISSION_CAPABLE', 'IN_MAINTENANCE')),
    is_grouped         BOOLEAN NOT NULL DEFAULT 0,
    group_id           TEXT NOT NULL DEFAULT '',
    version            INTEGER NOT NULL DEFAULT 1,
    deleted            BOOLEAN NOT NULL DEFAULT 0,
    created_at         DATETIME NOT NULL,
    updated_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equipment_unit ON equipment(unit_id);
CREATE INDEX IF NOT EXISTS idx_equipment_nsn_serial ON equipment(nsn, serial_number);

CREATE TABLE IF NOT EXISTS sessions (
    id                  TEXT PRIMARY KEY,
    unit_id             TEXT NOT NULL,
    conducted_by        TEXT NOT NULL,
    status              TEXT NOT NULL CHECK (status IN ('ACTIVE', 'COMPLETED')),
    started_at          DATETIME NOT NULL,
    completed_at        DATETIME,
    item_count          INTEGER NOT NULL,
    accounted_for_count INTEGER NOT NULL DEFAULT 0,
    version             INTEGER NOT NULL DEFAULT 1,
    deleted             BOOLEAN NOT NULL DEFAULT 0,
    created_at          DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_unit_status ON sessions(unit_id, status);

CREATE TABLE IF NOT EXISTS accountability_items (
    id                  TEXT PRIMARY KEY,
    session_id          TEXT NOT NULL REFERENCES sessions(id),
    equipment_id        TEXT NOT NULL REFERENCES equipment(id),
    status              TEXT NOT NULL
        CHECK (status IN ('NOT_ACCOUNTED_FOR', 'VERIFICATION_PENDING', 'ACCOUNTED_FOR')),
    verification_method TEXT NOT NULL CHECK (verification_method IN ('DIRECT', 'SELF_SERVICE')),
    verified_by         TEXT NOT NULL DEFAULT '',
    verified_at         DATETIME,
    confirmation_status TEXT NOT NULL DEFAULT '',
    confirmed_by        TEXT NOT NULL DEFAULT '',
    version             INTEGER NOT NULL DEFAULT 1,
    deleted             BOOLEAN NOT NULL DEFAULT 0,
    created_at          DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_items_session ON accountability_items(session_id);
`

// postgresSchema derives the Postgres schema from the SQLite one; only the
// column types that differ are rewritten.
var postgresSchema = strings.NewReplacer(
	"INTEGER PRIMARY KEY", "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
	"DATETIME", "TIMESTAMPTZ",
	"BOOLEAN NOT NULL DEFAULT 0", "BOOLEAN NOT NULL DEFAULT FALSE",
).Replace(sqliteSchema)

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *DB) error {
	schema := sqliteSchema
	if db.Dialect == Postgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.DB.Exec(stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
