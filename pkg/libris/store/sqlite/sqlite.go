package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
)

// sqliteStore implements store.Store, store.GroupReader and
// store.RunRecorder using SQLite.
type sqliteStore struct {
	db *sql.DB
}

// Store is the full set of capabilities of the SQLite backend.
type Store interface {
	store.Store
	store.GroupReader
	store.RunRecorder
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Enable foreign keys
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS records (
	position INTEGER PRIMARY KEY,
	filename TEXT,
	title TEXT,
	body TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS record_groups (
	tbl TEXT NOT NULL,
	id TEXT NOT NULL,
	position INTEGER NOT NULL,
	label TEXT NOT NULL,
	description TEXT,
	cover_url TEXT,
	PRIMARY KEY(tbl, id)
);

CREATE TABLE IF NOT EXISTS group_members (
	tbl TEXT NOT NULL,
	group_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY(tbl, group_id, position),
	FOREIGN KEY(tbl, group_id) REFERENCES record_groups(tbl, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	tbl TEXT NOT NULL,
	started_at TEXT NOT NULL,
	records INTEGER NOT NULL,
	groups_count INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS catalog_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

	_, err := db.ExecContext(ctx, schema)
	return err
}

// LoadRecords returns records in position order. ErrNotFound means no
// catalog has been saved yet; a saved empty catalog loads as an empty slice.
func (s *sqliteStore) LoadRecords(ctx context.Context) ([]catalog.Record, error) {
	var savedAt string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM catalog_state WHERE key='records_saved_at'`).Scan(&savedAt)
	if err == sql.ErrNoRows {
		return nil, internalerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT body FROM records ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []catalog.Record{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec catalog.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveRecords replaces the catalog in one transaction.
func (s *sqliteStore) SaveRecords(ctx context.Context, records []catalog.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return err
	}

	if len(records) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (position, filename, title, body) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, rec := range records {
			body, err := store.MarshalRecord(rec)
			if err != nil {
				return fmt.Errorf("encode record %d: %w", i, err)
			}
			if _, err := stmt.ExecContext(ctx, i, rec.Filename(), rec.Title(), string(body)); err != nil {
				return err
			}
		}
	}

	const mark = `
INSERT INTO catalog_state (key, value) VALUES ('records_saved_at', ?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value`
	if _, err := tx.ExecContext(ctx, mark, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	return tx.Commit()
}

// SaveGroups replaces the groups of table in one transaction.
func (s *sqliteStore) SaveGroups(ctx context.Context, table string, groups []catalog.Group) error {
	if table == "" {
		return fmt.Errorf("save groups: empty table name: %w", internalerr.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// foreign_keys is per connection, so members are not left to the cascade.
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE tbl=?`, table); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM record_groups WHERE tbl=?`, table); err != nil {
		return err
	}

	groupStmt, err := tx.PrepareContext(ctx, `
INSERT INTO record_groups (tbl, id, position, label, description, cover_url)
VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer groupStmt.Close()

	memberStmt, err := tx.PrepareContext(ctx, `INSERT INTO group_members (tbl, group_id, position, body) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer memberStmt.Close()

	for i, g := range groups {
		if _, err := groupStmt.ExecContext(ctx, table, g.ID, i, g.Label, g.Description, g.CoverURL); err != nil {
			return fmt.Errorf("insert group %q: %w", g.ID, err)
		}
		for j, rec := range g.Books {
			body, err := store.MarshalRecord(rec)
			if err != nil {
				return fmt.Errorf("encode member %d of %q: %w", j, g.ID, err)
			}
			if _, err := memberStmt.ExecContext(ctx, table, g.ID, j, string(body)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// LoadGroups returns the groups of table in their saved order.
func (s *sqliteStore) LoadGroups(ctx context.Context, table, idKey, labelKey string) ([]catalog.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, label, description, cover_url
FROM record_groups
WHERE tbl=?
ORDER BY position`, table)
	if err != nil {
		return nil, err
	}

	var groups []catalog.Group
	index := make(map[string]int)
	for rows.Next() {
		var (
			g           catalog.Group
			desc, cover sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Label, &desc, &cover); err != nil {
			rows.Close()
			return nil, err
		}
		g.Description = desc.String
		g.CoverURL = cover.String
		g.IDKey = idKey
		g.LabelKey = labelKey
		g.Books = []catalog.Record{}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("groups for table %q: %w", table, internalerr.ErrNotFound)
	}

	members, err := s.db.QueryContext(ctx, `
SELECT group_id, body
FROM group_members
WHERE tbl=?
ORDER BY group_id, position`, table)
	if err != nil {
		return nil, err
	}
	defer members.Close()

	for members.Next() {
		var groupID, body string
		if err := members.Scan(&groupID, &body); err != nil {
			return nil, err
		}
		gi, ok := index[groupID]
		if !ok {
			continue
		}
		var rec catalog.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, fmt.Errorf("decode member of %q: %w", groupID, err)
		}
		groups[gi].Books = append(groups[gi].Books, rec)
	}
	return groups, members.Err()
}

// RecordRun stores a run summary.
func (s *sqliteStore) RecordRun(ctx context.Context, run store.Run) error {
	const stmt = `
INSERT INTO runs (id, tbl, started_at, records, groups_count, duration_ms)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		run.ID,
		run.Table,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Records,
		run.Groups,
		run.Duration.Milliseconds(),
	)
	return err
}

// Runs returns the most recent runs first. Run ids are ULIDs, so ordering
// by id is ordering by start time.
func (s *sqliteStore) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	query := `SELECT id, tbl, started_at, records, groups_count, duration_ms FROM runs ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var (
			r          store.Run
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.Table, &startedAt, &r.Records, &r.Groups, &durationMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			r.StartedAt = t
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
