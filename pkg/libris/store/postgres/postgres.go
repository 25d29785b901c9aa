// Package postgres stores the catalog in PostgreSQL. Records and group
// members are kept as JSONB so unknown fields survive.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
)

// Options configures the connection.
type Options struct {
	DSN string
	// Schema holds the libris tables. Empty means the search path default.
	Schema string
}

// Repo implements store.Store, store.GroupReader and store.RunRecorder.
type Repo struct {
	pool   *pgxpool.Pool
	tables tableNames
}

var (
	_ store.Store       = (*Repo)(nil)
	_ store.GroupReader = (*Repo)(nil)
	_ store.RunRecorder = (*Repo)(nil)
)

type tableNames struct {
	records, groups, members, runs, state string
}

func newTableNames(schema string) tableNames {
	q := func(name string) string {
		if schema == "" {
			return pgx.Identifier{name}.Sanitize()
		}
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return tableNames{
		records: q("libris_records"),
		groups:  q("libris_groups"),
		members: q("libris_group_members"),
		runs:    q("libris_runs"),
		state:   q("libris_state"),
	}
}

// Open connects and creates the tables if needed.
func Open(ctx context.Context, opts Options) (*Repo, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres: dsn is required: %w", internalerr.ErrInvalidConfig)
	}
	pool, err := pgxpool.New(ctx, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	r := &Repo{pool: pool, tables: newTableNames(opts.Schema)}
	if err := r.initSchema(ctx, opts.Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %v: %w", err, internalerr.ErrStoreUnavailable)
	}
	return r, nil
}

// Close closes the connection pool.
func (r *Repo) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repo) initSchema(ctx context.Context, schema string) error {
	for _, stmt := range schemaStatements(schema, r.tables) {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// schemaStatements is the DDL for one schema. It is pure so it can be
// checked without a database.
func schemaStatements(schema string, t tableNames) []string {
	var stmts []string
	if schema != "" {
		stmts = append(stmts, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{schema}.Sanitize())
	}
	return append(stmts,
		`CREATE TABLE IF NOT EXISTS `+t.records+` (
	position INTEGER PRIMARY KEY,
	filename TEXT,
	title TEXT,
	body JSONB NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS `+t.groups+` (
	tbl TEXT NOT NULL,
	id TEXT NOT NULL,
	position INTEGER NOT NULL,
	label TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	cover_url TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tbl, id)
)`,
		`CREATE TABLE IF NOT EXISTS `+t.members+` (
	tbl TEXT NOT NULL,
	group_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	body JSONB NOT NULL,
	PRIMARY KEY (tbl, group_id, position),
	FOREIGN KEY (tbl, group_id) REFERENCES `+t.groups+` (tbl, id) ON DELETE CASCADE
)`,
		`CREATE TABLE IF NOT EXISTS `+t.runs+` (
	id TEXT PRIMARY KEY,
	tbl TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	records INTEGER NOT NULL,
	groups_count INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS `+t.state+` (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`,
	)
}

// LoadRecords returns the catalog in position order.
func (r *Repo) LoadRecords(ctx context.Context) ([]catalog.Record, error) {
	var saved string
	err := r.pool.QueryRow(ctx, `SELECT value FROM `+r.tables.state+` WHERE key = 'records_saved_at'`).Scan(&saved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internalerr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT body::text FROM `+r.tables.records+` ORDER BY position`)
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
		if err := rec.UnmarshalJSON([]byte(body)); err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveRecords replaces the catalog in one transaction.
func (r *Repo) SaveRecords(ctx context.Context, records []catalog.Record) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+r.tables.records); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		insert := `INSERT INTO ` + r.tables.records + ` (position, filename, title, body) VALUES ($1, $2, $3, $4::jsonb)`
		for i, rec := range records {
			body, err := store.MarshalRecord(rec)
			if err != nil {
				return fmt.Errorf("encode record %d: %w", i, err)
			}
			batch.Queue(insert, i, rec.Filename(), rec.Title(), string(body))
		}
		batch.Queue(`INSERT INTO `+r.tables.state+` (key, value) VALUES ('records_saved_at', now()::text)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`)
		return tx.SendBatch(ctx, batch).Close()
	})
}

// SaveGroups replaces the groups of table in one transaction.
func (r *Repo) SaveGroups(ctx context.Context, table string, groups []catalog.Group) error {
	if table == "" {
		return fmt.Errorf("save groups: empty table name: %w", internalerr.ErrInvalidInput)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM `+r.tables.groups+` WHERE tbl = $1`, table); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		insertGroup := `INSERT INTO ` + r.tables.groups + ` (tbl, id, position, label, description, cover_url) VALUES ($1, $2, $3, $4, $5, $6)`
		insertMember := `INSERT INTO ` + r.tables.members + ` (tbl, group_id, position, body) VALUES ($1, $2, $3, $4::jsonb)`
		for i, g := range groups {
			batch.Queue(insertGroup, table, g.ID, i, g.Label, g.Description, g.CoverURL)
			for j, rec := range g.Books {
				body, err := store.MarshalRecord(rec)
				if err != nil {
					return fmt.Errorf("encode member %d of %q: %w", j, g.ID, err)
				}
				batch.Queue(insertMember, table, g.ID, j, string(body))
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// LoadGroups returns the groups of table in their saved order.
func (r *Repo) LoadGroups(ctx context.Context, table, idKey, labelKey string) ([]catalog.Group, error) {
	rows, err := r.pool.Query(ctx, `
SELECT g.id, g.label, g.description, g.cover_url, m.body::text
FROM `+r.tables.groups+` g
LEFT JOIN `+r.tables.members+` m ON m.tbl = g.tbl AND m.group_id = g.id
WHERE g.tbl = $1
ORDER BY g.position, m.position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []catalog.Group
	for rows.Next() {
		var (
			id, label, desc, cover string
			body                   *string
		)
		if err := rows.Scan(&id, &label, &desc, &cover, &body); err != nil {
			return nil, err
		}
		if len(groups) == 0 || groups[len(groups)-1].ID != id {
			groups = append(groups, catalog.Group{
				ID:          id,
				Label:       label,
				Description: desc,
				CoverURL:    cover,
				Books:       []catalog.Record{},
				IDKey:       idKey,
				LabelKey:    labelKey,
			})
		}
		if body == nil {
			continue
		}
		var rec catalog.Record
		if err := rec.UnmarshalJSON([]byte(*body)); err != nil {
			return nil, fmt.Errorf("decode member of %q: %w", id, err)
		}
		g := &groups[len(groups)-1]
		g.Books = append(g.Books, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("groups for table %q: %w", table, internalerr.ErrNotFound)
	}
	return groups, nil
}

// RecordRun stores a run summary.
func (r *Repo) RecordRun(ctx context.Context, run store.Run) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO `+r.tables.runs+` (id, tbl, started_at, records, groups_count, duration_ms) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Table, run.StartedAt.UTC(), run.Records, run.Groups, run.Duration.Milliseconds(),
	)
	return err
}

// Runs returns the most recent runs first.
func (r *Repo) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, tbl, started_at, records, groups_count, duration_ms FROM `)
	b.WriteString(r.tables.runs)
	b.WriteString(` ORDER BY id DESC`)
	args := []any{}
	if limit > 0 {
		b.WriteString(` LIMIT $1`)
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Run, error) {
		var (
			run        store.Run
			durationMS int64
		)
		err := row.Scan(&run.ID, &run.Table, &run.StartedAt, &run.Records, &run.Groups, &durationMS)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		return run, err
	})
}
