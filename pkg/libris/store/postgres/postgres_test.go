package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
)

func TestTableNamesQuoted(t *testing.T) {
	plain := newTableNames("")
	if plain.records != `"libris_records"` {
		t.Errorf("unexpected records table %s", plain.records)
	}

	scoped := newTableNames(`my"lib`)
	if scoped.groups != `"my""lib"."libris_groups"` {
		t.Errorf("schema must be quoted and escaped, got %s", scoped.groups)
	}
}

func TestSchemaStatements(t *testing.T) {
	stmts := schemaStatements("", newTableNames(""))
	if len(stmts) != 5 {
		t.Fatalf("expected 5 statements without schema, got %d", len(stmts))
	}
	for _, s := range stmts {
		if !strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("statement is not idempotent: %s", s)
		}
	}

	scoped := schemaStatements("catalog", newTableNames("catalog"))
	if len(scoped) != 6 || scoped[0] != `CREATE SCHEMA IF NOT EXISTS "catalog"` {
		t.Errorf("expected schema creation first, got %v", scoped[0])
	}
	if !strings.Contains(scoped[3], `REFERENCES "catalog"."libris_groups"`) {
		t.Errorf("members must reference the scoped groups table:\n%s", scoped[3])
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{})
	if !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

// TestPostgresIntegration runs against a live database when
// LIBRIS_POSTGRES_DSN is set.
func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("LIBRIS_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LIBRIS_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	schema := "libris_test_" + strings.ToLower(time.Now().Format("150405"))

	repo, err := Open(ctx, Options{DSN: dsn, Schema: schema})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		_, _ = repo.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
		repo.Close()
	}()

	if _, err := repo.LoadRecords(ctx); !errors.Is(err, internalerr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first save, got %v", err)
	}

	records := []catalog.Record{
		catalog.NewRecord("DK_Eyewitness_Egypt.pdf", "Egypt", ""),
		catalog.NewRecord("Unknown_Book.pdf", "", ""),
	}
	if err := repo.SaveRecords(ctx, records); err != nil {
		t.Fatalf("SaveRecords: %v", err)
	}
	got, err := repo.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("LoadRecords: %v", err)
	}
	if len(got) != 2 || got[0].Filename() != "DK_Eyewitness_Egypt.pdf" || got[0].Title() != "Egypt" {
		t.Errorf("unexpected records: %+v", got)
	}

	groups := []catalog.Group{
		{ID: "dk_eyewitness", Label: "DK Eyewitness", Books: records[:1]},
		{ID: "others_book", Label: "Others Book", Books: records[1:]},
	}
	if err := repo.SaveGroups(ctx, "series", groups); err != nil {
		t.Fatalf("SaveGroups: %v", err)
	}
	loaded, err := repo.LoadGroups(ctx, "series", "seriesId", "seriesName")
	if err != nil {
		t.Fatalf("LoadGroups: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "dk_eyewitness" || loaded[1].Len() != 1 {
		t.Errorf("unexpected groups: %+v", loaded)
	}

	run := store.Run{ID: "01J0000000000000000000000A", Table: "series", StartedAt: time.Now(), Records: 2, Groups: 2, Duration: time.Second}
	if err := repo.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	runs, err := repo.Runs(ctx, 10)
	if err != nil || len(runs) != 1 || runs[0].Duration != time.Second {
		t.Errorf("Runs = %+v, %v", runs, err)
	}
}
