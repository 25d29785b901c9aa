package libris

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/libris/pkg/libris/analytics"
	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/classify"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/maintenance"
	"github.com/cognicore/libris/pkg/libris/store"
)

// Libris classifies a book catalog with named rule tables and persists the
// enriched records and per-table groups.
type Libris struct {
	store       store.Store
	classifiers map[string]*classify.Classifier
	tables      []string
	logger      *slog.Logger
	workers     int

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// Options configures a Libris instance
type Options struct {
	Store       store.Store
	Classifiers map[string]*classify.Classifier
	// Tables fixes the order used by RunAll. Defaults to the sorted
	// classifier names.
	Tables  []string
	Logger  *slog.Logger
	Workers int
}

// New creates a Libris instance with the given dependencies
func New(opts Options) *Libris {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tables := opts.Tables
	if len(tables) == 0 {
		tables = sortedKeys(opts.Classifiers)
	}
	return &Libris{
		store:       opts.Store,
		classifiers: opts.Classifiers,
		tables:      append([]string(nil), tables...),
		logger:      logger,
		workers:     opts.Workers,
		entropy:     ulid.Monotonic(rand.Reader, 0),
		now:         time.Now,
	}
}

// Close cleanly shuts down the store
func (l *Libris) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// Tables lists the configured rule tables in run order.
func (l *Libris) Tables() []string {
	return append([]string(nil), l.tables...)
}

// Classifier returns the compiled classifier of a table.
func (l *Libris) Classifier(table string) (*classify.Classifier, error) {
	c, ok := l.classifiers[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q: %w", table, internalerr.ErrInvalidInput)
	}
	return c, nil
}

// Summary describes a completed run.
type Summary struct {
	RunID     string
	Table     string
	StartedAt time.Time
	Records   int
	Groups    int
	Defaults  int
	Duration  time.Duration
}

// Preview loads the catalog and classifies it with table without saving.
func (l *Libris) Preview(ctx context.Context, table string) (catalog.Result, error) {
	c, err := l.Classifier(table)
	if err != nil {
		return catalog.Result{}, err
	}
	records, err := l.store.LoadRecords(ctx)
	if err != nil {
		return catalog.Result{}, fmt.Errorf("load records: %w", err)
	}
	return catalog.Builder{Classifier: c, Workers: l.workers}.Build(ctx, records)
}

// Run classifies the stored catalog with table, then saves the enriched
// records followed by the groups. When the store keeps a run history the
// run is recorded as well.
func (l *Libris) Run(ctx context.Context, table string) (Summary, error) {
	start := l.now()
	runID := l.newRunID(start)
	log := l.logger.With(slog.String("run_id", runID), slog.String("table", table))

	res, err := l.Preview(ctx, table)
	if err != nil {
		return Summary{}, err
	}

	if err := l.store.SaveRecords(ctx, res.Records); err != nil {
		return Summary{}, fmt.Errorf("save records: %w", err)
	}
	if err := l.store.SaveGroups(ctx, table, res.Groups); err != nil {
		return Summary{}, fmt.Errorf("save groups: %w", err)
	}

	sum := Summary{
		RunID:     runID,
		Table:     table,
		StartedAt: start,
		Records:   len(res.Records),
		Groups:    len(res.Groups),
		Duration:  l.now().Sub(start),
	}
	for _, m := range res.Matches {
		if m.Default() {
			sum.Defaults++
		}
	}

	if rec, ok := l.store.(store.RunRecorder); ok {
		run := store.Run{
			ID:        sum.RunID,
			Table:     table,
			StartedAt: start,
			Records:   sum.Records,
			Groups:    sum.Groups,
			Duration:  sum.Duration,
		}
		if err := rec.RecordRun(ctx, run); err != nil {
			log.Warn("failed to record run", slog.Any("error", err))
		}
	}

	log.Info("catalog classified",
		slog.Int("records", sum.Records),
		slog.Int("groups", sum.Groups),
		slog.Int("defaults", sum.Defaults),
		slog.Duration("duration", sum.Duration),
	)
	return sum, nil
}

// RunAll runs every table in order. Each run starts from the records saved
// by the previous one, so the catalog ends up carrying every table's fields.
func (l *Libris) RunAll(ctx context.Context) ([]Summary, error) {
	out := make([]Summary, 0, len(l.tables))
	for _, t := range l.tables {
		sum, err := l.Run(ctx, t)
		if err != nil {
			return out, fmt.Errorf("table %s: %w", t, err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// Import merges incoming records into the stored catalog by filename and
// saves it. A store without a catalog starts from an empty one.
func (l *Libris) Import(ctx context.Context, incoming []catalog.Record) (int, error) {
	existing, err := l.store.LoadRecords(ctx)
	if err != nil && !errors.Is(err, internalerr.ErrNotFound) {
		return 0, fmt.Errorf("load records: %w", err)
	}
	merged, added := catalog.Merge(existing, incoming)
	if added == 0 && err == nil {
		l.logger.Info("import found nothing new", slog.Int("candidates", len(incoming)))
		return 0, nil
	}
	if err := l.store.SaveRecords(ctx, merged); err != nil {
		return 0, fmt.Errorf("save records: %w", err)
	}
	l.logger.Info("records imported",
		slog.Int("added", added),
		slog.Int("total", len(merged)),
	)
	return added, nil
}

// Diff reports records whose stored classification for table is stale.
func (l *Libris) Diff(ctx context.Context, table string) (maintenance.Result, error) {
	c, err := l.Classifier(table)
	if err != nil {
		return maintenance.Result{}, err
	}
	records, err := l.store.LoadRecords(ctx)
	if err != nil {
		return maintenance.Result{}, fmt.Errorf("load records: %w", err)
	}
	r := maintenance.Reclassifier{Classifier: c}
	return r.Diff(records), nil
}

// Report classifies the stored catalog with table and aggregates rule and
// group statistics. Nothing is saved.
func (l *Libris) Report(ctx context.Context, table string, topGroups int) (analytics.Report, error) {
	res, err := l.Preview(ctx, table)
	if err != nil {
		return analytics.Report{}, err
	}
	a := analytics.NewAnalyzer(l.classifiers[table]).WithTopGroups(topGroups)
	a.ProcessResult(res)
	return a.Snapshot(), nil
}

// Groups reads back the saved groups of table.
func (l *Libris) Groups(ctx context.Context, table string) ([]catalog.Group, error) {
	c, err := l.Classifier(table)
	if err != nil {
		return nil, err
	}
	reader, ok := l.store.(store.GroupReader)
	if !ok {
		return nil, fmt.Errorf("store cannot read groups: %w", internalerr.ErrStoreUnavailable)
	}
	return reader.LoadGroups(ctx, table, c.IDField(), c.LabelField())
}

// Runs returns recent runs, newest first.
func (l *Libris) Runs(ctx context.Context, limit int) ([]store.Run, error) {
	rec, ok := l.store.(store.RunRecorder)
	if !ok {
		return nil, fmt.Errorf("store keeps no run history: %w", internalerr.ErrStoreUnavailable)
	}
	return rec.Runs(ctx, limit)
}

func (l *Libris) newRunID(t time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), l.entropy).String()
}
