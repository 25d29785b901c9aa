package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
)

// Store is the persistence boundary for the catalog: it supplies the book
// records and receives the enriched records and the per-table groups.
type Store interface {
	Close() error

	// LoadRecords returns the catalog in its stored order. A store that
	// holds no catalog yet returns internalerr.ErrNotFound.
	LoadRecords(ctx context.Context) ([]catalog.Record, error)
	// SaveRecords replaces the catalog.
	SaveRecords(ctx context.Context, records []catalog.Record) error
	// SaveGroups replaces the groups of one rule table.
	SaveGroups(ctx context.Context, table string, groups []catalog.Group) error
}

// GroupReader is implemented by stores that can read groups back.
type GroupReader interface {
	// LoadGroups returns the groups saved for table, decoding the id and
	// label properties under the given keys.
	LoadGroups(ctx context.Context, table, idKey, labelKey string) ([]catalog.Group, error)
}

// RunRecorder is implemented by stores that keep a history of runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
	Runs(ctx context.Context, limit int) ([]Run, error)
}

// Run describes one classification pass.
type Run struct {
	ID        string
	Table     string
	StartedAt time.Time
	Records   int
	Groups    int
	Duration  time.Duration
}

// EncodeRecords renders records as an indented JSON array.
func EncodeRecords(records []catalog.Record) ([]byte, error) {
	if records == nil {
		records = []catalog.Record{}
	}
	return encodeIndent(records)
}

// DecodeRecords parses a JSON array of records. Anything other than an
// array of objects is rejected with internalerr.ErrInvalidInput.
func DecodeRecords(data []byte) ([]catalog.Record, error) {
	var records []catalog.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %v: %w", err, internalerr.ErrInvalidInput)
	}
	if records == nil {
		records = []catalog.Record{}
	}
	return records, nil
}

// EncodeGroups renders groups as an indented JSON array.
func EncodeGroups(groups []catalog.Group) ([]byte, error) {
	if groups == nil {
		groups = []catalog.Group{}
	}
	return encodeIndent(groups)
}

// DecodeGroups parses a JSON array written by EncodeGroups.
func DecodeGroups(data []byte, idKey, labelKey string) ([]catalog.Group, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode groups: %v: %w", err, internalerr.ErrInvalidInput)
	}
	groups := make([]catalog.Group, 0, len(raws))
	for i, raw := range raws {
		g, err := catalog.UnmarshalGroup(raw, idKey, labelKey)
		if err != nil {
			return nil, fmt.Errorf("decode group %d: %v: %w", i, err, internalerr.ErrInvalidInput)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// MarshalRecord encodes one record compactly without HTML escaping.
func MarshalRecord(rec catalog.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func encodeIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
