// Package s3 keeps the catalog in an S3 compatible bucket using the same
// JSON documents as the file store.
package s3

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
)

// BackupSuffix is appended to an object key to form its backup copy.
const BackupSuffix = ".bak"

// Options configures object layout.
type Options struct {
	// Prefix is prepended to every key.
	Prefix string
	// BooksKey names the catalog object. Defaults to books.json.
	BooksKey string
	// NoBackup disables the server side copy taken before an overwrite.
	NoBackup bool
}

// Store implements store.Store on top of a Client.
type Store struct {
	client Client
	opts   Options
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.GroupReader = (*Store)(nil)
)

// New wraps client.
func New(client Client, opts Options) *Store {
	if opts.BooksKey == "" {
		opts.BooksKey = "books.json"
	}
	return &Store{client: client, opts: opts}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// BooksKey is the full key of the catalog object.
func (s *Store) BooksKey() string { return path.Join(s.opts.Prefix, s.opts.BooksKey) }

// GroupsKey is the full key of the groups object of table.
func (s *Store) GroupsKey(table string) string {
	return path.Join(s.opts.Prefix, "groups", table+".json")
}

// LoadRecords downloads and decodes the catalog object.
func (s *Store) LoadRecords(ctx context.Context) ([]catalog.Record, error) {
	data, err := s.client.Download(ctx, s.BooksKey())
	if err != nil {
		return nil, err
	}
	return store.DecodeRecords(data)
}

// SaveRecords backs up and replaces the catalog object.
func (s *Store) SaveRecords(ctx context.Context, records []catalog.Record) error {
	data, err := store.EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return s.put(ctx, s.BooksKey(), data)
}

// SaveGroups backs up and replaces the groups object of table.
func (s *Store) SaveGroups(ctx context.Context, table string, groups []catalog.Group) error {
	if table == "" {
		return fmt.Errorf("save groups: empty table name: %w", internalerr.ErrInvalidInput)
	}
	data, err := store.EncodeGroups(groups)
	if err != nil {
		return fmt.Errorf("encode groups: %w", err)
	}
	return s.put(ctx, s.GroupsKey(table), data)
}

// LoadGroups implements store.GroupReader.
func (s *Store) LoadGroups(ctx context.Context, table, idKey, labelKey string) ([]catalog.Group, error) {
	data, err := s.client.Download(ctx, s.GroupsKey(table))
	if err != nil {
		return nil, err
	}
	return store.DecodeGroups(data, idKey, labelKey)
}

func (s *Store) put(ctx context.Context, key string, data []byte) error {
	if !s.opts.NoBackup {
		if err := s.client.Copy(ctx, key, key+BackupSuffix); err != nil && !errors.Is(err, internalerr.ErrNotFound) {
			return fmt.Errorf("backup %s: %w", key, err)
		}
	}
	return s.client.Upload(ctx, key, data)
}
