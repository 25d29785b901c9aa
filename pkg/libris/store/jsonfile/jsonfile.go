// Package jsonfile stores the catalog as plain JSON files: one array of
// book records and one array of groups per rule table.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/cognicore/libris/pkg/libris/catalog"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
)

// BackupSuffix is appended to a file name to form its backup copy.
const BackupSuffix = ".bak"

// Options configures a file store.
type Options struct {
	// BooksPath is the catalog file.
	BooksPath string
	// GroupsDir receives <table>.json. Defaults to the directory of BooksPath.
	GroupsDir string
	// NoBackup disables the copy taken before a file is overwritten.
	NoBackup bool
	// LockTimeout bounds the wait for the advisory lock. Zero means 5s.
	LockTimeout time.Duration
}

// Store implements store.Store on the local filesystem.
type Store struct {
	opts Options
	lock *flock.Flock
}

// Open prepares a file store. The books file does not need to exist yet.
func Open(opts Options) (*Store, error) {
	if opts.BooksPath == "" {
		return nil, fmt.Errorf("jsonfile: books path is required: %w", internalerr.ErrInvalidConfig)
	}
	if opts.GroupsDir == "" {
		opts.GroupsDir = filepath.Dir(opts.BooksPath)
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}
	return &Store{
		opts: opts,
		lock: flock.New(opts.BooksPath + ".lock"),
	}, nil
}

// Close releases the lock file handle.
func (s *Store) Close() error {
	return s.lock.Close()
}

// BooksPath returns the catalog file location.
func (s *Store) BooksPath() string { return s.opts.BooksPath }

// GroupsPath returns the groups file for a table.
func (s *Store) GroupsPath(table string) string {
	return filepath.Join(s.opts.GroupsDir, table+".json")
}

// LoadRecords reads the books file.
func (s *Store) LoadRecords(ctx context.Context) ([]catalog.Record, error) {
	data, err := os.ReadFile(s.opts.BooksPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("books file %s: %w", s.opts.BooksPath, internalerr.ErrNotFound)
		}
		return nil, fmt.Errorf("read books: %w", err)
	}
	records, err := store.DecodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.opts.BooksPath, err)
	}
	return records, nil
}

// SaveRecords backs up and rewrites the books file.
func (s *Store) SaveRecords(ctx context.Context, records []catalog.Record) error {
	data, err := store.EncodeRecords(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	return s.write(ctx, s.opts.BooksPath, data)
}

// SaveGroups backs up and rewrites the groups file of table.
func (s *Store) SaveGroups(ctx context.Context, table string, groups []catalog.Group) error {
	if table == "" {
		return fmt.Errorf("save groups: empty table name: %w", internalerr.ErrInvalidInput)
	}
	data, err := store.EncodeGroups(groups)
	if err != nil {
		return fmt.Errorf("encode groups: %w", err)
	}
	if err := os.MkdirAll(s.opts.GroupsDir, 0o755); err != nil {
		return fmt.Errorf("create groups dir: %w", err)
	}
	return s.write(ctx, s.GroupsPath(table), data)
}

// LoadGroups implements store.GroupReader.
func (s *Store) LoadGroups(ctx context.Context, table, idKey, labelKey string) ([]catalog.Group, error) {
	path := s.GroupsPath(table)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("groups file %s: %w", path, internalerr.ErrNotFound)
		}
		return nil, fmt.Errorf("read groups: %w", err)
	}
	groups, err := store.DecodeGroups(data, idKey, labelKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return groups, nil
}

// write replaces path with data while holding the store lock. The previous
// content is copied to path+BackupSuffix first, then data goes to a temp
// file in the same directory that is renamed over path.
func (s *Store) write(ctx context.Context, path string, data []byte) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	ok, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("lock %s: %v: %w", s.lock.Path(), err, internalerr.ErrLocked)
	}
	if !ok {
		return fmt.Errorf("lock %s: %w", s.lock.Path(), internalerr.ErrLocked)
	}
	defer s.lock.Unlock()

	if !s.opts.NoBackup {
		if err := copyFile(path, path+BackupSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("backup %s: %w", path, err)
		}
	}
	return replaceFile(path, data)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func replaceFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
