package libris

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/cognicore/libris/pkg/libris/config"
	"github.com/cognicore/libris/pkg/libris/internalerr"
	"github.com/cognicore/libris/pkg/libris/store"
	"github.com/cognicore/libris/pkg/libris/store/jsonfile"
	"github.com/cognicore/libris/pkg/libris/store/memstore"
	"github.com/cognicore/libris/pkg/libris/store/postgres"
	s3store "github.com/cognicore/libris/pkg/libris/store/s3"
	"github.com/cognicore/libris/pkg/libris/store/sqlite"
)

// OpenStore opens the backend selected by cfg.Store.Driver.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	sc := cfg.Store
	switch sc.Driver {
	case config.DriverJSON, "":
		return jsonfile.Open(jsonfile.Options{
			BooksPath: cfg.Resolve(sc.BooksPath),
			GroupsDir: cfg.GroupsDir(),
			NoBackup:  sc.NoBackup,
		})
	case config.DriverSQLite:
		return sqlite.OpenSQLite(ctx, cfg.Resolve(sc.SQLitePath))
	case config.DriverS3:
		client, err := s3store.NewMinioClient(sc.S3)
		if err != nil {
			return nil, err
		}
		return s3store.New(client, s3store.Options{
			Prefix:   sc.S3.Prefix,
			BooksKey: sc.S3.BooksKey,
			NoBackup: sc.NoBackup,
		}), nil
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.Options{
			DSN:    sc.Postgres.DSN,
			Schema: sc.Postgres.Schema,
		})
	case config.DriverMemory:
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("store driver %q: %w", sc.Driver, internalerr.ErrInvalidConfig)
	}
}

// Open compiles every rule table of cfg and opens its store. A nil cfg
// means config.Default().
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Libris, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	comp, err := (&config.Loader{Config: cfg}).Load()
	if err != nil {
		return nil, err
	}
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	return New(Options{
		Store:       st,
		Classifiers: comp.Classifiers,
		Tables:      comp.Tables,
		Logger:      logger,
		Workers:     cfg.Workers,
	}), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
