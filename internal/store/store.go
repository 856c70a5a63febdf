// Package store provides the tagging dialects: an in-memory index and a SQL
// backend for SQLite and PostgreSQL.
package store

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/joescharf/tagger/internal/tagging"
)

// Config selects and configures a dialect.
type Config struct {
	// Dialect is one of memory, sqlite or postgres.
	Dialect string
	// Type namespaces the SQL tables, e.g. "article" gives article_tag.
	Type           string
	DSN            string
	TablePrefix    string
	TableSeparator string
	// Sync creates missing tables on open.
	Sync bool
}

// Open builds the dialect described by cfg. SQL dialects own their connection;
// release it with Close (tagging.Service.Close does this).
func Open(ctx context.Context, cfg Config) (tagging.Dialect, error) {
	switch cfg.Dialect {
	case "", DialectMemory:
		return NewMemoryStore(), nil
	}

	if cfg.DSN == "" {
		return nil, errors.WithHint(
			errors.Newf("dialect %s needs a dsn", cfg.Dialect),
			"set dsn in the config file or TAGGER_DSN",
		)
	}
	s, err := OpenSQL(ctx, cfg.DSN, SQLOptions{
		Dialect:        cfg.Dialect,
		Type:           cfg.Type,
		TablePrefix:    cfg.TablePrefix,
		TableSeparator: cfg.TableSeparator,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Sync {
		if err := s.Sync(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}
