// Package storage persists the corpus and the published history.
//
// Every backend assumes a single writer: runs must not overlap, and nothing
// here locks across processes.
package storage

import (
	"context"
	"fmt"
	"path/filepath"

	"molt-highlights/internal/core/ports"
)

// Options selects and configures a backend.
type Options struct {
	// Type is one of "json", "sqlite" or "postgres".
	Type        string
	Dir         string
	CorpusFile  string
	HistoryFile string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the backend named by opts.Type.
func Open(ctx context.Context, opts Options) (ports.Store, error) {
	switch opts.Type {
	case "", "json":
		return NewJSONStorage(opts.Dir, opts.CorpusFile, opts.HistoryFile)
	case "sqlite":
		path := opts.SQLitePath
		if path == "" {
			path = filepath.Join(opts.Dir, "molt.db")
		}
		return NewSQLiteStorage(path)
	case "postgres":
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage needs a DSN")
		}
		return NewPostgresStorage(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage type %q", opts.Type)
	}
}
