// Package filestore implements sessionstore.Store as a single JSON document
// overwritten on save.
package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/algolab-go/broker-gateway/sessionstore"
)

// FileStore persists a single sessionstore.Record as a JSON document at
// path. The document holds every Record field under its Go field name
// ("Owner", "Token", "Hash", "CreatedAt", ...); it has no lastUpdate key
// and no lower-case key names. Grounded on
// adapter/token_storage.go's FileTokenStorage: same WriteFile/ReadFile/0600
// pattern, now guarded by a mutex for last-writer-wins concurrent saves.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger zerolog.Logger
}

// New builds a FileStore writing to path. The parent directory is created
// with 0700 permissions if missing.
func New(path string, logger zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return &FileStore{path: path, logger: logger}, nil
}

func (f *FileStore) Save(_ context.Context, record sessionstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0600)
}

func (f *FileStore) Load(_ context.Context, owner string) (sessionstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return sessionstore.Record{}, sessionstore.ErrNotFound
		}
		return sessionstore.Record{}, err
	}

	var record sessionstore.Record
	if err := json.Unmarshal(data, &record); err != nil {
		f.logger.Warn().Err(err).Str("path", f.path).Msg("malformed session file, treating as missing")
		return sessionstore.Record{}, sessionstore.ErrNotFound
	}

	if !record.Active || record.Owner != owner {
		return sessionstore.Record{}, sessionstore.ErrNotFound
	}
	return record, nil
}

func (f *FileStore) Deactivate(ctx context.Context, owner string, reason string) error {
	record, err := f.Load(ctx, owner)
	if err != nil {
		if err == sessionstore.ErrNotFound {
			return nil
		}
		return err
	}
	record.Active = false
	record.TerminationReason = reason
	return f.Save(ctx, record)
}

func (f *FileStore) Close() error { return nil }
