// Package seed persists inputs surfaced during a fuzzing run into an
// ephemeral, content-addressed seed directory so the mutation engine can pick
// them up as future starting points.
package seed

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Store writes seed files into a single directory. Files are named by the
// SHA-256 digest of their content, so byte-identical inputs collapse to one
// file and concurrent writers can at worst overwrite identical content.
type Store struct {
	dir string
	log *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for teardown diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// NewStore returns a Store writing into dir. An empty dir produces a no-op
// store: Add succeeds without writing, Teardown does nothing. That is the
// reproduction-mode configuration, where seeds must never be written back.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the seed directory, empty for a no-op store.
func (s *Store) Dir() string { return s.dir }

// Add persists data under its content-derived name, replacing any existing
// file of the same name. The write goes through a temp file and a rename so
// the engine never observes a partially written seed.
func (s *Store) Add(data []byte) error {
	if s.dir == "" {
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, "tmp-seed-")
	if err != nil {
		return fmt.Errorf("seed: creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("seed: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("seed: closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, Filename(data))); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("seed: renaming into place: %w", err)
	}
	return nil
}

// Filename derives the filesystem-safe, content-addressed name for a seed.
// Case-insensitive file systems lose at most one bit of entropy per
// character, which still leaves over 200 bits.
func Filename(data []byte) string {
	digest := sha256.Sum256(data)
	return "seed-" + base64.RawURLEncoding.EncodeToString(digest[:])
}

// Teardown removes every file in the seed directory and then the directory
// itself. The directory is strictly ephemeral scratch space, so individual
// deletion failures are logged and swallowed; Teardown never fails.
func (s *Store) Teardown() {
	if s.dir == "" {
		return
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Debug("seed: listing seed dir during teardown", zap.String("dir", s.dir), zap.Error(err))
	}
	for _, entry := range entries {
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.log.Debug("seed: removing seed file", zap.String("path", path), zap.Error(err))
		}
	}
	if err := os.Remove(s.dir); err != nil {
		s.log.Debug("seed: removing seed dir", zap.String("dir", s.dir), zap.Error(err))
	}
}
