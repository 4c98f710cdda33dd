// Package voicestore keeps synthesized reply audio on disk until the client
// downloads it.
//
// Files are named "voice_<uuid><ext>" and served once: a download claims the
// file and deletes it when delivery ends. Files that are never fetched are swept
// after a configurable age.
package voicestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// Prefix starts every stored file name.
const Prefix = "voice_"

// claimPrefix marks files taken by an in-flight download. Such names never
// pass path validation, so they cannot be requested.
const claimPrefix = ".claimed_"

var (
	// ErrNotFound is returned when a named voice file does not exist.
	ErrNotFound = errors.New("voicestore: file not found")

	// ErrInvalidName is returned for names that are not plain voice file names.
	ErrInvalidName = errors.New("voicestore: invalid file name")
)

// Voice describes a stored audio file.
type Voice struct {
	Name      string
	Path      string
	Size      int64
	CreatedAt time.Time
}

// Store is a directory of voice files.
type Store struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

// New opens the store at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating voice dir: %w", err)
	}
	return &Store{
		dir:    dir,
		now:    time.Now,
		logger: slog.Default().With("component", "voicestore"),
	}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

// Save writes data to a new voice file with the given extension.
func (s *Store) Save(ext string, data []byte) (*Voice, error) {
	name := Prefix + uuid.NewString() + ext
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating voice file: %w", err)
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("writing voice file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("checking voice file: %w", err)
	}
	return &Voice{Name: name, Path: path, Size: info.Size(), CreatedAt: info.ModTime()}, nil
}

// Download is a voice file claimed for delivery. Close deletes it whether or
// not the delivery completed.
type Download struct {
	*os.File
	Name string
	Info fs.FileInfo
	path string
}

// Close closes and deletes the claimed file.
func (d *Download) Close() error {
	var result *multierror.Error
	if err := d.File.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := os.Remove(d.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Claim takes the named voice file out of the store and opens it. The rename
// is atomic, so of several concurrent claims only one succeeds and the rest
// get ErrNotFound.
func (s *Store) Claim(name string) (*Download, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	claimed := filepath.Join(s.dir, claimPrefix+uuid.NewString()+"_"+name)
	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claiming voice file: %w", err)
	}

	f, err := os.Open(claimed)
	if err != nil {
		_ = os.Remove(claimed)
		return nil, fmt.Errorf("opening voice file: %w", err)
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		_ = os.Remove(claimed)
		if err == nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("checking voice file: %w", err)
	}
	return &Download{File: f, Name: name, Info: info, path: claimed}, nil
}

// Remove deletes the named voice file. Removing a missing file is not an error.
func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing voice file: %w", err)
	}
	return nil
}

// Sweep removes voice files, including claims left by an aborted process,
// last modified more than ttl ago and returns how many were removed. A non-positive ttl removes nothing.
func (s *Store) Sweep(ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("listing voice dir: %w", err)
	}

	cutoff := s.now().Add(-ttl)
	var (
		removed int
		result  *multierror.Error
	)
	for _, e := range entries {
		if e.IsDir() || !(strings.HasPrefix(e.Name(), Prefix) || strings.HasPrefix(e.Name(), claimPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}
	return removed, result.ErrorOrNil()
}

// Run sweeps every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 || ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ttl)
			if err != nil {
				s.logger.Warn("voice sweep incomplete", "error", err)
			}
			if n > 0 {
				s.logger.Info("swept stale voice files", "removed", n)
			}
		}
	}
}

// path resolves a client-supplied name, rejecting anything that is not a
// plain voice file name inside the store.
func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || !strings.HasPrefix(name, Prefix) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.dir, name), nil
}
