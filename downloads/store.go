// Package downloads finds files the browser has written into the download
// root and moves them into their per-car folders.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrNotFound = errors.New("downloaded file not found")
	ErrUnstable = errors.New("downloaded file still changing")
)

// Options tunes how long the store waits for a download to land.
type Options struct {
	Ext            string
	RecentWindow   time.Duration
	Timeout        time.Duration
	PollInterval   time.Duration
	StableInterval time.Duration
}

// Store operates on the download root of one run.
type Store struct {
	fs   afero.Fs
	root string
	opts Options
	now  func() time.Time
}

// NewStore creates the download root if it is missing.
func NewStore(fs afero.Fs, root string, opts Options) (*Store, error) {
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	if opts.Ext == "" {
		opts.Ext = ".sto"
	}
	return &Store{fs: fs, root: root, opts: opts, now: time.Now}, nil
}

// Root returns the directory the browser downloads into.
func (s *Store) Root() string {
	return s.root
}

// CarDir returns the per-car folder, creating it on demand.
func (s *Store) CarDir(car string) (string, error) {
	dir := filepath.Join(s.root, car)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create car folder %s: %w", dir, err)
	}
	return dir, nil
}

// Exists reports whether path is a regular file.
func (s *Store) Exists(path string) bool {
	info, err := s.fs.Stat(path)
	return err == nil && !info.IsDir()
}

// Locate waits for a just-downloaded file. Candidate names are tried in order
// inside the download root; when none is present, the newest file with the
// artifact extension modified within the recent window is taken instead.
// The returned file has a non-zero size that held across StableInterval.
func (s *Store) Locate(ctx context.Context, names ...string) (string, error) {
	deadline := s.now().Add(s.opts.Timeout)
	var unstable string
	for {
		if path, ok := s.find(names); ok {
			stable, err := s.stable(ctx, path)
			if err != nil {
				return "", err
			}
			if stable {
				return path, nil
			}
			unstable = path
		}

		if !s.now().Before(deadline) {
			if unstable != "" {
				return "", fmt.Errorf("%w: %s", ErrUnstable, unstable)
			}
			return "", fmt.Errorf("%w: %s", ErrNotFound, strings.Join(names, ", "))
		}
		if err := sleep(ctx, s.opts.PollInterval); err != nil {
			return "", err
		}
	}
}

func (s *Store) find(names []string) (string, bool) {
	for _, name := range names {
		if name == "" {
			continue
		}
		path := filepath.Join(s.root, filepath.Base(name))
		if s.Exists(path) {
			return path, true
		}
	}

	path, err := s.Recent()
	if err != nil {
		return "", false
	}
	return path, true
}

// Recent returns the newest file in the root carrying the artifact extension
// and modified within the recent window.
func (s *Store) Recent() (string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return "", fmt.Errorf("failed to list download directory: %w", err)
	}

	cutoff := s.now().Add(-s.opts.RecentWindow)
	var newest os.FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), s.opts.Ext) {
			continue
		}
		if !e.ModTime().After(cutoff) {
			continue
		}
		if newest == nil || e.ModTime().After(newest.ModTime()) {
			newest = e
		}
	}
	if newest == nil {
		return "", ErrNotFound
	}
	return filepath.Join(s.root, newest.Name()), nil
}

// stable reports whether path has the same non-zero size across two stats.
func (s *Store) stable(ctx context.Context, path string) (bool, error) {
	first, err := s.fs.Stat(path)
	if err != nil {
		return false, nil
	}
	if err := sleep(ctx, s.opts.StableInterval); err != nil {
		return false, err
	}
	second, err := s.fs.Stat(path)
	if err != nil {
		return false, nil
	}
	return first.Size() > 0 && first.Size() == second.Size(), nil
}

// Move renames src to dst, creating dst's folder if needed.
func (s *Store) Move(src, dst string) error {
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create folder for %s: %w", dst, err)
	}
	if err := s.fs.Rename(src, dst); err != nil {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
