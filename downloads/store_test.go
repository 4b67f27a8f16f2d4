package downloads

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const root = "/downloads"

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, root, Options{
		Ext:          ".sto",
		RecentWindow: 10 * time.Second,
	})
	require.NoError(t, err)
	return s, fs
}

func writeFile(t *testing.T, fs afero.Fs, name, content string, age time.Duration) string {
	t.Helper()

	path := filepath.Join(root, name)
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, fs.Chtimes(path, mtime, mtime))
	return path
}

func TestLocate(t *testing.T) {
	testCases := []struct {
		name     string
		files    map[string]time.Duration
		empty    []string
		lookup   []string
		expected string
		wantErr  error
	}{
		{
			name:     "expected name present",
			files:    map[string]time.Duration{"lap1.sto": time.Minute, "other.sto": time.Second},
			lookup:   []string{"lap1.sto"},
			expected: "lap1.sto",
		},
		{
			name:     "second candidate",
			files:    map[string]time.Duration{"lap1 (1).sto": time.Second},
			lookup:   []string{"missing.sto", "lap1 (1).sto"},
			expected: "lap1 (1).sto",
		},
		{
			name:     "fallback picks newest recent file",
			files:    map[string]time.Duration{"lap1_trunc.sto": 4 * time.Second, "older.sto": 8 * time.Second},
			lookup:   []string{"lap1.sto"},
			expected: "lap1_trunc.sto",
		},
		{
			name:    "fallback ignores stale files",
			files:   map[string]time.Duration{"stale.sto": 30 * time.Second},
			lookup:  []string{"lap1.sto"},
			wantErr: ErrNotFound,
		},
		{
			name:    "fallback ignores other extensions",
			files:   map[string]time.Duration{"lap1.sto.crdownload": time.Second},
			lookup:  []string{"lap1.sto"},
			wantErr: ErrNotFound,
		},
		{
			name:    "empty file is not accepted",
			empty:   []string{"lap1.sto"},
			lookup:  []string{"lap1.sto"},
			wantErr: ErrUnstable,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, fs := newTestStore(t)
			for name, age := range tc.files {
				writeFile(t, fs, name, "telemetry", age)
			}
			for _, name := range tc.empty {
				writeFile(t, fs, name, "", 0)
			}

			path, err := s.Locate(context.Background(), tc.lookup...)
			if tc.wantErr != nil {
				require.True(t, errors.Is(err, tc.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, filepath.Join(root, tc.expected), path)
		})
	}
}

func TestLocateHonoursContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := NewStore(fs, root, Options{
		Timeout:      time.Hour,
		PollInterval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Locate(ctx, "lap1.sto")
	require.ErrorIs(t, err, context.Canceled)
}

func TestCarDirAndMove(t *testing.T) {
	s, fs := newTestStore(t)
	src := writeFile(t, fs, "lap1.sto", "telemetry", 0)

	dir, err := s.CarDir("Porsche911GT3R")
	require.NoError(t, err)
	require.Equal(t, "/downloads/Porsche911GT3R", dir)

	dst := filepath.Join(dir, "(Porsche911GT3R_Spa)lap1.sto")
	require.NoError(t, s.Move(src, dst))
	require.True(t, s.Exists(dst))
	require.False(t, s.Exists(src))
	require.False(t, s.Exists(dir))
}
