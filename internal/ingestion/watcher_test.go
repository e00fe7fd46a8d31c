package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Benny93/ontolink-go/internal/config"
	"github.com/Benny93/ontolink-go/internal/export"
)

func watchConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.Debounce = 20 * time.Millisecond
	return cfg
}

func TestWatchFilter(t *testing.T) {
	t.Parallel()

	cfg := watchConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, ".gitignore"), []byte("# scratch\n*.bak\ndrafts/\n"), 0o644))
	matcher, err := loadGitignoreMatcher(cfg.DataDir)
	require.NoError(t, err)
	require.NotNil(t, matcher)
	filter := newWatchFilter(cfg, matcher)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"Source", filepath.Join(cfg.DataDir, cfg.SourceFile), true},
		{"OtherInput", filepath.Join(cfg.DataDir, "extra.csv"), true},
		{"GraphData", filepath.Join(cfg.DataDir, cfg.GraphDataFile), false},
		{"Embeddings", filepath.Join(cfg.DataDir, cfg.EmbeddingsFile), false},
		{"Clusters", filepath.Join(cfg.DataDir, cfg.ClustersFile), false},
		{"Hidden", filepath.Join(cfg.DataDir, ".ontology.csv.swp"), false},
		{"EditorBackup", filepath.Join(cfg.DataDir, "ontology.csv~"), false},
		{"Gitignored", filepath.Join(cfg.DataDir, "ontology.bak"), false},
		{"GitignoredDir", filepath.Join(cfg.DataDir, "drafts", "new.csv"), false},
		{"OutsideDataDir", filepath.Join(filepath.Dir(cfg.DataDir), "ontology.csv"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, filter.relevant(tt.path))
		})
	}
}

func TestWatchFilterSourceNamedLikeOutput(t *testing.T) {
	t.Parallel()

	cfg := watchConfig(t)
	cfg.SourceFile = cfg.GraphDataFile
	filter := newWatchFilter(cfg, nil)
	assert.True(t, filter.relevant(filepath.Join(cfg.DataDir, cfg.GraphDataFile)))
}

func TestWatchFilterOutputDirs(t *testing.T) {
	t.Parallel()

	t.Run("NestedInDataDir", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		cfg.OutDir = filepath.Join(cfg.DataDir, "site")
		cfg.ExportDir = filepath.Join(cfg.DataDir, "site", "parquet")
		filter := newWatchFilter(cfg, nil)

		assert.False(t, filter.relevant(cfg.OutDir))
		assert.False(t, filter.relevant(filepath.Join(cfg.OutDir, GraphPage)))
		assert.False(t, filter.relevant(filepath.Join(cfg.ExportDir, export.LayoutFile)))
		assert.True(t, filter.relevant(filepath.Join(cfg.DataDir, "site.csv")))
		assert.True(t, filter.relevant(filepath.Join(cfg.DataDir, cfg.SourceFile)))
	})

	t.Run("SameAsDataDir", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		cfg.OutDir = cfg.DataDir
		cfg.ExportDir = cfg.DataDir + string(filepath.Separator)
		filter := newWatchFilter(cfg, nil)

		assert.False(t, filter.relevant(filepath.Join(cfg.DataDir, GraphPage)))
		assert.False(t, filter.relevant(filepath.Join(cfg.DataDir, SearchPage)))
		assert.False(t, filter.relevant(filepath.Join(cfg.DataDir, export.EmbeddingsFile)))
		assert.True(t, filter.relevant(filepath.Join(cfg.DataDir, cfg.SourceFile)))
	})

	t.Run("Sibling", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		cfg.OutDir = cfg.DataDir + "-out"
		filter := newWatchFilter(cfg, nil)

		assert.Empty(t, filter.outputDirs)
		assert.True(t, filter.relevant(filepath.Join(cfg.DataDir, GraphPage)))
	})
}

func TestLoadGitignoreMatcher(t *testing.T) {
	t.Parallel()

	t.Run("Missing", func(t *testing.T) {
		t.Parallel()
		matcher, err := loadGitignoreMatcher(t.TempDir())
		require.NoError(t, err)
		assert.Nil(t, matcher)
	})

	t.Run("CommentsAndBlankLines", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("\n# tmp\n\n*.tmp\n"), 0o644))
		matcher, err := loadGitignoreMatcher(dir)
		require.NoError(t, err)
		require.NotNil(t, matcher)
		assert.True(t, matcher.Match([]string{"a.tmp"}, false))
		assert.False(t, matcher.Match([]string{"a.csv"}, false))
	})
}

func TestWatch(t *testing.T) {
	t.Parallel()

	t.Run("RunsOnInputChange", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var runs atomic.Int32
		done := make(chan error, 1)
		go func() {
			done <- watch(ctx, cfg, zap.NewNop(), func(context.Context) error {
				runs.Add(1)
				return nil
			})
		}()

		// The watcher may not be registered yet, so keep touching the source.
		source := filepath.Join(cfg.DataDir, cfg.SourceFile)
		require.Eventually(t, func() bool {
			_ = os.WriteFile(source, []byte(organismExport), 0o644)
			return runs.Load() > 0
		}, 5*time.Second, 50*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(5 * time.Second):
			t.Fatal("watch did not stop after cancel")
		}
	})

	t.Run("IgnoresGeneratedFiles", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var runs atomic.Int32
		done := make(chan error, 1)
		go func() {
			done <- watch(ctx, cfg, zap.NewNop(), func(context.Context) error {
				runs.Add(1)
				return nil
			})
		}()

		output := filepath.Join(cfg.DataDir, cfg.EmbeddingsFile)
		for range 10 {
			require.NoError(t, os.WriteFile(output, []byte("1 1\n0 0.5\n"), 0o644))
			time.Sleep(20 * time.Millisecond)
		}
		time.Sleep(10 * cfg.Debounce)
		assert.Zero(t, runs.Load())

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("IgnoresNestedOutputDir", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		cfg.OutDir = filepath.Join(cfg.DataDir, "out")
		require.NoError(t, os.MkdirAll(cfg.OutDir, 0o755))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var runs atomic.Int32
		done := make(chan error, 1)
		go func() {
			done <- watch(ctx, cfg, zap.NewNop(), func(context.Context) error {
				runs.Add(1)
				return nil
			})
		}()

		// Give the watcher time to register the directory.
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, os.WriteFile(filepath.Join(cfg.OutDir, GraphPage), []byte("<html>"), 0o644))
		require.NoError(t, os.RemoveAll(cfg.OutDir))
		require.NoError(t, os.MkdirAll(cfg.OutDir, 0o755))
		time.Sleep(10 * cfg.Debounce)
		assert.Zero(t, runs.Load())

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("RunErrorKeepsWatching", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var runs atomic.Int32
		done := make(chan error, 1)
		go func() {
			done <- watch(ctx, cfg, zap.NewNop(), func(context.Context) error {
				runs.Add(1)
				return errors.New("bad ontology")
			})
		}()

		source := filepath.Join(cfg.DataDir, cfg.SourceFile)
		require.Eventually(t, func() bool {
			_ = os.WriteFile(source, []byte("Class ID\n"), 0o644)
			return runs.Load() >= 2
		}, 5*time.Second, 50*time.Millisecond)

		cancel()
		assert.ErrorIs(t, <-done, context.Canceled)
	})

	t.Run("MissingDataDir", func(t *testing.T) {
		t.Parallel()
		cfg := watchConfig(t)
		cfg.DataDir = filepath.Join(cfg.DataDir, "missing")
		err := watch(context.Background(), cfg, nil, func(context.Context) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "watching")
	})
}
