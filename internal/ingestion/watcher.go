package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"go.uber.org/zap"

	"github.com/Benny93/ontolink-go/internal/config"
	"github.com/Benny93/ontolink-go/internal/export"
	"github.com/Benny93/ontolink-go/internal/storage"
)

// Watch re-runs the pipeline whenever an input file in the data directory
// changes. Blocks until the context is cancelled.
func Watch(ctx context.Context, cfg config.Config, store storage.StorageBackend, log *zap.Logger) error {
	return watch(ctx, cfg, log, func(ctx context.Context) error {
		result, err := RunPipeline(ctx, cfg, store, nil, log)
		if err != nil {
			return err
		}
		fmt.Printf("Rebuilt %d concepts in %.2fs\n", result.Concepts, result.DurationSecs)
		return nil
	})
}

// watch calls run once per burst of relevant events, after cfg.Debounce of
// quiet.
func watch(ctx context.Context, cfg config.Config, log *zap.Logger, run func(context.Context) error) error {
	if log == nil {
		log = zap.NewNop()
	}

	matcher, err := loadGitignoreMatcher(cfg.DataDir)
	if err != nil {
		log.Warn("ignoring unreadable .gitignore", zap.Error(err))
		matcher = nil
	}
	filter := newWatchFilter(cfg, matcher)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(cfg.DataDir); err != nil {
		return fmt.Errorf("watching %s: %w", cfg.DataDir, err)
	}

	batchTimer := time.NewTimer(cfg.Debounce)
	batchTimer.Stop()
	pending := make(map[string]bool)

	fmt.Printf("Watching %s for changes (Ctrl+C to stop)\n", cfg.DataDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if !filter.relevant(event.Name) {
				continue
			}
			pending[filepath.Base(event.Name)] = true
			batchTimer.Reset(cfg.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))

		case <-batchTimer.C:
			if len(pending) == 0 {
				continue
			}
			files := make([]string, 0, len(pending))
			for name := range pending {
				files = append(files, name)
			}
			log.Info("inputs changed", zap.Strings("files", files))
			pending = make(map[string]bool)

			if err := run(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(os.Stderr, "Error rebuilding: %v\n", err)
			}
		}
	}
}

// watchFilter decides which files in the data directory are pipeline
// inputs. Files the pipeline writes itself are never inputs.
type watchFilter struct {
	dataDir   string
	matcher   gitignore.Matcher
	generated map[string]bool
	// outputDirs are OutDir and ExportDir when nested in dataDir, relative
	// to it.
	outputDirs []string
}

func newWatchFilter(cfg config.Config, matcher gitignore.Matcher) *watchFilter {
	generated := make(map[string]bool)
	for _, name := range []string{
		cfg.GraphDataFile,
		cfg.EdgesFile,
		cfg.FeaturesFile,
		cfg.DictionaryFile,
		cfg.EmbeddingsFile,
		cfg.CoordinatesFile,
		cfg.ClustersFile,
	} {
		generated[name] = true
	}

	var outputDirs []string
	for _, out := range []struct {
		dir   string
		files []string
	}{
		{cfg.OutDir, []string{GraphPage, SearchPage}},
		{cfg.ExportDir, []string{export.AdjacencyFile, export.FeaturesFile, export.EmbeddingsFile, export.LayoutFile}},
	} {
		rel, ok := nestedIn(cfg.DataDir, out.dir)
		switch {
		case !ok:
		case rel == ".":
			for _, name := range out.files {
				generated[name] = true
			}
		default:
			outputDirs = append(outputDirs, rel)
		}
	}

	// The source may share a name with an output when stages are run by hand.
	delete(generated, cfg.SourceFile)

	return &watchFilter{dataDir: cfg.DataDir, matcher: matcher, generated: generated, outputDirs: outputDirs}
}

// nestedIn returns dir relative to base when dir is base or lies below it.
func nestedIn(base, dir string) (string, bool) {
	if dir == "" {
		return "", false
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absBase, absDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return rel, true
}

// relevant reports whether a change to path should trigger a rebuild.
func (f *watchFilter) relevant(path string) bool {
	relPath, err := filepath.Rel(f.dataDir, path)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return false
	}

	for _, dir := range f.outputDirs {
		if relPath == dir || strings.HasPrefix(relPath, dir+string(filepath.Separator)) {
			return false
		}
	}

	name := filepath.Base(relPath)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") || f.generated[name] {
		return false
	}

	if f.matcher != nil {
		parts := strings.Split(relPath, string(filepath.Separator))
		if f.matcher.Match(parts, false) {
			return false
		}
	}
	return true
}

// loadGitignoreMatcher loads a gitignore matcher from dir, or nil if there
// is no .gitignore.
func loadGitignoreMatcher(dir string) (gitignore.Matcher, error) {
	content, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}
