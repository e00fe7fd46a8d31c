package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/ontolink-go/internal/config"
	"github.com/Benny93/ontolink-go/internal/ingestion"
	"github.com/Benny93/ontolink-go/internal/storage"
)

const organismExport = `Class ID,Preferred Label,Parents
virus@organism,Virus,organism@organism
sars@organism,SARS-CoV-2,virus@organism
flu@organism,Influenza virus,virus@organism
host@organism,Host,organism@organism
human@organism,Human,host@organism
bat@organism,Bat,host@organism
fever@symptom,Fever,symptom@symptom
cough@symptom,Cough,symptom@symptom
`

// Small models keep a full run fast.
var smallModel = []string{
	"--dimensions", "8", "--walks", "4", "--walk-length", "10",
	"--window", "3", "--workers", "1",
}

type workspace struct {
	root, data, out string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	ws := workspace{
		root: root,
		data: filepath.Join(root, "data"),
		out:  filepath.Join(root, "out"),
	}
	require.NoError(t, os.MkdirAll(ws.data, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws.data, "ontology.csv"), []byte(organismExport), 0o644))
	return ws
}

func (ws workspace) execute(args ...string) error {
	global := []string{"-q", "--workdir", ws.root, "--data-dir", ws.data, "--out-dir", ws.out}
	return NewCLI().Execute(append(global, args...))
}

func TestExecute_Stages(t *testing.T) {
	t.Parallel()
	ws := newWorkspace(t)

	require.NoError(t, ws.execute("prepare"))
	assert.FileExists(t, filepath.Join(ws.data, "data.csv"))

	require.NoError(t, ws.execute("encode"))
	for _, name := range []string{"edges.csv", "features.csv", "dictionary.txt"} {
		assert.FileExists(t, filepath.Join(ws.data, name))
	}

	require.NoError(t, ws.execute("network"))

	require.NoError(t, ws.execute(append([]string{"embed"}, smallModel...)...))
	assert.FileExists(t, filepath.Join(ws.data, "embeddings.emd"))

	require.NoError(t, ws.execute("layout", "--tsne-iterations", "50"))
	assert.FileExists(t, filepath.Join(ws.data, "node_coordination.txt"))
	assert.FileExists(t, filepath.Join(ws.data, "node_clusters.txt"))

	require.NoError(t, ws.execute("visualize", "--top-n", "3", "--title", "Organisms"))
	assert.FileExists(t, filepath.Join(ws.out, ingestion.GraphPage))
	assert.FileExists(t, filepath.Join(ws.out, ingestion.SearchPage))

	require.NoError(t, ws.execute("similar", "sars@organism", "-n", "3"))
	require.NoError(t, ws.execute("similar", "unknown@nowhere"))

	exportDir := filepath.Join(ws.root, "parquet")
	require.NoError(t, ws.execute("export", "--dir", exportDir))
	entries, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestRunCmd(t *testing.T) {
	t.Parallel()

	t.Run("LoadsStoreAndWritesMeta", func(t *testing.T) {
		t.Parallel()
		ws := newWorkspace(t)

		args := append([]string{"run", "--no-predict", "--tsne-iterations", "50"}, smallModel...)
		require.NoError(t, ws.execute(args...))

		meta, err := readMeta(filepath.Join(ws.root, stateDir, "meta.json"))
		require.NoError(t, err)
		assert.Equal(t, Version, meta.Version)
		require.NotNil(t, meta.Stats)
		assert.Equal(t, 10, meta.Stats.Concepts)
		assert.Nil(t, meta.Stats.Prediction)
		assert.NotEmpty(t, meta.IndexedAt)

		require.NoError(t, ws.execute("status"))

		store := storage.NewBadgerBackend()
		require.NoError(t, store.Initialize(filepath.Join(ws.root, stateDir, "badger"), true))
		node, err := store.FindByName(context.Background(), "sars@organism")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, "SARS-CoV-2", node.Text)
		emb, err := store.GetEmbedding(context.Background(), node.ID)
		require.NoError(t, err)
		assert.Len(t, emb, 8)
		require.NoError(t, store.Close())
	})

	t.Run("NoStore", func(t *testing.T) {
		t.Parallel()
		ws := newWorkspace(t)

		args := append([]string{"run", "--no-predict", "--no-store", "--tsne-iterations", "50"}, smallModel...)
		require.NoError(t, ws.execute(args...))

		assert.FileExists(t, filepath.Join(ws.out, ingestion.GraphPage))
		assert.NoDirExists(t, filepath.Join(ws.root, stateDir))
	})

	t.Run("InvalidOverride", func(t *testing.T) {
		t.Parallel()
		ws := newWorkspace(t)

		err := ws.execute("run", "--no-predict", "--walk-length=-5")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "walk length must be at least 1")
		assert.NoDirExists(t, filepath.Join(ws.root, stateDir))
		assert.NoFileExists(t, filepath.Join(ws.data, "data.csv"))
	})

	t.Run("MissingSource", func(t *testing.T) {
		t.Parallel()
		ws := newWorkspace(t)
		require.NoError(t, os.Remove(filepath.Join(ws.data, "ontology.csv")))

		err := ws.execute(append([]string{"run", "--no-predict"}, smallModel...)...)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "running pipeline")
	})
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"StatusWithoutStore", []string{"status"}, "no store found"},
		{"ServeWithoutStore", []string{"serve"}, "no store found"},
		{"CleanNothing", []string{"clean", "--force"}, "nothing to clean"},
		{"EncodeBeforePrepare", []string{"encode"}, "encoding"},
		{"LayoutBeforeEmbed", []string{"layout"}, "loading embeddings"},
		{"UnknownCommand", []string{"analyze"}, "unexpected argument"},
		{"EmbedNegativeP", []string{"embed", "--p=-1"}, "p and q must be positive"},
		{"LayoutNegativePerplexity", []string{"layout", "--perplexity=-2"}, "perplexity must be positive"},
		{"WatchNegativeWorkers", []string{"watch", "--workers=-1"}, "workers must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ws := newWorkspace(t)
			err := ws.execute(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCleanCmd(t *testing.T) {
	t.Parallel()

	t.Run("StoreOnly", func(t *testing.T) {
		t.Parallel()
		ws := newWorkspace(t)
		require.NoError(t, os.MkdirAll(filepath.Join(ws.root, stateDir, "badger"), 0o755))
		require.NoError(t, ws.execute("prepare"))

		require.NoError(t, ws.execute("clean", "--force"))
		assert.NoDirExists(t, filepath.Join(ws.root, stateDir))
		assert.FileExists(t, filepath.Join(ws.data, "data.csv"))
	})

	t.Run("Outputs", func(t *testing.T) {
		t.Parallel()
		ws := newWorkspace(t)
		require.NoError(t, ws.execute("prepare"))
		require.NoError(t, ws.execute("encode"))

		require.NoError(t, ws.execute("clean", "--force", "--outputs"))
		assert.NoFileExists(t, filepath.Join(ws.data, "data.csv"))
		assert.NoFileExists(t, filepath.Join(ws.data, "edges.csv"))
		assert.FileExists(t, filepath.Join(ws.data, "ontology.csv"))
	})
}

func TestGeneratedFiles(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.DataDir = t.TempDir()
	cfg.OutDir = t.TempDir()
	// A source sharing an output's name is never cleaned.
	cfg.SourceFile = cfg.GraphDataFile

	for _, name := range []string{cfg.GraphDataFile, cfg.EdgesFile} {
		require.NoError(t, os.WriteFile(cfg.Path(name), []byte("x"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutDir, ingestion.GraphPage), []byte("x"), 0o644))

	assert.ElementsMatch(t, []string{
		cfg.Path(cfg.EdgesFile),
		filepath.Join(cfg.OutDir, ingestion.GraphPage),
	}, generatedFiles(cfg))
}

func TestFlagOverrides(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load()
	require.NoError(t, err)

	EmbedFlags{Dimensions: 16, NumWalks: 2, P: 0.5}.apply(&cfg)
	LayoutFlags{TSNEIterations: 20}.apply(&cfg)

	assert.Equal(t, 16, cfg.Dimensions)
	assert.Equal(t, 2, cfg.NumWalks)
	assert.InDelta(t, 0.5, cfg.P, 1e-12)
	assert.InDelta(t, 1.0, cfg.Q, 1e-12)
	assert.Equal(t, 80, cfg.WalkLength)
	assert.Equal(t, 20, cfg.TSNEIter)
	assert.InDelta(t, 30.0, cfg.Perplexity, 1e-12)

	EmbedFlags{Q: -2}.apply(&cfg)
	assert.InDelta(t, -2.0, cfg.Q, 1e-12)
	assert.Error(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	for _, verbose := range []bool{true, false} {
		log, err := newLogger(verbose)
		require.NoError(t, err)
		assert.Equal(t, verbose, log.Core().Enabled(-1))
		assert.True(t, log.Core().Enabled(1))
	}
}
