package ingestion

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/config"
	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/export"
	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/network"
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

// testConfig points every file at a fresh directory and shrinks the models
// so a full run takes well under a second.
func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err)

	root := t.TempDir()
	cfg.DataDir = filepath.Join(root, "data")
	cfg.OutDir = filepath.Join(root, "out")
	cfg.ExportDir = filepath.Join(root, "export")
	cfg.Dimensions = 8
	cfg.NumWalks = 4
	cfg.WalkLength = 10
	cfg.Window = 3
	cfg.Workers = 1
	cfg.TSNEIter = 50
	cfg.TopN = 3
	cfg.Predict = false

	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, os.WriteFile(cfg.Path(cfg.SourceFile), []byte(organismExport), 0o644))
	return cfg
}

func TestRunPipeline(t *testing.T) {
	t.Parallel()

	t.Run("FullPipeline", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		cfg := testConfig(t)

		store := storage.NewMemoryBackend()
		require.NoError(t, store.Initialize("", false))

		var phases []string
		progress := func(phase string, pct float64) {
			if pct == 1.0 {
				phases = append(phases, phase)
			}
		}

		result, err := RunPipeline(ctx, cfg, store, progress, zap.NewNop())
		require.NoError(t, err)

		assert.Equal(t, 10, result.Concepts)
		assert.Equal(t, 10, result.Nodes)
		assert.Equal(t, 10, result.Vectors)
		assert.Positive(t, result.Clusters)
		assert.Nil(t, result.Prediction)
		assert.Contains(t, phases, "Learning embeddings")
		assert.NotContains(t, phases, "Predicting links")
		assert.NotContains(t, phases, "Exporting parquet")

		for _, name := range []string{
			cfg.GraphDataFile, cfg.EdgesFile, cfg.FeaturesFile, cfg.DictionaryFile,
			cfg.EmbeddingsFile, cfg.CoordinatesFile, cfg.ClustersFile,
		} {
			assert.FileExists(t, cfg.Path(name))
		}
		assert.FileExists(t, filepath.Join(cfg.OutDir, GraphPage))
		assert.FileExists(t, filepath.Join(cfg.OutDir, SearchPage))

		node, err := store.FindByName(ctx, "sars@organism")
		require.NoError(t, err)
		require.NotNil(t, node)
		assert.Equal(t, "SARS-CoV-2", node.Text)

		emb, err := store.GetEmbedding(ctx, node.ID)
		require.NoError(t, err)
		assert.Len(t, emb, 8)

		net, err := store.LoadNetwork(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, net.NumNodes())

		assert.NotEmpty(t, store.GetNodesByLabel(ctx, string(graph.NodeCommunity)))
	})

	t.Run("Parquet", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.Parquet = true

		_, err := RunPipeline(context.Background(), cfg, nil, nil, nil)
		require.NoError(t, err)

		for _, name := range []string{export.AdjacencyFile, export.FeaturesFile, export.EmbeddingsFile, export.LayoutFile} {
			assert.FileExists(t, filepath.Join(cfg.ExportDir, name))
		}
	})

	t.Run("MissingSource", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		require.NoError(t, os.Remove(cfg.Path(cfg.SourceFile)))

		_, err := RunPipeline(context.Background(), cfg, nil, nil, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrNotExist)
		assert.True(t, strings.HasPrefix(err.Error(), "prepare:"))
	})
}

func TestStages(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := testConfig(t)

	rows, err := Prepare(cfg)
	require.NoError(t, err)
	assert.Len(t, rows, 10)

	enc, err := Encode(cfg)
	require.NoError(t, err)
	assert.Equal(t, rows, enc.Rows)
	assert.Equal(t, 10, enc.Encoding.Len())

	loaded, err := LoadEncoding(cfg)
	require.NoError(t, err)
	assert.Equal(t, enc.Encoding.Names(), loaded.Names())

	net, err := BuildNetwork(cfg)
	require.NoError(t, err)
	assert.Equal(t, 10, net.NumNodes())
	assert.Equal(t, []string{"source_idx", "feature"}, net.FeatureNames)

	kv, err := Embed(ctx, cfg, net, zap.NewNop())
	require.NoError(t, err)
	for idx := range enc.Encoding.Len() {
		assert.True(t, kv.Has(strconv.Itoa(idx)), "index %d", idx)
	}

	fromFile, err := LoadEmbeddings(cfg)
	require.NoError(t, err)
	assert.Equal(t, kv.Len(), fromFile.Len())

	g, _, err := LoadGraph(cfg)
	require.NoError(t, err)
	coords, clusters, err := Layout(cfg, kv, enc.Encoding, g)
	require.NoError(t, err)
	require.Len(t, coords, 10)
	require.Len(t, clusters, 10)
	assert.Equal(t, enc.Encoding.Name(0), coords[0].Name)
	assert.Equal(t, coords[3].Name, clusters[3].Name)

	readCoords, readClusters, err := LoadLayout(cfg)
	require.NoError(t, err)
	assert.Len(t, readCoords, 10)
	assert.Equal(t, clusters, readClusters)

	require.NoError(t, Visualize(ctx, cfg, readCoords, readClusters, fromFile, loaded))
	page, err := os.ReadFile(filepath.Join(cfg.OutDir, SearchPage))
	require.NoError(t, err)
	assert.Contains(t, string(page), `value="sars"`)
}

func TestRelabel(t *testing.T) {
	t.Parallel()

	net := network.FromEdges([]int{5, 7}, [][2]int{{0, 1}})
	vectors := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	t.Run("PositionsToIndices", func(t *testing.T) {
		t.Parallel()
		kv, err := embeddings.NewKeyedVectors([]string{"1", "0"}, vectors)
		require.NoError(t, err)

		out, err := relabel(kv, net)
		require.NoError(t, err)
		assert.Equal(t, []string{"7", "5"}, out.Tokens())
		v, ok := out.Vector("7")
		require.True(t, ok)
		assert.Equal(t, []float64{1, 0}, v)
	})

	t.Run("BadToken", func(t *testing.T) {
		t.Parallel()
		kv, err := embeddings.NewKeyedVectors([]string{"0", "9"}, vectors)
		require.NoError(t, err)
		_, err = relabel(kv, net)
		assert.Error(t, err)
	})
}

func TestLoadEncodingErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"MissingIndex", "a;0\nb\n"},
		{"OutOfSequence", "a;0\nb;5\n"},
		{"NotANumber", "a;zero\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			require.NoError(t, os.WriteFile(cfg.Path(cfg.DictionaryFile), []byte(tt.content), 0o644))
			_, err := LoadEncoding(cfg)
			assert.Error(t, err)
		})
	}
}
