package ingestion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Benny93/ontolink-go/internal/config"
	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/export"
	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/layout"
	"github.com/Benny93/ontolink-go/internal/linkpred"
	"github.com/Benny93/ontolink-go/internal/network"
	"github.com/Benny93/ontolink-go/internal/parsers"
	"github.com/Benny93/ontolink-go/internal/similarity"
	"github.com/Benny93/ontolink-go/internal/storage"
	"github.com/Benny93/ontolink-go/internal/visual"
)

// Output page names, written to Config.OutDir.
const (
	GraphPage  = "graph.html"
	SearchPage = "search.html"
)

// PipelineResult summarizes a pipeline run.
type PipelineResult struct {
	Rows         int              `json:"rows"`
	Concepts     int              `json:"concepts"`
	Edges        int              `json:"edges"`
	Nodes        int              `json:"nodes"`
	NetworkEdges int              `json:"network_edges"`
	Vectors      int              `json:"vectors"`
	Clusters     int              `json:"clusters"`
	Prediction   *linkpred.Report `json:"prediction,omitempty"`
	DurationSecs float64          `json:"duration_secs"`
}

// ProgressCallback is called with phase name and progress (0.0-1.0).
type ProgressCallback func(phase string, progress float64)

// Encoded is the output of the encode stage.
type Encoded struct {
	Rows     []GraphRow
	Pairs    []Pair
	Encoding *graph.Encoding
}

// RunPipeline runs every stage in order: prepare, encode, network, embed,
// predict (when enabled), layout and visualize. The graph, network and
// vectors are loaded into store when it is not nil.
func RunPipeline(
	ctx context.Context,
	cfg config.Config,
	store storage.StorageBackend,
	progress ProgressCallback,
	log *zap.Logger,
) (*PipelineResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if progress == nil {
		progress = func(string, float64) {}
	}
	start := time.Now()
	result := &PipelineResult{}

	progress("Preparing graph data", 0.0)
	rows, err := Prepare(cfg)
	if err != nil {
		return nil, fmt.Errorf("prepare: %w", err)
	}
	result.Rows = len(rows)
	progress("Preparing graph data", 1.0)

	progress("Encoding concepts", 0.0)
	enc, err := Encode(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	result.Concepts = enc.Encoding.Len()
	result.Edges = len(enc.Pairs)
	progress("Encoding concepts", 1.0)

	progress("Building network", 0.0)
	net, err := BuildNetwork(cfg)
	if err != nil {
		return nil, fmt.Errorf("network: %w", err)
	}
	result.Nodes = net.NumNodes()
	result.NetworkEdges = net.NumEdges()
	progress("Building network", 1.0)

	progress("Learning embeddings", 0.0)
	kv, err := Embed(ctx, cfg, net, log)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	result.Vectors = kv.Len()
	progress("Learning embeddings", 1.0)

	if cfg.Predict {
		progress("Predicting links", 0.0)
		report, err := Predict(ctx, cfg, net, log)
		if err != nil {
			return nil, fmt.Errorf("predict: %w", err)
		}
		result.Prediction = report
		progress("Predicting links", 1.0)
	}

	progress("Laying out concepts", 0.0)
	g := BuildKnowledgeGraph(enc.Rows, enc.Encoding)
	coords, clusters, err := Layout(cfg, kv, enc.Encoding, g)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	result.Clusters = g.CountNodesByLabel(graph.NodeCommunity)
	stats := g.Stats()
	log.Debug("concept graph clustered",
		zap.Int("nodes", stats["nodes"]),
		zap.Int("relationships", stats["relationships"]),
	)
	progress("Laying out concepts", 1.0)

	progress("Rendering pages", 0.0)
	if err := Visualize(ctx, cfg, coords, clusters, kv, enc.Encoding); err != nil {
		return nil, fmt.Errorf("visualize: %w", err)
	}
	progress("Rendering pages", 1.0)

	if cfg.Parquet {
		progress("Exporting parquet", 0.0)
		if err := Export(cfg, net, kv, coords, clusters); err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		progress("Exporting parquet", 1.0)
	}

	if store != nil {
		progress("Loading to storage", 0.0)
		if err := Persist(ctx, store, g, net, kv, enc.Encoding); err != nil {
			return nil, fmt.Errorf("storing results: %w", err)
		}
		progress("Loading to storage", 1.0)
	}

	result.DurationSecs = time.Since(start).Seconds()
	log.Info("pipeline finished",
		zap.Int("concepts", result.Concepts),
		zap.Int("vectors", result.Vectors),
		zap.Int("clusters", result.Clusters),
		zap.Float64("seconds", result.DurationSecs),
	)
	return result, nil
}

// Prepare reads the ontology export and writes the graph data file.
func Prepare(cfg config.Config) ([]GraphRow, error) {
	cols := ClassColumns{ID: cfg.ClassIDColumn, Parent: cfg.ParentColumn, Label: cfg.LabelColumn}
	classes, err := readFile(cfg.Path(cfg.SourceFile), func(r io.Reader) ([]ClassRecord, error) {
		return ReadClasses(r, cols)
	})
	if err != nil {
		return nil, err
	}

	rows := BuildGraphData(classes)
	err = writeFile(cfg.Path(cfg.GraphDataFile), func(w io.Writer) error {
		return WriteGraphData(w, rows)
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Encode reads the graph data file and writes the edge list, the feature
// table and the dictionary.
func Encode(cfg config.Config) (*Encoded, error) {
	rows, err := readFile(cfg.Path(cfg.GraphDataFile), ReadGraphData)
	if err != nil {
		return nil, err
	}
	pairs := Pairs(rows)
	enc := EncodePairs(pairs)

	if err := writeFile(cfg.Path(cfg.EdgesFile), func(w io.Writer) error {
		return WriteEdges(w, pairs, enc, cfg.Symmetric)
	}); err != nil {
		return nil, err
	}
	if err := writeFile(cfg.Path(cfg.FeaturesFile), func(w io.Writer) error {
		return WriteFeatures(w, enc)
	}); err != nil {
		return nil, err
	}
	if err := writeFile(cfg.Path(cfg.DictionaryFile), func(w io.Writer) error {
		return WriteDictionary(w, enc)
	}); err != nil {
		return nil, err
	}
	return &Encoded{Rows: rows, Pairs: pairs, Encoding: enc}, nil
}

// BuildNetwork assembles the network from the edge list and feature table.
func BuildNetwork(cfg config.Config) (*network.Network, error) {
	edges, err := readFile(cfg.Path(cfg.EdgesFile), parsers.ReadEdgeList)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(cfg.Path(cfg.FeaturesFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, features, err := parsers.ReadFeatures(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", cfg.FeaturesFile, err)
	}

	return network.Build(edges, names, features)
}

// Embed learns node vectors over net and writes them in word2vec text
// format. Tokens are encoded concept indices.
func Embed(ctx context.Context, cfg config.Config, net *network.Network, log *zap.Logger) (*embeddings.KeyedVectors, error) {
	kv, err := embeddings.LearnNodeVectors(ctx, net, cfg.WalkOptions(), cfg.SkipGramOptions())
	if err != nil {
		return nil, err
	}
	kv, err = relabel(kv, net)
	if err != nil {
		return nil, err
	}
	log.Info("node vectors learned", zap.Int("vectors", kv.Len()), zap.Int("dimensions", kv.Dimensions()))

	err = writeFile(cfg.Path(cfg.EmbeddingsFile), kv.SaveWord2VecFormat)
	if err != nil {
		return nil, err
	}
	return kv, nil
}

// relabel renames position tokens to the encoded index at that position.
func relabel(kv *embeddings.KeyedVectors, net *network.Network) (*embeddings.KeyedVectors, error) {
	tokens := kv.Tokens()
	for i, tok := range tokens {
		pos, err := strconv.Atoi(tok)
		if err != nil || pos < 0 || pos >= len(net.Order) {
			return nil, fmt.Errorf("unexpected walk token %q", tok)
		}
		tokens[i] = strconv.Itoa(net.Order[pos])
	}
	return kv.WithTokens(tokens)
}

// Predict evaluates link prediction on held-out edges of net.
func Predict(ctx context.Context, cfg config.Config, net *network.Network, log *zap.Logger) (*linkpred.Report, error) {
	return linkpred.Run(ctx, net, cfg.LinkPredParams(), log)
}

// Layout projects every encoded concept that has a vector onto the plane,
// clusters the concept graph and writes both files. Rows follow encoding
// order.
func Layout(cfg config.Config, kv *embeddings.KeyedVectors, enc *graph.Encoding, g *graph.KnowledgeGraph) ([]layout.Point, []layout.Assignment, error) {
	var names, tokens []string
	for idx, name := range enc.Names() {
		tok := strconv.Itoa(idx)
		if kv.Has(tok) {
			names = append(names, name)
			tokens = append(tokens, tok)
		}
	}

	coords, err := layout.Coordinates(kv, tokens, cfg.TSNEOptions())
	if err != nil {
		return nil, nil, err
	}
	for i := range coords {
		coords[i].Name = names[i]
	}

	byID := layout.Clusters(g, cfg.Seed)
	clusters := make([]layout.Assignment, 0, len(names))
	for _, name := range names {
		id, ok := byID[graph.GenerateID(graph.NodeConcept, name)]
		if !ok {
			return nil, nil, fmt.Errorf("concept %q missing from graph", name)
		}
		clusters = append(clusters, layout.Assignment{Name: name, Cluster: id})
	}

	if err := writeFile(cfg.Path(cfg.CoordinatesFile), func(w io.Writer) error {
		return layout.WriteCoordinates(w, coords)
	}); err != nil {
		return nil, nil, err
	}
	if err := writeFile(cfg.Path(cfg.ClustersFile), func(w io.Writer) error {
		return layout.WriteClusters(w, clusters)
	}); err != nil {
		return nil, nil, err
	}
	return coords, clusters, nil
}

// Visualize renders graph.html and search.html into the output directory.
func Visualize(ctx context.Context, cfg config.Config, coords []layout.Point, clusters []layout.Assignment, kv *embeddings.KeyedVectors, enc *graph.Encoding) error {
	points, err := visual.LoadPoints(coords, clusters, NewSimilarityIndex(kv, enc), cfg.TopN)
	if err != nil {
		return err
	}

	if err := writeFile(filepath.Join(cfg.OutDir, GraphPage), func(w io.Writer) error {
		return visual.RenderPlot(ctx, w, points, cfg.PlotOptions())
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(cfg.OutDir, SearchPage), func(w io.Writer) error {
		return visual.RenderSearch(ctx, w, points)
	})
}

// NewSimilarityIndex indexes kv under the names of enc.
func NewSimilarityIndex(kv *embeddings.KeyedVectors, enc *graph.Encoding) *similarity.Index {
	dict := similarity.NewDictionary()
	for idx, name := range enc.Names() {
		dict.Add(name, strconv.Itoa(idx))
	}
	return similarity.NewIndex(kv, dict)
}

// Export writes the network, vectors and layout as parquet files.
func Export(cfg config.Config, net *network.Network, kv *embeddings.KeyedVectors, coords []layout.Point, clusters []layout.Assignment) error {
	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	if err := export.WriteNetwork(cfg.ExportDir, net); err != nil {
		return err
	}
	if err := export.WriteEmbeddings(cfg.ExportDir, kv); err != nil {
		return err
	}
	return export.WriteLayout(cfg.ExportDir, coords, clusters)
}

// Persist replaces the stored graph, network and concept vectors.
func Persist(ctx context.Context, store storage.StorageBackend, g *graph.KnowledgeGraph, net *network.Network, kv *embeddings.KeyedVectors, enc *graph.Encoding) error {
	if err := store.BulkLoad(ctx, g); err != nil {
		return fmt.Errorf("bulk load: %w", err)
	}
	if err := store.SaveNetwork(ctx, net); err != nil {
		return err
	}

	var vectors []storage.NodeEmbedding
	for idx, name := range enc.Names() {
		if v, ok := kv.Vector(strconv.Itoa(idx)); ok {
			vectors = append(vectors, storage.NodeEmbedding{
				NodeID:    graph.GenerateID(graph.NodeConcept, name),
				Embedding: v,
			})
		}
	}
	return store.StoreEmbeddings(ctx, vectors)
}

// LoadEncoding rebuilds the encoding from the dictionary file.
func LoadEncoding(cfg config.Config) (*graph.Encoding, error) {
	records, err := readFile(cfg.Path(cfg.DictionaryFile), func(r io.Reader) ([][]string, error) {
		return parsers.ReadRecords(r, ';')
	})
	if err != nil {
		return nil, err
	}

	enc := graph.NewEncoding()
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("dictionary line %d: expected name;index", i+1)
		}
		idx, err := strconv.Atoi(rec[1])
		if err != nil || enc.Add(rec[0]) != idx {
			return nil, fmt.Errorf("dictionary line %d: index %q out of sequence", i+1, rec[1])
		}
	}
	return enc, nil
}

// LoadGraph rebuilds the concept graph from the graph data file and the
// dictionary.
func LoadGraph(cfg config.Config) (*graph.KnowledgeGraph, *graph.Encoding, error) {
	rows, err := readFile(cfg.Path(cfg.GraphDataFile), ReadGraphData)
	if err != nil {
		return nil, nil, err
	}
	enc, err := LoadEncoding(cfg)
	if err != nil {
		return nil, nil, err
	}
	return BuildKnowledgeGraph(rows, enc), enc, nil
}

// LoadEmbeddings reads the word2vec file written by Embed.
func LoadEmbeddings(cfg config.Config) (*embeddings.KeyedVectors, error) {
	return readFile(cfg.Path(cfg.EmbeddingsFile), embeddings.LoadWord2VecFormat)
}

// LoadLayout reads the coordinate and cluster files written by Layout.
func LoadLayout(cfg config.Config) ([]layout.Point, []layout.Assignment, error) {
	coords, err := readFile(cfg.Path(cfg.CoordinatesFile), layout.ReadCoordinates)
	if err != nil {
		return nil, nil, err
	}
	clusters, err := readFile(cfg.Path(cfg.ClustersFile), layout.ReadClusters)
	if err != nil {
		return nil, nil, err
	}
	return coords, clusters, nil
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()

	v, err := read(bufio.NewReader(f))
	if err != nil {
		return zero, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return v, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", filepath.Base(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
