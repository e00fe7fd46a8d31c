// Package config loads ontolink settings from ONTOLINK_* environment
// variables.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/layout"
	"github.com/Benny93/ontolink-go/internal/linkpred"
	"github.com/Benny93/ontolink-go/internal/visual"
)

// Config holds file locations and every stage's parameters. File names are
// relative to DataDir unless noted.
type Config struct {
	DataDir string `env:"ONTOLINK_DATA_DIR" envDefault:"data"`
	// OutDir receives graph.html and search.html.
	OutDir string `env:"ONTOLINK_OUT_DIR" envDefault:"out"`
	// ExportDir receives parquet files.
	ExportDir string `env:"ONTOLINK_EXPORT_DIR" envDefault:"export"`

	SourceFile      string `env:"ONTOLINK_SOURCE_FILE"      envDefault:"ontology.csv"`
	GraphDataFile   string `env:"ONTOLINK_GRAPH_DATA_FILE"  envDefault:"data.csv"`
	EdgesFile       string `env:"ONTOLINK_EDGES_FILE"       envDefault:"edges.csv"`
	FeaturesFile    string `env:"ONTOLINK_FEATURES_FILE"    envDefault:"features.csv"`
	DictionaryFile  string `env:"ONTOLINK_DICTIONARY_FILE"  envDefault:"dictionary.txt"`
	EmbeddingsFile  string `env:"ONTOLINK_EMBEDDINGS_FILE"  envDefault:"embeddings.emd"`
	CoordinatesFile string `env:"ONTOLINK_COORDINATES_FILE" envDefault:"node_coordination.txt"`
	ClustersFile    string `env:"ONTOLINK_CLUSTERS_FILE"    envDefault:"node_clusters.txt"`

	ClassIDColumn string `env:"ONTOLINK_CLASS_ID_COLUMN" envDefault:"Class ID"`
	ParentColumn  string `env:"ONTOLINK_PARENT_COLUMN"   envDefault:"Parents"`
	LabelColumn   string `env:"ONTOLINK_LABEL_COLUMN"    envDefault:"Preferred Label"`
	Symmetric     bool   `env:"ONTOLINK_SYMMETRIC_EDGES" envDefault:"false"`

	P          float64 `env:"ONTOLINK_P"           envDefault:"1"`
	Q          float64 `env:"ONTOLINK_Q"           envDefault:"1"`
	NumWalks   int     `env:"ONTOLINK_NUM_WALKS"   envDefault:"10"`
	WalkLength int     `env:"ONTOLINK_WALK_LENGTH" envDefault:"80"`
	Directed   bool    `env:"ONTOLINK_DIRECTED"    envDefault:"false"`

	Dimensions int     `env:"ONTOLINK_DIMENSIONS" envDefault:"128"`
	Window     int     `env:"ONTOLINK_WINDOW"     envDefault:"10"`
	MinCount   int     `env:"ONTOLINK_MIN_COUNT"  envDefault:"0"`
	Negative   int     `env:"ONTOLINK_NEGATIVE"   envDefault:"5"`
	Alpha      float64 `env:"ONTOLINK_ALPHA"      envDefault:"0.025"`
	Epochs     int     `env:"ONTOLINK_EPOCHS"     envDefault:"1"`
	Workers    int     `env:"ONTOLINK_WORKERS"    envDefault:"8"`
	Seed       uint64  `env:"ONTOLINK_SEED"       envDefault:"1"`

	Predict  bool    `env:"ONTOLINK_PREDICT"   envDefault:"true"`
	TestFrac float64 `env:"ONTOLINK_TEST_FRAC" envDefault:"0.3"`
	ValFrac  float64 `env:"ONTOLINK_VAL_FRAC"  envDefault:"0.1"`

	Perplexity   float64 `env:"ONTOLINK_TSNE_PERPLEXITY"    envDefault:"30"`
	LearningRate float64 `env:"ONTOLINK_TSNE_LEARNING_RATE" envDefault:"200"`
	TSNEIter     int     `env:"ONTOLINK_TSNE_ITERATIONS"    envDefault:"300"`

	TopN  int    `env:"ONTOLINK_TOP_N" envDefault:"10"`
	Title string `env:"ONTOLINK_TITLE" envDefault:"Ontology Network Embeddings Visualization"`

	Parquet  bool          `env:"ONTOLINK_PARQUET"  envDefault:"false"`
	Debounce time.Duration `env:"ONTOLINK_DEBOUNCE" envDefault:"2s"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects parameter combinations the stages cannot run with.
func (c Config) Validate() error {
	switch {
	case c.P <= 0 || c.Q <= 0:
		return fmt.Errorf("p and q must be positive, got %g and %g", c.P, c.Q)
	case c.NumWalks < 1 || c.WalkLength < 1:
		return fmt.Errorf("walks and walk length must be at least 1")
	case c.Dimensions < 1:
		return fmt.Errorf("dimensions must be at least 1, got %d", c.Dimensions)
	case c.Window < 1:
		return fmt.Errorf("window must be at least 1, got %d", c.Window)
	case c.Epochs < 1 || c.Workers < 1:
		return fmt.Errorf("epochs and workers must be at least 1, got %d and %d", c.Epochs, c.Workers)
	case c.Perplexity <= 0 || c.TSNEIter < 1:
		return fmt.Errorf("t-SNE perplexity must be positive and iterations at least 1")
	case c.TestFrac < 0 || c.ValFrac < 0 || c.TestFrac+c.ValFrac >= 1:
		return fmt.Errorf("test and validation fractions must be non-negative and sum below 1")
	case c.TopN < 0:
		return fmt.Errorf("top-n must not be negative, got %d", c.TopN)
	}
	return nil
}

// Path resolves a file name inside DataDir.
func (c Config) Path(name string) string {
	return filepath.Join(c.DataDir, name)
}

// WalkOptions returns the random walk settings.
func (c Config) WalkOptions() embeddings.WalkOptions {
	return embeddings.WalkOptions{
		P:          c.P,
		Q:          c.Q,
		NumWalks:   c.NumWalks,
		WalkLength: c.WalkLength,
		Directed:   c.Directed,
		Seed:       c.Seed,
	}
}

// SkipGramOptions returns the skip-gram settings.
func (c Config) SkipGramOptions() embeddings.Options {
	opts := embeddings.DefaultOptions()
	opts.Dimensions = c.Dimensions
	opts.Window = c.Window
	opts.MinCount = c.MinCount
	opts.Negative = c.Negative
	opts.Alpha = c.Alpha
	opts.Epochs = c.Epochs
	opts.Workers = c.Workers
	opts.Seed = c.Seed
	return opts
}

// LinkPredParams returns the link prediction settings.
func (c Config) LinkPredParams() linkpred.Params {
	p := linkpred.DefaultParams()
	p.TestFrac = c.TestFrac
	p.ValFrac = c.ValFrac
	p.Seed = c.Seed
	p.Walk = c.WalkOptions()
	p.SkipGram = c.SkipGramOptions()
	return p
}

// TSNEOptions returns the layout settings.
func (c Config) TSNEOptions() layout.TSNEOptions {
	return layout.TSNEOptions{
		Perplexity:   c.Perplexity,
		LearningRate: c.LearningRate,
		MaxIter:      c.TSNEIter,
	}
}

// PlotOptions returns the plot settings.
func (c Config) PlotOptions() visual.PlotOptions {
	opts := visual.DefaultPlotOptions()
	opts.Title = c.Title
	opts.PageTitle = c.Title
	return opts
}
