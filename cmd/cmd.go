// Package cmd provides CLI command implementations for ontolink.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/Benny93/ontolink-go/internal/config"
	"github.com/Benny93/ontolink-go/internal/ingestion"
	"github.com/Benny93/ontolink-go/internal/storage"
	"github.com/Benny93/ontolink-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

const stateDir = ".ontolink"

// Runtime is handed to every command's Run method.
type Runtime struct {
	Config  config.Config
	Log     *zap.Logger
	Workdir string
	Quiet   bool
}

func (rt *Runtime) storePath() string {
	return filepath.Join(rt.Workdir, stateDir, "badger")
}

func (rt *Runtime) metaPath() string {
	return filepath.Join(rt.Workdir, stateDir, "meta.json")
}

// progress prints phase updates on one line unless the CLI is quiet.
func (rt *Runtime) progress() ingestion.ProgressCallback {
	if rt.Quiet {
		return nil
	}
	return func(phase string, pct float64) {
		fmt.Printf("\r\033[K%s (%.0f%%)", phase, pct*100)
	}
}

// openStore opens the workspace store, creating it unless readOnly is set.
func (rt *Runtime) openStore(readOnly bool) (*storage.BadgerBackend, error) {
	path := rt.storePath()
	if readOnly {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("no store found in %s. Run 'ontolink run' first", rt.Workdir)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating %s directory: %w", stateDir, err)
	}

	store := storage.NewBadgerBackend()
	if err := store.Initialize(path, readOnly); err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

// Meta is written to meta.json after every full run.
type Meta struct {
	Version   string                    `json:"version"`
	DataDir   string                    `json:"data_dir"`
	OutDir    string                    `json:"out_dir"`
	Stats     *ingestion.PipelineResult `json:"stats"`
	IndexedAt string                    `json:"indexed_at"`
}

func writeMeta(path string, meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding meta.json: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing meta.json: %w", err)
	}
	return nil
}

func readMeta(path string) (Meta, error) {
	var meta Meta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("parsing meta.json: %w", err)
	}
	return meta, nil
}

// EmbedFlags override the walk and skip-gram settings. Zero keeps the
// configured value.
type EmbedFlags struct {
	Dimensions int     `help:"Embedding dimensions"`
	NumWalks   int     `name:"walks" help:"Walks per node"`
	WalkLength int     `help:"Nodes per walk"`
	P          float64 `name:"p" help:"Return parameter"`
	Q          float64 `name:"q" help:"In-out parameter"`
	Window     int     `help:"Skip-gram context window"`
	Epochs     int     `help:"Training epochs"`
	Workers    int     `help:"Training goroutines"`
}

func (f EmbedFlags) apply(cfg *config.Config) {
	setInt(&cfg.Dimensions, f.Dimensions)
	setInt(&cfg.NumWalks, f.NumWalks)
	setInt(&cfg.WalkLength, f.WalkLength)
	setInt(&cfg.Window, f.Window)
	setInt(&cfg.Epochs, f.Epochs)
	setInt(&cfg.Workers, f.Workers)
	setFloat(&cfg.P, f.P)
	setFloat(&cfg.Q, f.Q)
}

// LayoutFlags override the t-SNE settings.
type LayoutFlags struct {
	Perplexity     float64 `help:"t-SNE perplexity"`
	TSNEIterations int     `name:"tsne-iterations" help:"t-SNE iterations"`
}

func (f LayoutFlags) apply(cfg *config.Config) {
	setFloat(&cfg.Perplexity, f.Perplexity)
	setInt(&cfg.TSNEIter, f.TSNEIterations)
}

// Out of range values are kept so Config.Validate reports them.
func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// PrepareCmd turns the ontology export into the graph data file.
type PrepareCmd struct{}

// Run executes the prepare command.
func (c *PrepareCmd) Run(rt *Runtime) error {
	rows, err := ingestion.Prepare(rt.Config)
	if err != nil {
		return fmt.Errorf("preparing graph data: %w", err)
	}
	color.Green("✓ Wrote %d rows to %s", len(rows), rt.Config.Path(rt.Config.GraphDataFile))
	return nil
}

// EncodeCmd writes the edge list, feature table and dictionary.
type EncodeCmd struct {
	Symmetric bool `help:"Write both directions of every edge"`
}

// Run executes the encode command.
func (c *EncodeCmd) Run(rt *Runtime) error {
	if c.Symmetric {
		rt.Config.Symmetric = true
	}
	enc, err := ingestion.Encode(rt.Config)
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}
	color.Green("✓ Encoded graph data")
	fmt.Printf("  Concepts:       %d\n", enc.Encoding.Len())
	fmt.Printf("  Edges:          %d\n", len(enc.Pairs))
	return nil
}

// NetworkCmd assembles the network and reports its size.
type NetworkCmd struct{}

// Run executes the network command.
func (c *NetworkCmd) Run(rt *Runtime) error {
	net, err := ingestion.BuildNetwork(rt.Config)
	if err != nil {
		return fmt.Errorf("building network: %w", err)
	}
	color.Green("✓ Network is connected")
	fmt.Printf("  Nodes:          %d\n", net.NumNodes())
	fmt.Printf("  Edges:          %d\n", net.NumEdges())
	fmt.Printf("  Features:       %d\n", len(net.FeatureNames))
	return nil
}

// EmbedCmd learns node vectors and writes the embeddings file.
type EmbedCmd struct {
	EmbedFlags `embed:""`
}

// Run executes the embed command.
func (c *EmbedCmd) Run(rt *Runtime) error {
	c.apply(&rt.Config)
	if err := rt.Config.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	net, err := ingestion.BuildNetwork(rt.Config)
	if err != nil {
		return fmt.Errorf("building network: %w", err)
	}
	kv, err := ingestion.Embed(ctx, rt.Config, net, rt.Log)
	if err != nil {
		return fmt.Errorf("learning embeddings: %w", err)
	}
	color.Green("✓ Wrote %d vectors to %s", kv.Len(), rt.Config.Path(rt.Config.EmbeddingsFile))
	return nil
}

// PredictCmd evaluates link prediction on held-out edges.
type PredictCmd struct {
	EmbedFlags `embed:""`
	TestFrac   float64 `help:"Fraction of edges held out for testing"`
	ValFrac    float64 `help:"Fraction of edges held out for validation"`
	JSON       bool    `help:"Print the report as JSON"`
}

// Run executes the predict command.
func (c *PredictCmd) Run(rt *Runtime) error {
	c.apply(&rt.Config)
	if c.TestFrac > 0 {
		rt.Config.TestFrac = c.TestFrac
	}
	if c.ValFrac > 0 {
		rt.Config.ValFrac = c.ValFrac
	}
	if err := rt.Config.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	net, err := ingestion.BuildNetwork(rt.Config)
	if err != nil {
		return fmt.Errorf("building network: %w", err)
	}
	report, err := ingestion.Predict(ctx, rt.Config, net, rt.Log)
	if err != nil {
		return fmt.Errorf("predicting links: %w", err)
	}

	if c.JSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	color.Green("✓ Link prediction")
	fmt.Printf("  Train edges:    %d / %d\n", report.TrainPositive, report.TrainNegative)
	fmt.Printf("  Validation:     ROC %.4f  AP %.4f\n", report.ValROC, report.ValAP)
	fmt.Printf("  Test:           ROC %.4f  AP %.4f\n", report.TestROC, report.TestAP)
	return nil
}

// LayoutCmd projects the vectors to 2-D and clusters the concepts.
type LayoutCmd struct {
	LayoutFlags `embed:""`
}

// Run executes the layout command.
func (c *LayoutCmd) Run(rt *Runtime) error {
	c.apply(&rt.Config)
	if err := rt.Config.Validate(); err != nil {
		return err
	}
	kv, err := ingestion.LoadEmbeddings(rt.Config)
	if err != nil {
		return fmt.Errorf("loading embeddings: %w", err)
	}
	g, enc, err := ingestion.LoadGraph(rt.Config)
	if err != nil {
		return fmt.Errorf("loading graph: %w", err)
	}
	coords, _, err := ingestion.Layout(rt.Config, kv, enc, g)
	if err != nil {
		return fmt.Errorf("layout: %w", err)
	}
	color.Green("✓ Placed %d concepts", len(coords))
	return nil
}

// VisualizeCmd renders graph.html and search.html.
type VisualizeCmd struct {
	TopN  int    `name:"top-n" help:"Similar concepts listed per point"`
	Title string `help:"Plot title"`
}

// Run executes the visualize command.
func (c *VisualizeCmd) Run(rt *Runtime) error {
	setInt(&rt.Config.TopN, c.TopN)
	if c.Title != "" {
		rt.Config.Title = c.Title
	}
	coords, clusters, err := ingestion.LoadLayout(rt.Config)
	if err != nil {
		return fmt.Errorf("loading layout: %w", err)
	}
	kv, err := ingestion.LoadEmbeddings(rt.Config)
	if err != nil {
		return fmt.Errorf("loading embeddings: %w", err)
	}
	enc, err := ingestion.LoadEncoding(rt.Config)
	if err != nil {
		return fmt.Errorf("loading dictionary: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()
	if err := ingestion.Visualize(ctx, rt.Config, coords, clusters, kv, enc); err != nil {
		return fmt.Errorf("rendering pages: %w", err)
	}
	color.Green("✓ Wrote %s and %s to %s", ingestion.GraphPage, ingestion.SearchPage, rt.Config.OutDir)
	return nil
}

// SimilarCmd prints the concepts closest to a concept.
type SimilarCmd struct {
	Name string `arg:"" help:"Concept name as it appears in the ontology export"`
	TopN int    `short:"n" name:"top-n" help:"Number of similar concepts"`
}

// Run executes the similar command.
func (c *SimilarCmd) Run(rt *Runtime) error {
	setInt(&rt.Config.TopN, c.TopN)
	kv, err := ingestion.LoadEmbeddings(rt.Config)
	if err != nil {
		return fmt.Errorf("loading embeddings: %w", err)
	}
	enc, err := ingestion.LoadEncoding(rt.Config)
	if err != nil {
		return fmt.Errorf("loading dictionary: %w", err)
	}

	res, err := ingestion.NewSimilarityIndex(kv, enc).TopN(c.Name, rt.Config.TopN)
	if err != nil {
		return err
	}
	if len(res.Names) == 0 {
		fmt.Printf("No similar concepts for '%s'\n", c.Name)
		return nil
	}
	for i, name := range res.Names {
		fmt.Printf("%2d. %-40s %.4f\n", i+1, name, res.Similarities[i])
	}
	return nil
}

// RunCmd runs every stage and loads the results into the workspace store.
type RunCmd struct {
	EmbedFlags  `embed:""`
	LayoutFlags `embed:""`
	NoPredict   bool `help:"Skip link prediction"`
	Parquet     bool `help:"Also export parquet files"`
	NoStore     bool `help:"Do not load results into the workspace store"`
}

// Run executes the run command.
func (c *RunCmd) Run(rt *Runtime) error {
	c.EmbedFlags.apply(&rt.Config)
	c.LayoutFlags.apply(&rt.Config)
	if c.NoPredict {
		rt.Config.Predict = false
	}
	if c.Parquet {
		rt.Config.Parquet = true
	}
	if err := rt.Config.Validate(); err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	var store storage.StorageBackend
	if !c.NoStore {
		badger, err := rt.openStore(false)
		if err != nil {
			return err
		}
		defer func() { _ = badger.Close() }()
		store = badger
	}

	result, err := ingestion.RunPipeline(ctx, rt.Config, store, rt.progress(), rt.Log)
	if err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}
	if !rt.Quiet {
		fmt.Println()
	}

	if !c.NoStore {
		err := writeMeta(rt.metaPath(), Meta{
			Version:   Version,
			DataDir:   rt.Config.DataDir,
			OutDir:    rt.Config.OutDir,
			Stats:     result,
			IndexedAt: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
	}

	color.Green("\n✓ Pipeline complete")
	fmt.Printf("  Concepts:       %d\n", result.Concepts)
	fmt.Printf("  Network:        %d nodes, %d edges\n", result.Nodes, result.NetworkEdges)
	fmt.Printf("  Vectors:        %d\n", result.Vectors)
	fmt.Printf("  Clusters:       %d\n", result.Clusters)
	if p := result.Prediction; p != nil {
		fmt.Printf("  Test ROC / AP:  %.4f / %.4f\n", p.TestROC, p.TestAP)
	}
	fmt.Printf("  Duration:       %.2fs\n", result.DurationSecs)
	return nil
}

// WatchCmd re-runs the pipeline whenever the inputs change.
type WatchCmd struct {
	EmbedFlags `embed:""`
	NoPredict  bool          `help:"Skip link prediction"`
	Debounce   time.Duration `help:"Quiet period before a rebuild"`
}

// Run executes the watch command.
func (c *WatchCmd) Run(rt *Runtime) error {
	c.apply(&rt.Config)
	if c.NoPredict {
		rt.Config.Predict = false
	}
	if c.Debounce > 0 {
		rt.Config.Debounce = c.Debounce
	}
	if err := rt.Config.Validate(); err != nil {
		return err
	}

	store, err := rt.openStore(false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signalContext()
	defer stop()

	err = ingestion.Watch(ctx, rt.Config, store, rt.Log)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch error: %w", err)
	}
	fmt.Println("\nWatch mode stopped.")
	return nil
}

// ServeCmd starts the MCP server on stdio.
type ServeCmd struct {
	Watch bool `short:"w" help:"Rebuild the store when the inputs change"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(rt *Runtime) error {
	store, err := rt.openStore(!c.Watch)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx, stop := signalContext()
	defer stop()

	if c.Watch {
		go func() {
			err := ingestion.Watch(ctx, rt.Config, store, rt.Log)
			if err != nil && !errors.Is(err, context.Canceled) {
				rt.Log.Error("watch stopped", zap.Error(err))
			}
		}()
	}

	// stdout carries the protocol; diagnostics go to the logger.
	rt.Log.Info("serving MCP on stdio", zap.Bool("watch", c.Watch))
	return mcp.NewServer(store, Version).Run(ctx)
}

// StatusCmd shows what the last run stored.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run(rt *Runtime) error {
	meta, err := readMeta(rt.metaPath())
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no store found in %s. Run 'ontolink run' first", rt.Workdir)
		}
		return err
	}

	fmt.Printf("Store status for %s\n", rt.Workdir)
	fmt.Printf("  Version:        %s\n", meta.Version)
	fmt.Printf("  Last run:       %s\n", meta.IndexedAt)
	fmt.Printf("  Data:           %s\n", meta.DataDir)
	if s := meta.Stats; s != nil {
		fmt.Printf("  Concepts:       %d\n", s.Concepts)
		fmt.Printf("  Network:        %d nodes, %d edges\n", s.Nodes, s.NetworkEdges)
		fmt.Printf("  Vectors:        %d\n", s.Vectors)
		fmt.Printf("  Clusters:       %d\n", s.Clusters)
		if p := s.Prediction; p != nil {
			fmt.Printf("  Test ROC / AP:  %.4f / %.4f\n", p.TestROC, p.TestAP)
		}
	}
	return nil
}

// ExportCmd writes the network, vectors and layout as parquet files.
type ExportCmd struct {
	Dir string `help:"Export directory" type:"path"`
}

// Run executes the export command.
func (c *ExportCmd) Run(rt *Runtime) error {
	if c.Dir != "" {
		rt.Config.ExportDir = c.Dir
	}
	net, err := ingestion.BuildNetwork(rt.Config)
	if err != nil {
		return fmt.Errorf("building network: %w", err)
	}
	kv, err := ingestion.LoadEmbeddings(rt.Config)
	if err != nil {
		return fmt.Errorf("loading embeddings: %w", err)
	}
	coords, clusters, err := ingestion.LoadLayout(rt.Config)
	if err != nil {
		return fmt.Errorf("loading layout: %w", err)
	}
	if err := ingestion.Export(rt.Config, net, kv, coords, clusters); err != nil {
		return err
	}
	color.Green("✓ Exported parquet files to %s", rt.Config.ExportDir)
	return nil
}

// CleanCmd deletes the workspace store and, optionally, generated files.
type CleanCmd struct {
	Force   bool `short:"f" help:"Skip confirmation"`
	Outputs bool `help:"Also delete generated data files and pages"`
}

// Run executes the clean command.
func (c *CleanCmd) Run(rt *Runtime) error {
	dir := filepath.Join(rt.Workdir, stateDir)
	targets := []string{}
	if _, err := os.Stat(dir); err == nil {
		targets = append(targets, dir)
	}
	if c.Outputs {
		targets = append(targets, generatedFiles(rt.Config)...)
	}
	if len(targets) == 0 {
		return fmt.Errorf("nothing to clean in %s", rt.Workdir)
	}

	if !c.Force {
		fmt.Printf("Delete %d paths under %s? [y/N] ", len(targets), rt.Workdir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	for _, path := range targets {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
	}
	color.Green("✓ Cleaned %s", rt.Workdir)
	return nil
}

// generatedFiles lists the pipeline outputs that exist.
func generatedFiles(cfg config.Config) []string {
	candidates := []string{
		filepath.Join(cfg.OutDir, ingestion.GraphPage),
		filepath.Join(cfg.OutDir, ingestion.SearchPage),
	}
	for _, name := range []string{
		cfg.GraphDataFile, cfg.EdgesFile, cfg.FeaturesFile, cfg.DictionaryFile,
		cfg.EmbeddingsFile, cfg.CoordinatesFile, cfg.ClustersFile,
	} {
		if name != cfg.SourceFile {
			candidates = append(candidates, cfg.Path(name))
		}
	}

	var existing []string
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	return existing
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// newLogger returns a development logger when verbose, otherwise a
// production logger that only reports warnings.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`
	Workdir string           `short:"C" default:"." type:"path" help:"Directory holding the .ontolink store"`
	DataDir string           `type:"path" help:"Directory with the ontology export and generated data files"`
	OutDir  string           `type:"path" help:"Directory receiving graph.html and search.html"`

	// Commands
	Prepare   PrepareCmd   `cmd:"" help:"Turn the ontology export into graph data"`
	Encode    EncodeCmd    `cmd:"" help:"Write edges, features and the dictionary"`
	Network   NetworkCmd   `cmd:"" help:"Assemble and check the network"`
	Embed     EmbedCmd     `cmd:"" help:"Learn node vectors with biased random walks"`
	Predict   PredictCmd   `cmd:"" help:"Evaluate link prediction on held-out edges"`
	Layout    LayoutCmd    `cmd:"" help:"Project vectors to 2-D and cluster concepts"`
	Visualize VisualizeCmd `cmd:"" help:"Render the plot and search pages"`
	Similar   SimilarCmd   `cmd:"" help:"List concepts similar to a concept"`
	Run       RunCmd       `cmd:"" help:"Run every stage and load the store"`
	Watch     WatchCmd     `cmd:"" help:"Re-run the pipeline when inputs change"`
	Serve     ServeCmd     `cmd:"" help:"Start MCP server (stdio transport)"`
	Setup     SetupCmd     `cmd:"" help:"Configure MCP for Claude Code / Cursor"`
	Status    StatusCmd    `cmd:"" help:"Show what the last run stored"`
	Export    ExportCmd    `cmd:"" help:"Export network, vectors and layout as parquet"`
	Clean     CleanCmd     `cmd:"" help:"Delete the workspace store"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	parser, err := kong.New(c,
		kong.Name("ontolink"),
		kong.Description("Ontology network embeddings: link prediction, similarity and visualization"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)
	if err != nil {
		return err
	}
	kongCtx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	if c.OutDir != "" {
		cfg.OutDir = c.OutDir
	}

	log, err := newLogger(c.Verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	return kongCtx.Run(&Runtime{
		Config:  cfg,
		Log:     log,
		Workdir: c.Workdir,
		Quiet:   c.Quiet,
	})
}
