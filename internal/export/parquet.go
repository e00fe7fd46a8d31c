// Package export writes pipeline results as parquet files for downstream
// analysis tools.
package export

import (
	"fmt"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/layout"
	"github.com/Benny93/ontolink-go/internal/network"
)

const numGoRoutines int64 = 4

// File names inside an export directory.
const (
	AdjacencyFile  = "adjacency.parquet"
	FeaturesFile   = "features.parquet"
	EmbeddingsFile = "embeddings.parquet"
	LayoutFile     = "layout.parquet"
)

// AdjacencyRow is one stored entry of the adjacency matrix.
type AdjacencyRow struct {
	Src   int64   `parquet:"name=src, type=INT64"`
	Dst   int64   `parquet:"name=dst, type=INT64"`
	Value float64 `parquet:"name=value, type=DOUBLE"`
}

// FeatureRow holds the feature vector of one node.
type FeatureRow struct {
	Node   int64     `parquet:"name=node, type=INT64"`
	Values []float64 `parquet:"name=values, type=LIST, valuetype=DOUBLE"`
}

// EmbeddingRow holds the learned vector of one node.
type EmbeddingRow struct {
	Token  string    `parquet:"name=token, type=UTF8"`
	Vector []float64 `parquet:"name=vector, type=LIST, valuetype=DOUBLE"`
}

// LayoutRow is a concept's plot position and cluster.
type LayoutRow struct {
	Name    string  `parquet:"name=name, type=UTF8"`
	X       float64 `parquet:"name=x, type=DOUBLE"`
	Y       float64 `parquet:"name=y, type=DOUBLE"`
	Cluster int64   `parquet:"name=cluster, type=INT64"`
}

// WriteNetwork writes the adjacency matrix in coordinate form, keyed by
// encoded node index, and the feature matrix when present.
func WriteNetwork(dir string, net *network.Network) error {
	var rows []AdjacencyRow
	net.Adjacency.DoNonZero(func(i, j int, v float64) {
		rows = append(rows, AdjacencyRow{Src: int64(net.Order[i]), Dst: int64(net.Order[j]), Value: v})
	})
	if err := writeRows(filepath.Join(dir, AdjacencyFile), rows); err != nil {
		return err
	}

	if net.Features == nil {
		return nil
	}
	features := make([]FeatureRow, len(net.Order))
	for i, node := range net.Order {
		features[i] = FeatureRow{Node: int64(node), Values: net.Features.RawRowView(i)}
	}
	return writeRows(filepath.Join(dir, FeaturesFile), features)
}

// WriteEmbeddings writes one row per vector.
func WriteEmbeddings(dir string, kv *embeddings.KeyedVectors) error {
	rows := make([]EmbeddingRow, 0, kv.Len())
	for _, tok := range kv.Tokens() {
		v, _ := kv.Vector(tok)
		rows = append(rows, EmbeddingRow{Token: tok, Vector: v})
	}
	return writeRows(filepath.Join(dir, EmbeddingsFile), rows)
}

// WriteLayout joins points with their clusters by name. Points without a
// cluster get -1.
func WriteLayout(dir string, points []layout.Point, clusters []layout.Assignment) error {
	byName := make(map[string]int, len(clusters))
	for _, a := range clusters {
		byName[a.Name] = a.Cluster
	}

	rows := make([]LayoutRow, len(points))
	for i, p := range points {
		c, ok := byName[p.Name]
		if !ok {
			c = -1
		}
		rows[i] = LayoutRow{Name: p.Name, X: p.X, Y: p.Y, Cluster: int64(c)}
	}
	return writeRows(filepath.Join(dir, LayoutFile), rows)
}

// ReadAdjacency reads an adjacency export.
func ReadAdjacency(path string) ([]AdjacencyRow, error) {
	return readRows[AdjacencyRow](path)
}

// ReadFeatures reads a feature export.
func ReadFeatures(path string) ([]FeatureRow, error) {
	return readRows[FeatureRow](path)
}

// ReadEmbeddings reads an embedding export back into keyed vectors.
func ReadEmbeddings(path string) (*embeddings.KeyedVectors, error) {
	rows, err := readRows[EmbeddingRow](path)
	if err != nil {
		return nil, err
	}
	return embeddingsFromRows(rows)
}

// ReadLayout reads a layout export.
func ReadLayout(path string) ([]LayoutRow, error) {
	return readRows[LayoutRow](path)
}

// ToEdges converts adjacency rows to an upper-triangle edge list.
func ToEdges(rows []AdjacencyRow) [][2]int {
	var edges [][2]int
	for _, r := range rows {
		if r.Src <= r.Dst {
			edges = append(edges, [2]int{int(r.Src), int(r.Dst)})
		}
	}
	return edges
}

func embeddingsFromRows(rows []EmbeddingRow) (*embeddings.KeyedVectors, error) {
	if len(rows) == 0 {
		return embeddings.NewKeyedVectors(nil, &mat.Dense{})
	}

	dim := len(rows[0].Vector)
	tokens := make([]string, len(rows))
	vectors := mat.NewDense(len(rows), dim, nil)
	for i, r := range rows {
		if len(r.Vector) != dim {
			return nil, fmt.Errorf("embedding %q has %d values, want %d", r.Token, len(r.Vector), dim)
		}
		tokens[i] = r.Token
		vectors.SetRow(i, r.Vector)
	}
	return embeddings.NewKeyedVectors(tokens, vectors)
}

func writeRows[T any](path string, rows []T) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	return writeRowsTo(fw, path, rows)
}

// writeRowsTo writes rows to fw and closes it. A failed close fails the write.
func writeRowsTo[T any](fw source.ParquetFile, path string, rows []T) (err error) {
	defer func() {
		if cerr := fw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	pw, err := writer.NewParquetWriter(fw, new(T), numGoRoutines)
	if err != nil {
		return fmt.Errorf("creating parquet writer: %w", err)
	}
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finishing %s: %w", path, err)
	}
	return nil
}

func readRows[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), numGoRoutines)
	if err != nil {
		return nil, fmt.Errorf("creating parquet reader: %w", err)
	}
	defer pr.ReadStop()

	rows := make([]T, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}
