package linkpred

import (
	"context"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/network"
)

// Params configures a link prediction run.
type Params struct {
	TestFrac float64
	ValFrac  float64
	Seed     uint64
	Walk     embeddings.WalkOptions
	SkipGram embeddings.Options
	// C is the inverse regularization strength of the edge classifier.
	C       float64
	MaxIter int
}

// DefaultParams holds out 30% of edges for testing and 10% for validation.
func DefaultParams() Params {
	return Params{
		TestFrac: 0.3,
		ValFrac:  0.1,
		Walk:     embeddings.DefaultWalkOptions(),
		SkipGram: embeddings.DefaultOptions(),
		C:        1,
		MaxIter:  100,
	}
}

// Report summarizes a link prediction run.
type Report struct {
	Nodes         int     `json:"nodes"`
	Edges         int     `json:"edges"`
	TrainPositive int     `json:"train_positive"`
	TrainNegative int     `json:"train_negative"`
	ValPositive   int     `json:"val_positive"`
	ValNegative   int     `json:"val_negative"`
	TestPositive  int     `json:"test_positive"`
	TestNegative  int     `json:"test_negative"`
	ValROC        float64 `json:"val_roc"`
	ValAP         float64 `json:"val_ap"`
	TestROC       float64 `json:"test_roc"`
	TestAP        float64 `json:"test_ap"`

	// Embeddings were trained on the training graph only.
	Embeddings *embeddings.KeyedVectors `json:"-"`
}

// Run splits net, learns node vectors on the training edges, fits an edge
// classifier on Hadamard edge features and scores it on the held-out edges.
func Run(ctx context.Context, net *network.Network, p Params, log *zap.Logger) (*Report, error) {
	if log == nil {
		log = zap.NewNop()
	}

	rng := rand.New(rand.NewPCG(p.Seed, p.Seed^0x5851f42d4c957f2d))
	split, err := MaskTestEdges(net, p.TestFrac, p.ValFrac, rng)
	if err != nil {
		return nil, fmt.Errorf("splitting edges: %w", err)
	}

	report := &Report{
		Nodes:         net.NumNodes(),
		Edges:         net.NumEdges(),
		TrainPositive: len(split.TrainEdges),
		TrainNegative: len(split.TrainFalse),
		ValPositive:   len(split.ValEdges),
		ValNegative:   len(split.ValFalse),
		TestPositive:  len(split.TestEdges),
		TestNegative:  len(split.TestFalse),
	}
	log.Info("edge split",
		zap.Int("nodes", report.Nodes),
		zap.Int("edges", report.Edges),
		zap.Int("train", report.TrainPositive),
		zap.Int("val", report.ValPositive),
		zap.Int("test", report.TestPositive),
	)

	kv, err := embeddings.LearnNodeVectors(ctx, split.Train, p.Walk, p.SkipGram)
	if err != nil {
		return nil, err
	}
	report.Embeddings = kv
	emb := EmbeddingMatrix(kv, net.NumNodes())

	clf := &LogisticRegression{C: p.C, MaxIter: p.MaxIter, FitIntercept: true}
	X, y := labelledExamples(emb, split.TrainEdges, split.TrainFalse)
	if X == nil {
		return nil, fmt.Errorf("training edges: %w", ErrEmptyClass)
	}
	if err := clf.Fit(X, y); err != nil {
		return nil, fmt.Errorf("fitting edge classifier: %w", err)
	}

	if len(split.ValEdges) > 0 {
		report.ValROC, report.ValAP, err = evaluate(clf, emb, split.ValEdges, split.ValFalse)
		if err != nil {
			return nil, fmt.Errorf("validation: %w", err)
		}
	}
	if len(split.TestEdges) > 0 {
		report.TestROC, report.TestAP, err = evaluate(clf, emb, split.TestEdges, split.TestFalse)
		if err != nil {
			return nil, fmt.Errorf("test: %w", err)
		}
	}

	log.Info("link prediction scores",
		zap.Float64("val_roc", report.ValROC),
		zap.Float64("val_ap", report.ValAP),
		zap.Float64("test_roc", report.TestROC),
		zap.Float64("test_ap", report.TestAP),
	)
	return report, nil
}

func evaluate(clf *LogisticRegression, emb *mat.Dense, pos, neg []Edge) (float64, float64, error) {
	X, y := labelledExamples(emb, pos, neg)
	preds, err := clf.PredictProba(X)
	if err != nil {
		return 0, 0, err
	}
	roc, err := ROCAUC(y, preds)
	if err != nil {
		return 0, 0, err
	}
	ap, err := AveragePrecision(y, preds)
	if err != nil {
		return 0, 0, err
	}
	return roc, ap, nil
}
