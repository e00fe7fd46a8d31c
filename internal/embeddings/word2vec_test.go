package embeddings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Dimensions = 8
	opts.Window = 2
	opts.Workers = 1
	opts.Epochs = 3
	opts.Seed = 42
	return opts
}

func corpus() [][]string {
	var sentences [][]string
	for i := 0; i < 50; i++ {
		sentences = append(sentences,
			[]string{"0", "1", "2", "1", "0"},
			[]string{"3", "4", "3", "4"},
		)
	}
	return sentences
}

func TestBuildVocab(t *testing.T) {
	t.Parallel()

	vocab, index := buildVocab([][]string{{"b", "a", "c"}, {"a", "c", "d"}}, 0)

	tokens := make([]string, len(vocab))
	for i, w := range vocab {
		tokens[i] = w.token
	}
	// Ties keep first-appearance order.
	assert.Equal(t, []string{"a", "c", "b", "d"}, tokens)
	assert.Equal(t, 1, index["c"])

	vocab, _ = buildVocab([][]string{{"b", "a", "a"}}, 2)
	require.Len(t, vocab, 1)
	assert.Equal(t, "a", vocab[0].token)
}

func TestSetSampling(t *testing.T) {
	t.Parallel()

	tr := &trainer{
		opts:  Options{Sample: 1e-3},
		vocab: []vocabWord{{token: "hot", count: 1000}, {token: "rare", count: 1}},
	}
	tr.setSampling()

	assert.Less(t, tr.vocab[0].keep, 1.0)
	assert.Equal(t, 1.0, tr.vocab[1].keep)

	tr.opts.Sample = 0
	tr.setSampling()
	assert.Equal(t, 1.0, tr.vocab[0].keep)
}

func TestSigmoid(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, sigmoid(10))
	assert.Equal(t, 0.0, sigmoid(-10))
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
}

func TestTrain(t *testing.T) {
	t.Parallel()

	t.Run("VocabularyAndShape", func(t *testing.T) {
		t.Parallel()
		kv, err := Train(context.Background(), corpus(), smallOptions())
		require.NoError(t, err)

		assert.Equal(t, 5, kv.Len())
		assert.Equal(t, 8, kv.Dimensions())
		for _, tok := range []string{"0", "1", "2", "3", "4"} {
			assert.True(t, kv.Has(tok), tok)
		}
	})

	t.Run("DeterministicWithOneWorker", func(t *testing.T) {
		t.Parallel()
		a, err := Train(context.Background(), corpus(), smallOptions())
		require.NoError(t, err)
		b, err := Train(context.Background(), corpus(), smallOptions())
		require.NoError(t, err)

		va, _ := a.Vector("1")
		vb, _ := b.Vector("1")
		assert.Equal(t, va, vb)
	})

	t.Run("ConcurrentWorkers", func(t *testing.T) {
		t.Parallel()
		opts := smallOptions()
		opts.Workers = 4
		kv, err := Train(context.Background(), corpus(), opts)
		require.NoError(t, err)
		assert.Equal(t, 5, kv.Len())
	})

	t.Run("EmptyCorpus", func(t *testing.T) {
		t.Parallel()
		_, err := Train(context.Background(), nil, smallOptions())
		assert.ErrorIs(t, err, ErrEmptyVocabulary)
	})

	t.Run("InvalidDimensions", func(t *testing.T) {
		t.Parallel()
		opts := smallOptions()
		opts.Dimensions = 0
		_, err := Train(context.Background(), corpus(), opts)
		assert.Error(t, err)
	})

	t.Run("Cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Train(ctx, corpus(), smallOptions())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
