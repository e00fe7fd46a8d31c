package embeddings

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyVocabulary is returned when no token survives the count filter.
var ErrEmptyVocabulary = errors.New("empty vocabulary")

const (
	negTablePower = 0.75
	lockStripes   = 64
	jobSize       = 256
	maxExp        = 6.0
)

// Options configures skip-gram training.
type Options struct {
	Dimensions int
	Window     int
	MinCount   int
	Negative   int
	Alpha      float64
	MinAlpha   float64
	Sample     float64
	Epochs     int
	Workers    int
	Seed       uint64
}

// DefaultOptions returns the settings used for node embeddings.
func DefaultOptions() Options {
	return Options{
		Dimensions: 128,
		Window:     10,
		MinCount:   0,
		Negative:   5,
		Alpha:      0.025,
		MinAlpha:   0.0001,
		Sample:     1e-3,
		Epochs:     1,
		Workers:    8,
		Seed:       1,
	}
}

type vocabWord struct {
	token string
	count int
	keep  float64
}

type trainer struct {
	opts  Options
	vocab []vocabWord
	index map[string]int

	syn0    []float64
	syn1neg []float64
	cum     []float64

	syn0Locks [lockStripes]sync.Mutex
	syn1Locks [lockStripes]sync.Mutex

	totalWords int
	mu         sync.Mutex
	processed  int
}

func buildVocab(sentences [][]string, minCount int) ([]vocabWord, map[string]int) {
	counts := make(map[string]int)
	var order []string
	for _, s := range sentences {
		for _, tok := range s {
			if _, ok := counts[tok]; !ok {
				order = append(order, tok)
			}
			counts[tok]++
		}
	}

	vocab := make([]vocabWord, 0, len(order))
	for _, tok := range order {
		if counts[tok] >= minCount {
			vocab = append(vocab, vocabWord{token: tok, count: counts[tok]})
		}
	}
	slices.SortStableFunc(vocab, func(a, b vocabWord) int { return b.count - a.count })

	index := make(map[string]int, len(vocab))
	for i, w := range vocab {
		index[w.token] = i
	}
	return vocab, index
}

// setSampling assigns each word its probability of being kept when
// frequent words are down-sampled.
func (t *trainer) setSampling() {
	var retain int
	for _, w := range t.vocab {
		retain += w.count
	}
	threshold := t.opts.Sample * float64(retain)
	for i := range t.vocab {
		if t.opts.Sample <= 0 {
			t.vocab[i].keep = 1
			continue
		}
		v := float64(t.vocab[i].count)
		p := (math.Sqrt(v/threshold) + 1) * (threshold / v)
		t.vocab[i].keep = math.Min(p, 1)
	}
}

func (t *trainer) buildNegTable() {
	t.cum = make([]float64, len(t.vocab))
	var total float64
	for i, w := range t.vocab {
		total += math.Pow(float64(w.count), negTablePower)
		t.cum[i] = total
	}
}

func (t *trainer) drawNegative(rng *rand.Rand) int {
	r := rng.Float64() * t.cum[len(t.cum)-1]
	return sort.SearchFloat64s(t.cum, r)
}

func (t *trainer) row(m []float64, i int) []float64 {
	d := t.opts.Dimensions
	return m[i*d : (i+1)*d]
}

func sigmoid(x float64) float64 {
	switch {
	case x > maxExp:
		return 1
	case x < -maxExp:
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}

// trainPair moves the input (context) word's vector toward the target word
// and away from sampled negatives.
func (t *trainer) trainPair(rng *rand.Rand, target, input int, alpha float64, l1, neu1e []float64) {
	lk := &t.syn0Locks[input%lockStripes]
	lk.Lock()
	copy(l1, t.row(t.syn0, input))
	lk.Unlock()

	for i := range neu1e {
		neu1e[i] = 0
	}

	for d := 0; d <= t.opts.Negative; d++ {
		word, label := target, 1.0
		if d > 0 {
			word = t.drawNegative(rng)
			if word == target {
				continue
			}
			label = 0
		}

		sl := &t.syn1Locks[word%lockStripes]
		sl.Lock()
		out := t.row(t.syn1neg, word)
		g := (label - sigmoid(floats.Dot(l1, out))) * alpha
		floats.AddScaled(neu1e, g, out)
		floats.AddScaled(out, g, l1)
		sl.Unlock()
	}

	lk.Lock()
	floats.Add(t.row(t.syn0, input), neu1e)
	lk.Unlock()
}

func (t *trainer) alpha() float64 {
	t.mu.Lock()
	progress := float64(t.processed) / float64(t.opts.Epochs*t.totalWords+1)
	t.mu.Unlock()
	a := t.opts.Alpha - (t.opts.Alpha-t.opts.MinAlpha)*progress
	return math.Max(a, t.opts.MinAlpha)
}

func (t *trainer) trainSentence(rng *rand.Rand, sentence []string, l1, neu1e []float64) int {
	words := make([]int, 0, len(sentence))
	for _, tok := range sentence {
		idx, ok := t.index[tok]
		if !ok {
			continue
		}
		if t.vocab[idx].keep < 1 && t.vocab[idx].keep < rng.Float64() {
			continue
		}
		words = append(words, idx)
	}

	alpha := t.alpha()
	window := t.opts.Window
	for pos, word := range words {
		reduced := 0
		if window > 0 {
			reduced = rng.IntN(window)
		}
		start := max(0, pos-window+reduced)
		end := min(len(words), pos+window+1-reduced)
		for pos2 := start; pos2 < end; pos2++ {
			if pos2 == pos {
				continue
			}
			t.trainPair(rng, word, words[pos2], alpha, l1, neu1e)
		}
	}
	return len(sentence)
}

// Train learns skip-gram embeddings with negative sampling. Workers share
// the weight matrices; row updates are serialized with striped locks.
func Train(ctx context.Context, sentences [][]string, opts Options) (*KeyedVectors, error) {
	if opts.Dimensions <= 0 {
		return nil, errors.New("dimensions must be positive")
	}
	opts.Workers = max(opts.Workers, 1)
	opts.Epochs = max(opts.Epochs, 1)

	vocab, index := buildVocab(sentences, opts.MinCount)
	if len(vocab) == 0 {
		return nil, ErrEmptyVocabulary
	}

	t := &trainer{opts: opts, vocab: vocab, index: index}
	for _, s := range sentences {
		t.totalWords += len(s)
	}
	t.setSampling()
	t.buildNegTable()

	d := opts.Dimensions
	t.syn0 = make([]float64, len(vocab)*d)
	t.syn1neg = make([]float64, len(vocab)*d)
	seedRng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	for i := range t.syn0 {
		t.syn0[i] = (seedRng.Float64() - 0.5) / float64(d)
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := t.runEpoch(ctx, sentences, epoch); err != nil {
			return nil, err
		}
	}

	tokens := make([]string, len(vocab))
	for i, w := range vocab {
		tokens[i] = w.token
	}
	return NewKeyedVectors(tokens, mat.NewDense(len(vocab), d, t.syn0))
}

func (t *trainer) runEpoch(ctx context.Context, sentences [][]string, epoch int) error {
	jobs := make(chan [][]string)
	var wg sync.WaitGroup

	for w := 0; w < t.opts.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			seed := t.opts.Seed + uint64(epoch*t.opts.Workers+worker) + 1
			rng := rand.New(rand.NewPCG(seed, seed*31))
			l1 := make([]float64, t.opts.Dimensions)
			neu1e := make([]float64, t.opts.Dimensions)
			for job := range jobs {
				n := 0
				for _, s := range job {
					n += t.trainSentence(rng, s, l1, neu1e)
				}
				t.mu.Lock()
				t.processed += n
				t.mu.Unlock()
			}
		}(w)
	}

	var err error
	for start := 0; start < len(sentences); start += jobSize {
		end := min(start+jobSize, len(sentences))
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case jobs <- sentences[start:end]:
			continue
		case <-ctx.Done():
			err = ctx.Err()
		}
		break
	}
	close(jobs)
	wg.Wait()
	return err
}
