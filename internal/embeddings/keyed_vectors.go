package embeddings

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Neighbor is a token with its cosine similarity to a query.
type Neighbor struct {
	Token      string
	Similarity float64
}

// KeyedVectors maps tokens to embedding rows.
type KeyedVectors struct {
	tokens  []string
	index   map[string]int
	vectors *mat.Dense
}

// NewKeyedVectors wraps a token list and a matrix with one row per token.
func NewKeyedVectors(tokens []string, vectors *mat.Dense) (*KeyedVectors, error) {
	r, _ := vectors.Dims()
	if r != len(tokens) {
		return nil, fmt.Errorf("%d tokens for %d vectors", len(tokens), r)
	}
	index := make(map[string]int, len(tokens))
	for i, tok := range tokens {
		if _, dup := index[tok]; dup {
			return nil, fmt.Errorf("duplicate token %q", tok)
		}
		index[tok] = i
	}
	return &KeyedVectors{tokens: tokens, index: index, vectors: vectors}, nil
}

// Len returns the vocabulary size.
func (kv *KeyedVectors) Len() int { return len(kv.tokens) }

// Dimensions returns the vector size.
func (kv *KeyedVectors) Dimensions() int {
	_, c := kv.vectors.Dims()
	return c
}

// Tokens returns the vocabulary in row order.
func (kv *KeyedVectors) Tokens() []string {
	return slices.Clone(kv.tokens)
}

// Has reports whether token is in the vocabulary.
func (kv *KeyedVectors) Has(token string) bool {
	_, ok := kv.index[token]
	return ok
}

// Vector returns a copy of the token's vector.
func (kv *KeyedVectors) Vector(token string) ([]float64, bool) {
	i, ok := kv.index[token]
	if !ok {
		return nil, false
	}
	return mat.Row(nil, i, kv.vectors), true
}

// Matrix returns the underlying matrix; callers must not modify it.
func (kv *KeyedVectors) Matrix() *mat.Dense { return kv.vectors }

func cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Similarity returns the cosine similarity of two tokens.
func (kv *KeyedVectors) Similarity(a, b string) (float64, error) {
	va, ok := kv.Vector(a)
	if !ok {
		return 0, fmt.Errorf("token %q not in vocabulary", a)
	}
	vb, ok := kv.Vector(b)
	if !ok {
		return 0, fmt.Errorf("token %q not in vocabulary", b)
	}
	return cosine(va, vb), nil
}

// MostSimilar returns up to topN tokens closest to token, excluding itself.
// An unknown token yields no neighbours.
func (kv *KeyedVectors) MostSimilar(token string, topN int) []Neighbor {
	q, ok := kv.Vector(token)
	if !ok || topN <= 0 {
		return nil
	}

	out := make([]Neighbor, 0, len(kv.tokens)-1)
	row := make([]float64, kv.Dimensions())
	for i, tok := range kv.tokens {
		if tok == token {
			continue
		}
		mat.Row(row, i, kv.vectors)
		out = append(out, Neighbor{Token: tok, Similarity: cosine(q, row)})
	}
	slices.SortStableFunc(out, func(a, b Neighbor) int { return cmp.Compare(b.Similarity, a.Similarity) })
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

// SaveWord2VecFormat writes the text format: a "count dim" header, then one
// "token v1 ... vd" line per token.
func (kv *KeyedVectors) SaveWord2VecFormat(w io.Writer) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d %d\n", kv.Len(), kv.Dimensions()); err != nil {
		return err
	}
	row := make([]float64, kv.Dimensions())
	for i, tok := range kv.tokens {
		mat.Row(row, i, kv.vectors)
		bw.WriteString(tok)
		for _, v := range row {
			bw.WriteByte(' ')
			bw.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// LoadWord2VecFormat reads vectors written by SaveWord2VecFormat.
func LoadWord2VecFormat(r io.Reader) (*KeyedVectors, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("missing header")
	}
	var count, dim int
	if _, err := fmt.Sscanf(sc.Text(), "%d %d", &count, &dim); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if count <= 0 || dim <= 0 {
		return nil, fmt.Errorf("invalid header %q", sc.Text())
	}

	tokens := make([]string, 0, count)
	data := make([]float64, 0, count*dim)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " ")
		if line == "" {
			continue
		}
		fields := strings.Split(line, " ")
		if len(fields) != dim+1 {
			return nil, fmt.Errorf("line %d: %d values, want %d", len(tokens)+2, len(fields)-1, dim)
		}
		for _, f := range fields[1:] {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", len(tokens)+2, err)
			}
			data = append(data, v)
		}
		tokens = append(tokens, fields[0])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(tokens) != count {
		return nil, fmt.Errorf("header declares %d vectors, read %d", count, len(tokens))
	}
	return NewKeyedVectors(tokens, mat.NewDense(count, dim, data))
}

// WithTokens returns vectors sharing this matrix under new token names,
// given in row order.
func (kv *KeyedVectors) WithTokens(tokens []string) (*KeyedVectors, error) {
	return NewKeyedVectors(tokens, kv.vectors)
}
