// Package similarity answers "which concepts are closest to this one" from
// node vectors and the name dictionary written during encoding.
package similarity

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/james-bowman/nlp"
	"github.com/james-bowman/nlp/measures/pairwise"
	"gonum.org/v1/gonum/mat"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/graph"
	"github.com/Benny93/ontolink-go/internal/parsers"
)

// DefaultTopN is the number of neighbours reported per concept.
const DefaultTopN = 10

// ErrUnknownToken is returned when a dictionary entry has no vector.
var ErrUnknownToken = errors.New("token has no vector")

// Dictionary maps concept names to vector tokens and back.
type Dictionary struct {
	tokens map[string]string
	names  map[string]string
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{tokens: make(map[string]string), names: make(map[string]string)}
}

// Add maps name to token. Later entries win in both directions.
func (d *Dictionary) Add(name, token string) {
	d.tokens[name] = token
	d.names[token] = name
}

// Token returns the vector token of a concept name.
func (d *Dictionary) Token(name string) (string, bool) {
	t, ok := d.tokens[name]
	return t, ok
}

// Name returns the concept name of a token.
func (d *Dictionary) Name(token string) (string, bool) {
	n, ok := d.names[token]
	return n, ok
}

// Len returns the number of names.
func (d *Dictionary) Len() int { return len(d.tokens) }

// ReadDictionary reads "name;index" lines.
func ReadDictionary(r io.Reader) (*Dictionary, error) {
	records, err := parsers.ReadRecords(r, ';')
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	d := NewDictionary()
	for i, rec := range records {
		if len(rec) < 2 {
			return nil, fmt.Errorf("dictionary line %d: expected name;index", i+1)
		}
		d.Add(rec[0], strings.TrimSpace(rec[1]))
	}
	return d, nil
}

// Result lists the nearest concepts to a query, most similar first.
type Result struct {
	Names        []string  `json:"names"`
	Similarities []float64 `json:"similarities"`
}

// Joined renders the names as a comma separated list.
func (r Result) Joined() string {
	return strings.Join(r.Names, ", ")
}

// Index is a nearest-neighbour index over concept vectors.
type Index struct {
	dict    *Dictionary
	scan    *nlp.LinearScanIndex
	vectors map[string]*mat.VecDense
	// order is the insertion rank of each token; it breaks distance ties.
	order map[string]int
}

// NewIndex indexes every vector of kv by cosine distance.
func NewIndex(kv *embeddings.KeyedVectors, dict *Dictionary) *Index {
	idx := &Index{
		dict:    dict,
		scan:    nlp.NewLinearScanIndex(pairwise.CosineDistance),
		vectors: make(map[string]*mat.VecDense, kv.Len()),
		order:   make(map[string]int, kv.Len()),
	}
	for _, tok := range kv.Tokens() {
		idx.order[tok] = len(idx.order)
		v, _ := kv.Vector(tok)
		vec := mat.NewVecDense(len(v), v)
		idx.vectors[tok] = vec
		idx.scan.Index(vec, tok)
	}
	return idx
}

// TopN returns the n concepts most similar to name. An unknown name yields an
// empty result. Neighbours missing from the dictionary are named NA, and
// names are cut at the first '@'.
func (i *Index) TopN(name string, n int) (Result, error) {
	token, ok := i.dict.Token(name)
	if !ok || n <= 0 {
		return Result{}, nil
	}
	q, ok := i.vectors[token]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s (%s)", ErrUnknownToken, token, name)
	}

	// Search keeps its candidates in heap order.
	matches := append([]nlp.Match(nil), i.scan.Search(q, n+1)...)
	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Distance != matches[b].Distance {
			return matches[a].Distance < matches[b].Distance
		}
		return i.rank(matches[a]) < i.rank(matches[b])
	})

	var res Result
	for _, m := range matches {
		tok, _ := m.ID.(string)
		if tok == token {
			continue
		}
		if len(res.Names) == n {
			break
		}
		neighbour, ok := i.dict.Name(tok)
		if !ok {
			neighbour = graph.NA
		}
		neighbour, _ = graph.SplitCategory(neighbour)
		res.Names = append(res.Names, neighbour)
		res.Similarities = append(res.Similarities, 1-m.Distance)
	}
	return res, nil
}

func (i *Index) rank(m nlp.Match) int {
	tok, _ := m.ID.(string)
	return i.order[tok]
}
