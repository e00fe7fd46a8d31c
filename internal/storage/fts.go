package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/ontolink-go/internal/embeddings"
	"github.com/Benny93/ontolink-go/internal/graph"
)

// Key prefixes for FTS
const (
	prefixFTSToken = "fts:t:" // fts:t:token:nodeID -> frequency
	prefixFTSMeta  = "fts:m:" // fts:m:nodeID -> serialized metadata
	prefixFTSNode  = "fts:n:" // fts:n:nodeID -> tokens of the node
)

var (
	separatorRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	camelRe     = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	letterNumRe = regexp.MustCompile(`(\p{L})(\p{N})`)
	numLetterRe = regexp.MustCompile(`(\p{N})(\p{L})`)
)

// FTSIndex is a simple inverted index for full-text search.
type FTSIndex struct {
	db *badger.DB
}

// NewFTSIndex creates a new FTS index using the given BadgerDB instance.
func NewFTSIndex(db *badger.DB) *FTSIndex {
	return &FTSIndex{db: db}
}

// tokenize splits text into lowercase searchable tokens. Words are split on
// punctuation, camelCase and letter/number boundaries, and each word is
// also kept whole. Tokens are returned once each, in order of appearance.
func tokenize(text string) []string {
	seen := make(map[string]bool)
	var tokens []string
	add := func(tok string) {
		tok = strings.ToLower(tok)
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	for _, word := range separatorRe.Split(text, -1) {
		if word == "" {
			continue
		}
		add(word)
		split := camelRe.ReplaceAllString(word, "$1 $2")
		split = letterNumRe.ReplaceAllString(split, "$1 $2")
		split = numLetterRe.ReplaceAllString(split, "$1 $2")
		for _, part := range strings.Fields(split) {
			add(part)
		}
	}
	return tokens
}

// termFrequencies counts every token of text, including repeats.
func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, word := range separatorRe.Split(text, -1) {
		for _, tok := range tokenize(word) {
			freq[tok]++
		}
	}
	return freq
}

type ftsMeta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Label    string `json:"label"`
	Category string `json:"category"`
	Snippet  string `json:"snippet"`
}

// IndexNode adds or updates a node in the FTS index.
func (f *FTSIndex) IndexNode(node *graph.GraphNode) error {
	if f.db == nil {
		return nil
	}

	txn := f.db.NewTransaction(true)
	defer txn.Discard()

	if err := f.indexNodeTxn(txn, node); err != nil {
		return err
	}
	return txn.Commit()
}

// IndexNodes indexes many nodes, committing whenever a transaction fills up.
func (f *FTSIndex) IndexNodes(nodes []*graph.GraphNode) error {
	if f.db == nil {
		return nil
	}

	txn := f.db.NewTransaction(true)
	defer func() { txn.Discard() }()

	for _, node := range nodes {
		err := f.indexNodeTxn(txn, node)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := txn.Commit(); err != nil {
				return fmt.Errorf("committing fts batch: %w", err)
			}
			txn = f.db.NewTransaction(true)
			err = f.indexNodeTxn(txn, node)
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

func (f *FTSIndex) indexNodeTxn(txn *badger.Txn, node *graph.GraphNode) error {
	if err := f.deleteNodeTokens(txn, node.ID); err != nil {
		return err
	}

	freq := termFrequencies(node.Name + " " + embeddings.ConceptText(node))
	tokens := make([]string, 0, len(freq))
	for token, n := range freq {
		key := fmt.Sprintf("%s%s:%s", prefixFTSToken, token, node.ID)
		if err := txn.Set([]byte(key), []byte(strconv.Itoa(n))); err != nil {
			return fmt.Errorf("setting token index: %w", err)
		}
		tokens = append(tokens, token)
	}

	tokenJSON, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshaling tokens: %w", err)
	}
	if err := txn.Set([]byte(prefixFTSNode+node.ID), tokenJSON); err != nil {
		return fmt.Errorf("setting node tokens: %w", err)
	}

	metaJSON, err := json.Marshal(ftsMeta{
		ID:       node.ID,
		Name:     node.Name,
		Label:    string(node.Label),
		Category: node.Category,
		Snippet:  embeddings.Snippet(node),
	})
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := txn.Set([]byte(prefixFTSMeta+node.ID), metaJSON); err != nil {
		return fmt.Errorf("setting metadata: %w", err)
	}
	return nil
}

// deleteNodeTokens removes all token indexes for a node.
func (f *FTSIndex) deleteNodeTokens(txn *badger.Txn, nodeID string) error {
	item, err := txn.Get([]byte(prefixFTSNode + nodeID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading node tokens: %w", err)
	}

	var tokens []string
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &tokens)
	}); err != nil {
		return fmt.Errorf("unmarshaling node tokens: %w", err)
	}
	for _, token := range tokens {
		if err := txn.Delete([]byte(fmt.Sprintf("%s%s:%s", prefixFTSToken, token, nodeID))); err != nil {
			return err
		}
	}
	return txn.Delete([]byte(prefixFTSNode + nodeID))
}

// Search performs full-text search with simple TF scoring.
func (f *FTSIndex) Search(query string, limit int) ([]SearchResult, error) {
	if f.db == nil {
		return []SearchResult{}, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []SearchResult{}, nil
	}

	nodeScores := make(map[string]float64)

	txn := f.db.NewTransaction(false)
	defer txn.Discard()

	for _, token := range queryTokens {
		prefix := fmt.Sprintf("%s%s:", prefixFTSToken, token)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			nodeID := strings.TrimPrefix(string(item.Key()), prefix)

			var freq int
			_ = item.Value(func(val []byte) error {
				freq, _ = strconv.Atoi(string(val))
				return nil
			})
			nodeScores[nodeID] += float64(freq)
		}
		it.Close()
	}

	results := make([]SearchResult, 0, len(nodeScores))
	for nodeID, score := range nodeScores {
		if score <= 0 {
			continue
		}

		metaItem, err := txn.Get([]byte(prefixFTSMeta + nodeID))
		if err != nil {
			continue
		}
		var meta ftsMeta
		if err := metaItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		}); err != nil {
			continue
		}

		results = append(results, SearchResult{
			NodeID:   nodeID,
			Score:    score,
			NodeName: meta.Name,
			Category: meta.Category,
			Label:    meta.Label,
			Snippet:  meta.Snippet,
		})
	}

	sortResults(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// sortResults orders by score descending, then by node ID.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].NodeID < results[j].NodeID
	})
}

// RemoveNode removes a node from the FTS index.
func (f *FTSIndex) RemoveNode(nodeID string) error {
	if f.db == nil {
		return nil
	}

	txn := f.db.NewTransaction(true)
	defer txn.Discard()

	if err := f.deleteNodeTokens(txn, nodeID); err != nil {
		return err
	}
	if err := txn.Delete([]byte(prefixFTSMeta + nodeID)); err != nil {
		return err
	}
	return txn.Commit()
}

// Clear drops the whole index.
func (f *FTSIndex) Clear() error {
	if f.db == nil {
		return nil
	}
	return f.db.DropPrefix([]byte("fts:"))
}

// IndexSize returns the number of indexed token postings.
func (f *FTSIndex) IndexSize() (int, error) {
	if f.db == nil {
		return 0, nil
	}

	count := 0
	txn := f.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixFTSToken)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		count++
	}
	return count, nil
}
