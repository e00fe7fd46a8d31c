package graph

// Encoding assigns consecutive integer indices to names in the order they
// are first seen. It is not safe for concurrent mutation.
type Encoding struct {
	index map[string]int
	names []string
}

// NewEncoding creates an empty encoding.
func NewEncoding() *Encoding {
	return &Encoding{index: make(map[string]int)}
}

// Add registers name if it is new and returns its index.
func (e *Encoding) Add(name string) int {
	if idx, ok := e.index[name]; ok {
		return idx
	}
	idx := len(e.names)
	e.index[name] = idx
	e.names = append(e.names, name)
	return idx
}

// Index returns the index of name and whether it is known.
func (e *Encoding) Index(name string) (int, bool) {
	idx, ok := e.index[name]
	return idx, ok
}

// Name returns the name at idx, or "" when out of range.
func (e *Encoding) Name(idx int) string {
	if idx < 0 || idx >= len(e.names) {
		return ""
	}
	return e.names[idx]
}

// Len returns the number of encoded names.
func (e *Encoding) Len() int {
	return len(e.names)
}

// Names returns the encoded names ordered by index.
func (e *Encoding) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}
