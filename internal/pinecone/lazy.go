package pinecone

import (
	"sync"
)

// LazyIndex defers index-handle construction to first use. A failed
// initialization is not cached: the next caller tries again. Once a handle
// has been built every subsequent caller reuses it.
type LazyIndex struct {
	mu    sync.Mutex
	index *Index
	init  func() (*Index, error)
}

// NewLazyIndex creates a lazily-initialized index handle
func NewLazyIndex(init func() (*Index, error)) *LazyIndex {
	return &LazyIndex{init: init}
}

// Get returns the underlying index, initializing it if needed
func (l *LazyIndex) Get() (*Index, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index != nil {
		return l.index, nil
	}

	idx, err := l.init()
	if err != nil {
		return nil, err
	}

	l.index = idx
	return idx, nil
}
