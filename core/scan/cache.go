package scan

import (
	"time"

	"github.com/FocuswithJustin/delimcodec/core/cache"
	"github.com/FocuswithJustin/delimcodec/internal/logging"
)

// Cache holds compiled scanners keyed by the identity of their pattern
// list, so every field sharing a marker set shares one automaton.
type Cache struct {
	lru cache.Cache[string, *Scanner]
}

// NewCache creates a scanner cache.
func NewCache(config cache.Config) *Cache {
	return &Cache{lru: cache.NewLRUCache[string, *Scanner](config)}
}

// Default is the process-wide scanner cache.
var Default = NewCache(cache.DefaultConfig())

// Get returns the compiled scanner for patterns, compiling it on first use.
func (c *Cache) Get(patterns []Pattern) (*Scanner, error) {
	key := keyOf(patterns)
	return c.lru.GetOrLoad(key, func() (*Scanner, error) {
		start := time.Now()
		s, err := New(patterns)
		if err != nil {
			return nil, err
		}
		logging.ScannerCompiled(key, len(patterns), s.MaxLen(), time.Since(start))
		return s, nil
	})
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	return c.lru.Stats()
}

// Len returns the number of cached scanners.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Clear drops every cached scanner.
func (c *Cache) Clear() {
	c.lru.Clear()
}

// Compile returns a scanner for patterns from the default cache.
func Compile(patterns []Pattern) (*Scanner, error) {
	return Default.Get(patterns)
}
