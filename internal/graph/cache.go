package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"

	"github.com/loomworks/loom/internal/loom"
)

// Cache is a bounded compiled-graph cache keyed by workflow id plus a
// content hash of the serialized document. Compiling the same document
// twice is idempotent, so a hit can be reused across runs without
// re-validation; a replaced document misses on its new hash, and
// Invalidate drops all entries for an id when its record is removed.
// Eviction is oldest-first at capacity.
type Cache struct {
	mu      sync.Mutex
	cap     int
	entries map[string]*Compiled
	order   []string
	byID    map[string][]string
}

// NewCache creates a Cache holding at most capacity compiled graphs.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 128
	}
	return &Cache{
		cap:     capacity,
		entries: make(map[string]*Compiled),
		byID:    make(map[string][]string),
	}
}

// Get returns the compiled graph for (id, wf), compiling on miss.
func (c *Cache) Get(id string, wf *loom.WorkflowDefinition, catalog ToolChecker) (*Compiled, error) {
	key := id + "\x00" + contentHash(wf)

	c.mu.Lock()
	if g, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return g, nil
	}
	c.mu.Unlock()

	g, err := Compile(wf, catalog)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		for len(c.entries) >= c.cap {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
			c.dropIndexEntry(oldest)
		}
		c.entries[key] = g
		c.order = append(c.order, key)
		c.byID[id] = append(c.byID[id], key)
	}
	return g, nil
}

// Invalidate drops every cached graph for the given workflow id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.byID[id] {
		delete(c.entries, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	delete(c.byID, id)
}

// dropIndexEntry removes key from its workflow's index slice so byID
// does not accumulate evicted keys. Caller holds c.mu.
func (c *Cache) dropIndexEntry(key string) {
	id, _, ok := strings.Cut(key, "\x00")
	if !ok {
		return
	}
	keys := c.byID[id]
	for i, k := range keys {
		if k == key {
			c.byID[id] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(c.byID[id]) == 0 {
		delete(c.byID, id)
	}
}

// Len returns the number of cached graphs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func contentHash(wf *loom.WorkflowDefinition) string {
	data, err := json.Marshal(wf)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
