// Package catalog provides the item catalog used to resolve scanned codes.
package catalog

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/robofleet/fleetstream/errors"
)

// Item is one catalog entry keyed by its machine-readable code.
type Item struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Location    string  `json:"location,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
}

// Catalog resolves scanned codes to items. Lookup is an exact key match.
type Catalog interface {
	Lookup(ctx context.Context, code string) (*Item, bool)
}

// StaticCatalog is an in-memory catalog, optionally loaded from a JSON file.
type StaticCatalog struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewStaticCatalog creates a catalog from the given items.
func NewStaticCatalog(items []Item) *StaticCatalog {
	m := make(map[string]Item, len(items))
	for _, it := range items {
		m[it.Code] = it
	}
	return &StaticCatalog{items: m}
}

// LoadFile loads a catalog from a JSON file containing an array of items.
func LoadFile(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "StaticCatalog", "LoadFile", "read catalog file")
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, errors.WrapInvalid(err, "StaticCatalog", "LoadFile", "parse catalog file")
	}

	return NewStaticCatalog(items), nil
}

// Lookup returns the item for a code, if present.
func (c *StaticCatalog) Lookup(_ context.Context, code string) (*Item, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[code]
	if !ok {
		return nil, false
	}
	cp := item
	return &cp, true
}

// Size returns the number of catalog entries.
func (c *StaticCatalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
