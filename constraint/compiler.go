package constraint

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrEncodingFailed is returned, wrapped, when an IR list cannot be
// canonically encoded for fingerprinting.
var ErrEncodingFailed = errors.New("constraint: canonical encoding failed")

// CompiledConstraint is the cached compilation result: a fingerprint, the
// computed schema tree, and a timestamp (spec.md §3 "Compiled Constraint").
type CompiledConstraint struct {
	Fingerprint string
	Schema      *Schema
	CompiledAt  time.Time
}

// Schema is the top-level compiled tree: `{type:object, properties,
// constraints[]}` (spec.md §4.1).
type Schema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Constraints []ConstraintEntry     `json:"constraints"`
}

// ConstraintEntry is one tagged entry in Schema.Constraints: kind is one
// of "grammar", "regex", or "token_mask".
type ConstraintEntry struct {
	Kind      string      `json:"type"`
	Name      string      `json:"name,omitempty"`
	Rules     []GrammarRule `json:"rules,omitempty"`
	Start     string      `json:"start,omitempty"`
	Pattern   string      `json:"pattern,omitempty"`
	Flags     string      `json:"flags,omitempty"`
	Allowed   []int64     `json:"allowed,omitempty"`
	Forbidden []int64     `json:"forbidden,omitempty"`
}

// Fingerprint computes the canonical, order-insensitive hash of an IR
// list (spec.md §4.1 "Fingerprint contract"). encoding/json already
// serializes map[string]interface{} keys in sorted order and struct
// fields in declaration order, so two IR lists that differ only in their
// source map's iteration order produce byte-identical JSON and therefore
// the same hash (P1, S1).
func Fingerprint(irs []IR) (string, error) {
	data, err := json.Marshal(irs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	sum := xxhash.Sum64(data)
	return fmt.Sprintf("%016x", sum), nil
}

// Compile renders an IR list into a Schema tree. It performs no caching;
// callers needing memoization go through Compiler.Compile.
func Compile(irs []IR) *Schema {
	schema := &Schema{
		Type:        "object",
		Properties:  make(map[string]interface{}),
		Constraints: make([]ConstraintEntry, 0),
	}
	for _, ir := range irs {
		if ir.Schema != nil {
			schema.Properties[ir.Name] = ir.Schema
		}
		if ir.Grammar != nil {
			schema.Constraints = append(schema.Constraints, ConstraintEntry{
				Kind:  "grammar",
				Name:  ir.Name,
				Rules: ir.Grammar.Rules,
				Start: ir.Grammar.Start,
			})
		}
		for _, pattern := range ir.Regex {
			schema.Constraints = append(schema.Constraints, ConstraintEntry{
				Kind:    "regex",
				Pattern: pattern.Pattern,
				Flags:   pattern.Flags,
			})
		}
		if ir.TokenMasks != nil {
			entry := ConstraintEntry{Kind: "token_mask", Name: ir.Name}
			if len(ir.TokenMasks.Allowed) > 0 {
				entry.Allowed = ir.TokenMasks.Allowed
			}
			if len(ir.TokenMasks.Forbidden) > 0 {
				entry.Forbidden = ir.TokenMasks.Forbidden
			}
			schema.Constraints = append(schema.Constraints, entry)
		}
	}
	return schema
}

// Stats reports the cache's current occupancy (spec.md §4.1 "cache_stats").
type Stats struct {
	Size  int
	Limit int
}

// Compiler memoizes Compile behind a content-addressed LRU cache, shared
// across concurrent fills by the orchestrator (spec.md §3 "Ownership").
type Compiler struct {
	mu    sync.Mutex
	cache *lruCache
}

// NewCompiler builds a Compiler whose cache holds at most limit entries.
// limit must be > 0 (spec.md §4.1 "cache capacity of 0 is rejected at
// construction").
func NewCompiler(limit int) (*Compiler, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("constraint: cache capacity must be > 0")
	}
	return &Compiler{cache: newLRUCache(limit)}, nil
}

// Compile returns a cached CompiledConstraint if the fingerprint matches;
// otherwise it compiles and stores one. The lock is held across the
// compile step deliberately (spec.md §4.1 allows implementations to
// release it instead; holding it here keeps duplicate-key insertion
// impossible at the cost of serializing compiles, which is acceptable
// given compilation is pure CPU-bound tree construction, not I/O).
func (c *Compiler) Compile(irs []IR) (*CompiledConstraint, error) {
	fp, err := Fingerprint(irs)
	if err != nil {
		return nil, fmt.Errorf("constraint: encoding failure: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.cache.get(fp); ok {
		return cc, nil
	}

	cc := &CompiledConstraint{
		Fingerprint: fp,
		Schema:      Compile(irs),
		CompiledAt:  time.Now(),
	}
	c.cache.put(fp, cc)
	return cc, nil
}

// ClearCache empties the cache.
func (c *Compiler) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.clear()
}

// CacheStats reports size and configured limit.
func (c *Compiler) CacheStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Size: c.cache.size(), Limit: c.cache.capacity}
}
