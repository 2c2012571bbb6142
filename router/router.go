// Package router implements the multi-model router: capability- and
// complexity-based selection with an ordered fallback chain (component D).
package router

import (
	"fmt"
	"sort"

	"github.com/itsneelabh/maze/constraint"
)

// Capability is one of the fixed endpoint capabilities spec.md §3 names.
type Capability string

const (
	CapCodeCompletion      Capability = "CodeCompletion"
	CapLongContext         Capability = "LongContext"
	CapConstrainedGen      Capability = "ConstrainedGeneration"
	CapFastInference       Capability = "FastInference"
	CapHighQuality         Capability = "HighQuality"
	CapSecurityAware       Capability = "SecurityAware"
)

// Endpoint is a named HTTP inference destination with capability metadata
// (spec.md §3 "Model endpoint").
type Endpoint struct {
	Name            string
	EndpointURL     string
	Model           string
	APIKey          string
	TimeoutSecs     int
	Capabilities    map[Capability]bool
	Priority        int // lower = preferred for fallback
	CostPer1kTokens float64
}

func newEndpoint(name, url, model, key string, timeoutSecs int, caps []Capability, priority int, cost float64) Endpoint {
	set := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return Endpoint{
		Name: name, EndpointURL: url, Model: model, APIKey: key,
		TimeoutSecs: timeoutSecs, Capabilities: set, Priority: priority,
		CostPer1kTokens: cost,
	}
}

// NewEndpoint is the exported constructor used by callers building a
// router's endpoint list from configuration.
func NewEndpoint(name, url, model, key string, timeoutSecs int, caps []Capability, priority int, cost float64) Endpoint {
	return newEndpoint(name, url, model, key, timeoutSecs, caps, priority, cost)
}

func (e Endpoint) has(c Capability) bool {
	return e.Capabilities[c]
}

// Decision is a routing decision: primary endpoint, ordered fallback
// list, and the reason the primary was chosen (spec.md §4.3).
type Decision struct {
	Primary       Endpoint
	FallbackChain []Endpoint
	Reason        string
}

// AllEndpoints returns primary followed by the fallback chain.
func (d Decision) AllEndpoints() []Endpoint {
	out := make([]Endpoint, 0, 1+len(d.FallbackChain))
	out = append(out, d.Primary)
	return append(out, d.FallbackChain...)
}

// Router maps (hole, constraints) to a routing Decision.
type Router struct {
	endpoints    []Endpoint // preserves configuration order
	defaultModel string
}

// NewRouter builds a Router. The first endpoint in the list becomes the
// default fallback target, matching the reference selection logic.
func NewRouter(endpoints []Endpoint) (*Router, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("router: empty endpoint list")
	}
	cp := make([]Endpoint, len(endpoints))
	copy(cp, endpoints)
	return &Router{endpoints: cp, defaultModel: cp[0].Name}, nil
}

func (r *Router) byName(name string) (Endpoint, bool) {
	for _, e := range r.endpoints {
		if e.Name == name {
			return e, true
		}
	}
	return Endpoint{}, false
}

// Route implements the selection order in spec.md §4.3.
func (r *Router) Route(hole HoleSpec, irs []constraint.IR) (Decision, error) {
	if len(r.endpoints) == 0 {
		return Decision{}, fmt.Errorf("router: no endpoints configured")
	}

	var required Capability
	var reason string

	switch {
	case anyTokenMask(irs):
		required = CapSecurityAware
		reason = "token-mask constraint present, requiring SecurityAware"
	case len(hole.FillConstraints) > 10 || anyGrammar(irs):
		required = CapConstrainedGen
		reason = "many fill constraints or grammar present, requiring ConstrainedGeneration"
	default:
		complexity := EstimateComplexity(hole)
		switch {
		case complexity < 0.3:
			required = CapFastInference
			reason = fmt.Sprintf("low complexity (%.2f), requiring FastInference", complexity)
		case complexity > 0.7:
			required = CapHighQuality
			reason = fmt.Sprintf("high complexity (%.2f), requiring HighQuality", complexity)
		default:
			required = ""
			reason = "moderate complexity, using default endpoint"
		}
	}

	var primary Endpoint
	if required != "" {
		if found, ok := r.findWithCapability(required); ok {
			primary = found
		} else {
			def, _ := r.byName(r.defaultModel)
			primary = def
			reason = fmt.Sprintf("no %s-capable endpoint, using default", required)
		}
	} else {
		def, _ := r.byName(r.defaultModel)
		primary = def
	}

	return Decision{
		Primary:       primary,
		FallbackChain: r.buildFallbackChain(primary.Name),
		Reason:        reason,
	}, nil
}

// findWithCapability returns the endpoint advertising cap with the
// smallest Priority value (the most preferred), ties broken by name.
func (r *Router) findWithCapability(cap Capability) (Endpoint, bool) {
	var best Endpoint
	found := false
	for _, e := range r.endpoints {
		if !e.has(cap) {
			continue
		}
		if !found || e.Priority < best.Priority || (e.Priority == best.Priority && e.Name < best.Name) {
			best = e
			found = true
		}
	}
	return best, found
}

// buildFallbackChain returns every endpoint but primary, sorted ascending
// by priority (ties broken by name), independent of which capability
// matched (spec.md §4.3, P7).
func (r *Router) buildFallbackChain(primaryName string) []Endpoint {
	chain := make([]Endpoint, 0, len(r.endpoints)-1)
	for _, e := range r.endpoints {
		if e.Name != primaryName {
			chain = append(chain, e)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool {
		if chain[i].Priority != chain[j].Priority {
			return chain[i].Priority < chain[j].Priority
		}
		return chain[i].Name < chain[j].Name
	})
	return chain
}

func anyTokenMask(irs []constraint.IR) bool {
	for _, ir := range irs {
		if ir.TokenMasks != nil {
			return true
		}
	}
	return false
}

func anyGrammar(irs []constraint.IR) bool {
	for _, ir := range irs {
		if ir.Grammar != nil {
			return true
		}
	}
	return false
}
