// Package adaptive implements the ε-greedy strategy selector that picks
// a resolution strategy for a hole based on historical success rates
// (component G).
package adaptive

import (
	"math/rand"
	"sync"

	"github.com/itsneelabh/maze/outcomes"
)

// Strategy is one of the fixed resolution strategies (spec.md §4.6).
type Strategy string

const (
	StrategyLlmComplete    Strategy = "llm_complete"
	StrategyHumanRequired  Strategy = "human_required"
	StrategyExampleAdapt   Strategy = "example_adapt"
	StrategyDecompose      Strategy = "decompose"
	StrategySkip           Strategy = "skip"
	StrategyTemplate       Strategy = "template"
	StrategyDiffusionRefine Strategy = "diffusion_refine"
)

// autoSelectable excludes HumanRequired and Skip (spec.md §4.6).
var autoSelectable = []Strategy{
	StrategyLlmComplete, StrategyExampleAdapt, StrategyDecompose,
	StrategyTemplate, StrategyDiffusionRefine,
}

// Reason records why a strategy was chosen (SPEC_FULL.md "Supplemented
// features" #3).
type Reason struct {
	Kind  string // "learned" | "exploration" | "cold_start" | "heuristic"
	Score float64
}

// Decision is a selection result plus its justification.
type Decision struct {
	Strategy Strategy
	Reason   Reason
}

// Config configures the selector (spec.md §6 "Adaptive").
type Config struct {
	ExplorationRate float64
	MinSamples      uint64
	DecayFactor     float64
}

// Selector is the ε-greedy learner. rng is injectable so scenario S6 is
// deterministic under test (spec.md §9 "ε-greedy randomness").
type Selector struct {
	cfg    Config
	stats  *outcomes.StatsStore
	rng    *rand.Rand
	mu     sync.Mutex
	recent []Decision
	maxRecent int
}

// NewSelector builds a Selector backed by a stats store. rngSeed seeds a
// dedicated *rand.Rand so production randomness does not need a global
// source; pass a fixed seed from tests for determinism.
func NewSelector(cfg Config, stats *outcomes.StatsStore, rngSeed int64) *Selector {
	return &Selector{
		cfg:       cfg,
		stats:     stats,
		rng:       rand.New(rand.NewSource(rngSeed)),
		maxRecent: 200,
	}
}

// Select runs the decision procedure in spec.md §4.6 for a (scale,
// origin) pair.
func (s *Selector) Select(scale, origin string) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() < s.cfg.ExplorationRate {
		strategy := autoSelectable[s.rng.Intn(len(autoSelectable))]
		return s.remember(Decision{Strategy: strategy, Reason: Reason{Kind: "exploration"}})
	}

	if !s.stats.HasEnoughData(scale, origin, s.cfg.MinSamples) {
		return s.remember(Decision{Strategy: heuristicSelect(scale, origin), Reason: Reason{Kind: "cold_start"}})
	}

	ranking := s.stats.StrategyRanking(scale, origin, s.cfg.MinSamples)
	if len(ranking) == 0 {
		return s.remember(Decision{Strategy: heuristicSelect(scale, origin), Reason: Reason{Kind: "heuristic"}})
	}

	top := ranking[0]
	return s.remember(Decision{Strategy: Strategy(top.Strategy), Reason: Reason{Kind: "learned", Score: top.Score}})
}

func (s *Selector) remember(d Decision) Decision {
	s.recent = append(s.recent, d)
	if len(s.recent) > s.maxRecent {
		s.recent = s.recent[len(s.recent)-s.maxRecent:]
	}
	return d
}

// RecentDecisions returns the capped history of past decisions
// (SPEC_FULL.md "Supplemented features" #3).
func (s *Selector) RecentDecisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision, len(s.recent))
	copy(out, s.recent)
	return out
}

// heuristicSelect implements the static table in spec.md §4.6.
func heuristicSelect(scale, origin string) Strategy {
	switch {
	case scale == "specification" || scale == "module":
		return StrategyDecompose
	case origin == "user_marked":
		return StrategyLlmComplete
	case origin == "constraint_conflict":
		return StrategyHumanRequired
	case origin == "structural":
		return StrategyTemplate
	case origin == "type_inference_failure":
		return StrategyLlmComplete
	case scale == "expression" && origin == "uncertainty":
		return StrategyLlmComplete
	default:
		return StrategyLlmComplete
	}
}
