package adaptive

import (
	"testing"

	"github.com/itsneelabh/maze/outcomes"
	"github.com/stretchr/testify/require"
)

func recordN(store *outcomes.StatsStore, scale, origin, strategy string, successes, failures int) {
	for i := 0; i < successes; i++ {
		o := outcomes.New("h", scale, origin, strategy, 0)
		o.Success = true
		o.Confidence = 0.9
		store.Record(o)
	}
	for i := 0; i < failures; i++ {
		o := outcomes.New("h", scale, origin, strategy, 0)
		o.Success = false
		o.Confidence = 0.2
		store.Record(o)
	}
}

func TestSelectLearnedStrategy(t *testing.T) {
	// S6: exploration_rate=0, llm_complete (10 successes) beats decompose (3/2).
	store := outcomes.NewStatsStore()
	recordN(store, "statement", "user_marked", "llm_complete", 10, 0)
	recordN(store, "statement", "user_marked", "decompose", 3, 2)

	sel := NewSelector(Config{ExplorationRate: 0, MinSamples: 5}, store, 1)
	decision := sel.Select("statement", "user_marked")

	require.Equal(t, StrategyLlmComplete, decision.Strategy)
	require.Equal(t, "learned", decision.Reason.Kind)
}

func TestSelectColdStartHeuristic(t *testing.T) {
	store := outcomes.NewStatsStore()
	sel := NewSelector(Config{ExplorationRate: 0, MinSamples: 50}, store, 1)

	decision := sel.Select("module", "generation_limit")
	require.Equal(t, StrategyDecompose, decision.Strategy)
	require.Equal(t, "cold_start", decision.Reason.Kind)
}

func TestHeuristicTable(t *testing.T) {
	require.Equal(t, StrategyDecompose, heuristicSelect("specification", "anything"))
	require.Equal(t, StrategyLlmComplete, heuristicSelect("statement", "user_marked"))
	require.Equal(t, StrategyHumanRequired, heuristicSelect("statement", "constraint_conflict"))
	require.Equal(t, StrategyTemplate, heuristicSelect("block", "structural"))
	require.Equal(t, StrategyLlmComplete, heuristicSelect("expression", "uncertainty"))
}

func TestAutoSelectableExcludesHumanAndSkip(t *testing.T) {
	for _, s := range autoSelectable {
		require.NotEqual(t, StrategyHumanRequired, s)
		require.NotEqual(t, StrategySkip, s)
	}
}
