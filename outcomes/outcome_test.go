package outcomes

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRecordAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 10)
	require.NoError(t, err)

	o := New("hole-1", "statement", "user_marked", "llm_complete", 1000)
	o.Success = true
	o.Confidence = 0.9
	require.NoError(t, store.Record(o))

	require.FileExists(t, filepath.Join(dir, o.ID+".json"))

	loaded, err := Load(dir, 0)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, o.ID, loaded[0].ID)
}

func TestStoreMemoryViewTrims(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 3)
	require.NoError(t, err)

	for i := int64(0); i < 5; i++ {
		o := New("hole-1", "statement", "user_marked", "llm_complete", i)
		require.NoError(t, store.Record(o))
	}

	require.Equal(t, 3, store.Count())
}

func TestStoreClearAll(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, 10)
	require.NoError(t, err)

	require.NoError(t, store.Record(New("hole-1", "statement", "user_marked", "llm_complete", 1)))
	require.NoError(t, store.ClearAll())

	require.Equal(t, 0, store.Count())
	loaded, err := Load(dir, 0)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

func TestStatsStoreBestStrategy(t *testing.T) {
	// S6: llm_complete (10 successes) should beat decompose (3/2).
	store := NewStatsStore()

	for i := 0; i < 10; i++ {
		store.Record(makeOutcome("statement", "user_marked", "llm_complete", true))
	}
	for i := 0; i < 3; i++ {
		store.Record(makeOutcome("statement", "user_marked", "decompose", true))
	}
	for i := 0; i < 2; i++ {
		store.Record(makeOutcome("statement", "user_marked", "decompose", false))
	}

	best, ok := store.BestStrategyFor("statement", "user_marked", 5)
	require.True(t, ok)
	require.Equal(t, "llm_complete", best)
}

func TestStatsDecay(t *testing.T) {
	s := &Stats{}
	for i := 0; i < 100; i++ {
		s.Update(makeOutcome("statement", "user_marked", "llm_complete", true))
	}
	require.EqualValues(t, 100, s.Attempts)
	s.ApplyDecay(0.5)
	require.EqualValues(t, 50, s.Attempts)
}

func TestReplayDeterminism(t *testing.T) {
	// P10: reloading all persisted outcomes into a fresh stats store
	// yields the same combined_score ranking as the live store.
	dir := t.TempDir()
	store, err := NewStore(dir, 100)
	require.NoError(t, err)

	live := NewStatsStore()
	for i := 0; i < 8; i++ {
		o := makeOutcome("statement", "user_marked", "llm_complete", i%2 == 0)
		o.Timestamp = int64(i)
		o.ID = New("hole-1", o.HoleScale, o.HoleOrigin, o.Strategy, o.Timestamp).ID
		require.NoError(t, store.Record(o))
		live.Record(o)
	}

	loaded, err := Load(dir, 0)
	require.NoError(t, err)
	replayed := ReplayIntoFreshStore(loaded)

	liveRanking := live.StrategyRanking("statement", "user_marked", 1)
	replayedRanking := replayed.StrategyRanking("statement", "user_marked", 1)
	require.Equal(t, liveRanking, replayedRanking)
}

func makeOutcome(scale, origin, strategy string, success bool) Outcome {
	o := New("hole-1", scale, origin, strategy, 0)
	o.Success = success
	if success {
		o.Confidence = 0.9
	} else {
		o.Confidence = 0.3
	}
	o.TimeMs = 100
	return o
}
