package outcomes

import (
	"encoding/json"
	"sort"
	"sync"
)

// StatsKey identifies a (scale, origin, strategy) bucket.
type StatsKey struct {
	Scale    string
	Origin   string
	Strategy string
}

// Stats holds running aggregates for one bucket (spec.md §4.6 "Scoring").
type Stats struct {
	Attempts      uint64
	Successes     uint64
	UserAccepted  uint64
	UserRejected  uint64
	AvgConfidence float64
	AvgTimeMs     float64

	confidenceSum float64
	timeSum       float64
}

// Update folds one outcome into the running aggregates.
func (s *Stats) Update(o Outcome) {
	s.Attempts++
	if o.Success {
		s.Successes++
	}
	if o.UserAccepted != nil {
		if *o.UserAccepted {
			s.UserAccepted++
		} else {
			s.UserRejected++
		}
	}
	s.confidenceSum += o.Confidence
	s.timeSum += float64(o.TimeMs)
	s.AvgConfidence = s.confidenceSum / float64(s.Attempts)
	s.AvgTimeMs = s.timeSum / float64(s.Attempts)
}

// SuccessRate is successes/attempts, 0 if no attempts.
func (s Stats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// AcceptanceRate is user_accepted/(user_accepted+user_rejected), 0.5 with
// no feedback (spec.md §4.6).
func (s Stats) AcceptanceRate() float64 {
	total := s.UserAccepted + s.UserRejected
	if total == 0 {
		return 0.5
	}
	return float64(s.UserAccepted) / float64(total)
}

// CombinedScore blends success rate and acceptance rate when feedback
// exists, otherwise returns the bare success rate (spec.md §4.6).
func (s Stats) CombinedScore() float64 {
	if s.UserAccepted+s.UserRejected > 0 {
		return s.SuccessRate()*0.4 + s.AcceptanceRate()*0.6
	}
	return s.SuccessRate()
}

// ApplyDecay multiplies every count by factor, truncating to integer
// (spec.md §4.6 "Decay").
func (s *Stats) ApplyDecay(factor float64) {
	s.Attempts = uint64(float64(s.Attempts) * factor)
	s.Successes = uint64(float64(s.Successes) * factor)
	s.UserAccepted = uint64(float64(s.UserAccepted) * factor)
	s.UserRejected = uint64(float64(s.UserRejected) * factor)
}

// StatsStore is the full collection of per-bucket statistics plus a
// global rollup (spec.md §4.7 "in-memory running stats").
type StatsStore struct {
	mu            sync.RWMutex
	buckets       map[StatsKey]*Stats
	global        Stats
	totalOutcomes uint64
}

// NewStatsStore builds an empty StatsStore.
func NewStatsStore() *StatsStore {
	return &StatsStore{buckets: make(map[StatsKey]*Stats)}
}

// Record folds one outcome into its bucket and the global rollup.
func (s *StatsStore) Record(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := StatsKey{Scale: o.HoleScale, Origin: o.HoleOrigin, Strategy: o.Strategy}
	bucket, ok := s.buckets[key]
	if !ok {
		bucket = &Stats{}
		s.buckets[key] = bucket
	}
	bucket.Update(o)
	s.global.Update(o)
	s.totalOutcomes++
}

// Get returns the bucket for an exact key, if any.
func (s *StatsStore) Get(key StatsKey) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[key]
	if !ok {
		return Stats{}, false
	}
	return *b, true
}

// GetForHole returns every (strategy, Stats) pair recorded for a
// (scale, origin) pair.
func (s *StatsStore) GetForHole(scale, origin string) map[string]Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Stats)
	for k, v := range s.buckets {
		if k.Scale == scale && k.Origin == origin {
			out[k.Strategy] = *v
		}
	}
	return out
}

// BestStrategyFor returns the strategy with the highest combined score
// among buckets with at least minSamples attempts, or "" if none qualify.
func (s *StatsStore) BestStrategyFor(scale, origin string, minSamples uint64) (string, bool) {
	ranking := s.StrategyRanking(scale, origin, minSamples)
	if len(ranking) == 0 {
		return "", false
	}
	return ranking[0].Strategy, true
}

// Ranked is one entry in a strategy ranking.
type Ranked struct {
	Strategy string
	Score    float64
}

// StrategyRanking returns eligible strategies (attempts >= minSamples)
// for a (scale, origin) pair, sorted descending by combined score
// (spec.md §4.6 "Eligibility for ranking").
func (s *StatsStore) StrategyRanking(scale, origin string, minSamples uint64) []Ranked {
	candidates := s.GetForHole(scale, origin)

	ranking := make([]Ranked, 0, len(candidates))
	for strategy, stats := range candidates {
		if stats.Attempts < minSamples {
			continue
		}
		ranking = append(ranking, Ranked{Strategy: strategy, Score: stats.CombinedScore()})
	}

	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].Strategy < ranking[j].Strategy
	})
	return ranking
}

// HasEnoughData reports whether any bucket for (scale, origin) has at
// least minSamples attempts.
func (s *StatsStore) HasEnoughData(scale, origin string, minSamples uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.buckets {
		if k.Scale == scale && k.Origin == origin && v.Attempts >= minSamples {
			return true
		}
	}
	return false
}

// ApplyGlobalDecay applies ApplyDecay to every bucket and the global
// rollup.
func (s *StatsStore) ApplyGlobalDecay(factor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.buckets {
		b.ApplyDecay(factor)
	}
	s.global.ApplyDecay(factor)
}

// Summary is a point-in-time rollup of the whole store.
type Summary struct {
	TotalOutcomes        uint64
	UniqueCombinations   int
	GlobalSuccessRate    float64
	GlobalAcceptanceRate float64
	AvgConfidence        float64
	AvgTimeMs            float64
}

// Summary reports global aggregate stats.
func (s *StatsStore) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		TotalOutcomes:        s.totalOutcomes,
		UniqueCombinations:   len(s.buckets),
		GlobalSuccessRate:    s.global.SuccessRate(),
		GlobalAcceptanceRate: s.global.AcceptanceRate(),
		AvgConfidence:        s.global.AvgConfidence,
		AvgTimeMs:            s.global.AvgTimeMs,
	}
}

// ExportJSON serializes every bucket for offline inspection
// (SPEC_FULL.md "Supplemented features" #4).
func (s *StatsStore) ExportJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		Key   StatsKey
		Stats Stats
	}
	entries := make([]entry, 0, len(s.buckets))
	for k, v := range s.buckets {
		entries = append(entries, entry{Key: k, Stats: *v})
	}
	return json.MarshalIndent(entries, "", "  ")
}

// ReplayIntoFreshStore rebuilds a StatsStore from a list of persisted
// outcomes, used to verify P10 (replay determinism) and to rebuild state
// on startup.
func ReplayIntoFreshStore(outcomes []Outcome) *StatsStore {
	store := NewStatsStore()
	for _, o := range outcomes {
		store.Record(o)
	}
	return store
}
