package refinement

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func defaultConfig() Config {
	return Config{
		MaxIterations:       10,
		MinConfidence:       0.8,
		ParallelFill:        true,
		TemperatureSchedule: []float64{0.9, 0.7, 0.5, 0.3, 0.1},
		FailureStrategy:     FailureRetryAlternate,
	}
}

func acceptingFill(model string) FillFunc {
	return func(_ context.Context, h *HoleState, temperature float64) (Attempt, error) {
		return Attempt{
			Text:             "filled",
			Confidence:       0.95,
			Temperature:      temperature,
			Model:            model,
			Timestamp:        time.Now(),
			ValidationPassed: true,
		}, nil
	}
}

func TestDependentHoleFillsOneIterationLater(t *testing.T) {
	// S5: hole 2 depends on hole 1; both ready at iter 0 is impossible
	// since hole 2's dependency isn't filled yet — hole 1 fills in iter 0,
	// hole 2 becomes ready (and fills) starting iter 1.
	h1 := NewHoleState(1, "statement", "user_marked", nil)
	h2 := NewHoleState(2, "statement", "user_marked", []int{1})

	var iterationOfFill sync.Map // hole id -> iteration count observed via attempts length
	fill := func(_ context.Context, h *HoleState, temperature float64) (Attempt, error) {
		iterationOfFill.Store(h.ID, len(h.Attempts))
		return Attempt{Text: "x", Confidence: 0.95, ValidationPassed: true, Temperature: temperature}, nil
	}

	sched, err := NewScheduler(defaultConfig())
	require.NoError(t, err)

	result := sched.Refine(context.Background(), []*HoleState{h1, h2}, fill)

	require.True(t, result.Complete)
	require.Equal(t, StatusFilled, h1.Status)
	require.Equal(t, StatusFilled, h2.Status)
	// h1 has exactly one attempt (iteration 0); h2's first attempt lands
	// strictly after h1 is resolved, i.e. iteration >= 1.
	require.Len(t, h1.Attempts, 1)
	require.GreaterOrEqual(t, len(h2.Attempts), 1)
	// Each iteration uses its own schedule entry: 0.9 at iteration 0,
	// 0.7 at iteration 1.
	require.Equal(t, 0.9, h1.Attempts[0].Temperature)
	require.Equal(t, 0.7, h2.Attempts[0].Temperature)
}

func TestReadinessRequiresAllDependenciesFilled(t *testing.T) {
	// P8
	h1 := NewHoleState(1, "statement", "user_marked", nil)
	h1.Status = StatusFailed // not Filled
	h2 := NewHoleState(2, "statement", "user_marked", []int{1})

	require.False(t, h2.isReady(filledSet([]*HoleState{h1, h2})))
}

func TestAcceptanceRuleRequiresConfidenceAndValidation(t *testing.T) {
	// P9
	h := NewHoleState(1, "statement", "user_marked", nil)
	lowConfidence := func(_ context.Context, h *HoleState, temperature float64) (Attempt, error) {
		return Attempt{Confidence: 0.1, ValidationPassed: true, Temperature: temperature}, nil
	}

	sched, err := NewScheduler(Config{
		MaxIterations: 1, MinConfidence: 0.8, ParallelFill: false,
		TemperatureSchedule: []float64{0.5}, FailureStrategy: FailureSkip,
	})
	require.NoError(t, err)

	result := sched.Refine(context.Background(), []*HoleState{h}, lowConfidence)
	require.NotEqual(t, StatusFilled, h.Status)
	require.NotContains(t, result.NeedsReview, h.ID) // Skip -> not in needs_review
}

func TestDependencyCycleReportsBlocked(t *testing.T) {
	h1 := NewHoleState(1, "statement", "user_marked", []int{2})
	h2 := NewHoleState(2, "statement", "user_marked", []int{1})

	sched, err := NewScheduler(defaultConfig())
	require.NoError(t, err)

	result := sched.Refine(context.Background(), []*HoleState{h1, h2}, acceptingFill("m"))
	require.False(t, result.Complete)
	require.True(t, result.Blocked)
	require.ElementsMatch(t, []int{1, 2}, result.NeedsReview)
}

func TestFailureStrategySkip(t *testing.T) {
	h := NewHoleState(1, "statement", "user_marked", nil)
	reject := func(_ context.Context, h *HoleState, temperature float64) (Attempt, error) {
		return Attempt{Confidence: 0.1, ValidationPassed: false, Temperature: temperature}, nil
	}

	sched, err := NewScheduler(Config{
		MaxIterations: 1, MinConfidence: 0.8, ParallelFill: false,
		TemperatureSchedule: []float64{0.5}, FailureStrategy: FailureSkip,
	})
	require.NoError(t, err)

	sched.Refine(context.Background(), []*HoleState{h}, reject)
	require.Equal(t, StatusSkipped, h.Status)
}

func TestFailureStrategyRetryAlternateDemotesToPending(t *testing.T) {
	h := NewHoleState(1, "statement", "user_marked", nil)
	var calls atomic.Int32
	reject := func(_ context.Context, h *HoleState, temperature float64) (Attempt, error) {
		calls.Add(1)
		return Attempt{Confidence: 0.1, ValidationPassed: false, Temperature: temperature}, nil
	}

	sched, err := NewScheduler(Config{
		MaxIterations: 3, MinConfidence: 0.8, ParallelFill: false,
		TemperatureSchedule: []float64{0.9, 0.5, 0.1}, FailureStrategy: FailureRetryAlternate,
	})
	require.NoError(t, err)

	sched.Refine(context.Background(), []*HoleState{h}, reject)
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, StatusPending, h.Status)
}

func TestTemperatureScheduleSticksOnLastEntry(t *testing.T) {
	sched, err := NewScheduler(Config{
		MaxIterations: 5, TemperatureSchedule: []float64{0.9, 0.5},
		MinConfidence: 0.8, FailureStrategy: FailureSkip,
	})
	require.NoError(t, err)

	require.Equal(t, 0.9, sched.temperatureFor(0))
	require.Equal(t, 0.5, sched.temperatureFor(1))
	require.Equal(t, 0.5, sched.temperatureFor(2))
	require.Equal(t, 0.5, sched.temperatureFor(10))
}
