package refinement

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// FailureStrategy decides what happens to a rejected fill attempt
// (spec.md §4.5 step 7).
type FailureStrategy string

const (
	FailureSkip           FailureStrategy = "Skip"
	FailureDecompose      FailureStrategy = "Decompose"
	FailureHumanReview    FailureStrategy = "HumanReview"
	FailureRetryAlternate FailureStrategy = "RetryAlternate"
)

// Config configures one refinement run (spec.md §6 "Refinement").
type Config struct {
	MaxIterations       int
	MinConfidence       float64
	ParallelFill        bool
	TemperatureSchedule []float64
	FailureStrategy     FailureStrategy
}

// FillFunc performs one fill attempt for a hole at the given temperature.
// The caller supplies this closure; it is expected to consult the
// adaptive selector, ask the router for a routing decision, and dispatch
// through the ensemble backend — none of which the scheduler needs to
// know about directly.
type FillFunc func(ctx context.Context, hole *HoleState, temperature float64) (Attempt, error)

// Metadata summarizes one refinement run (spec.md §4.5).
type Metadata struct {
	TotalTimeMs     int64
	SuccessfulFills int
	FailedFills     int
	SkippedHoles    int
	AvgConfidence   float64
	Iterations      int
	ModelUsage      map[string]int
}

// Result is the outcome of a refinement run (spec.md §4.5 "refine"
// operation).
type Result struct {
	Holes       []*HoleState
	Complete    bool
	NeedsReview []int
	Blocked     bool
	Iterations  int
	Metadata    Metadata
}

// Scheduler drives the DAG-ordered, iteration-bounded fill loop.
type Scheduler struct {
	cfg Config
}

// NewScheduler builds a Scheduler. cfg.TemperatureSchedule must be
// non-empty (spec.md §6).
func NewScheduler(cfg Config) (*Scheduler, error) {
	if len(cfg.TemperatureSchedule) == 0 {
		return nil, fmt.Errorf("refinement: temperature_schedule must be non-empty")
	}
	if cfg.MaxIterations <= 0 {
		return nil, fmt.Errorf("refinement: max_iterations must be > 0")
	}
	return &Scheduler{cfg: cfg}, nil
}

// temperatureFor implements "iteration i uses entry min(i, len-1)"
// (spec.md §4.5 "Temperature schedule").
func (s *Scheduler) temperatureFor(iteration int) float64 {
	idx := iteration
	if idx > len(s.cfg.TemperatureSchedule)-1 {
		idx = len(s.cfg.TemperatureSchedule) - 1
	}
	return s.cfg.TemperatureSchedule[idx]
}

// Refine runs the main loop in spec.md §4.5.
func (s *Scheduler) Refine(ctx context.Context, holes []*HoleState, fill FillFunc) Result {
	start := time.Now()
	byID := make(map[int]*HoleState, len(holes))
	for _, h := range holes {
		byID[h.ID] = h
	}

	meta := Metadata{ModelUsage: make(map[string]int)}
	var confidenceSum float64
	var confidenceCount int

	iteration := 0
	blocked := false

	for ; iteration < s.cfg.MaxIterations; iteration++ {
		filled := filledSet(holes)
		ready := readyHoles(holes, filled)

		if len(ready) == 0 {
			if allTerminal(holes) {
				break
			}
			// Non-empty Pending set, nothing ready: dependency cycle or
			// permanent block (spec.md §4.5 step 2, §9).
			blocked = true
			break
		}

		for _, h := range ready {
			h.Status = StatusInProgress
		}

		temperature := s.temperatureFor(iteration)
		attempts := s.fillAll(ctx, ready, temperature, fill)

		for i, h := range ready {
			attempt := attempts[i].attempt
			if attempts[i].err != nil {
				attempt.Error = attempts[i].err.Error()
			}
			h.Attempts = append(h.Attempts, attempt)

			accepted := attempts[i].err == nil &&
				attempt.Confidence >= s.cfg.MinConfidence &&
				attempt.ValidationPassed

			if accepted {
				h.CurrentFill = attempt.Text
				h.Confidence = attempt.Confidence
				h.Status = StatusFilled
				meta.SuccessfulFills++
				confidenceSum += attempt.Confidence
				confidenceCount++
				if attempt.Model != "" {
					meta.ModelUsage[attempt.Model]++
				}
				continue
			}

			meta.FailedFills++
			switch s.cfg.FailureStrategy {
			case FailureSkip:
				h.Status = StatusSkipped
				meta.SkippedHoles++
			case FailureHumanReview:
				h.Status = StatusNeedsHuman
			case FailureDecompose:
				// Decomposition is an open TODO upstream; treated as a
				// terminal failure (spec.md §9).
				h.Status = StatusFailed
			case FailureRetryAlternate:
				h.Status = StatusPending
			default:
				h.Status = StatusFailed
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	var needsReview []int
	for _, h := range holes {
		if h.Status == StatusNeedsHuman || h.Status == StatusFailed {
			needsReview = append(needsReview, h.ID)
		}
		// DependencyBlocked: the holes stuck non-terminal when the ready
		// set went empty are themselves offending ids (spec.md §4.5 step 2,
		// §9: "Returned as complete=false with offending ids in
		// needs_review[]").
		if blocked && !h.Status.terminal() {
			needsReview = append(needsReview, h.ID)
		}
	}

	complete := !blocked && allTerminal(holes) && len(needsReview) == 0

	maxAttempts := 0
	for _, h := range holes {
		if len(h.Attempts) > maxAttempts {
			maxAttempts = len(h.Attempts)
		}
	}
	iterationsReported := maxAttempts
	if iterationsReported > s.cfg.MaxIterations {
		iterationsReported = s.cfg.MaxIterations
	}

	if confidenceCount > 0 {
		meta.AvgConfidence = confidenceSum / float64(confidenceCount)
	}
	meta.TotalTimeMs = time.Since(start).Milliseconds()
	meta.Iterations = iterationsReported

	return Result{
		Holes:       holes,
		Complete:    complete,
		NeedsReview: needsReview,
		Blocked:     blocked,
		Iterations:  iterationsReported,
		Metadata:    meta,
	}
}

type attemptResult struct {
	attempt Attempt
	err     error
}

// fillAll launches one fill per ready hole for this iteration. All fills
// share the same temperature and the same ready snapshot; none observes
// another's completion mid-iteration (spec.md §4.5 "Parallel fill
// ordering", §5).
func (s *Scheduler) fillAll(ctx context.Context, ready []*HoleState, temperature float64, fill FillFunc) []attemptResult {
	results := make([]attemptResult, len(ready))

	if !s.cfg.ParallelFill {
		for i, h := range ready {
			attempt, err := fill(ctx, h, temperature)
			results[i] = attemptResult{attempt: attempt, err: err}
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range ready {
		i, h := i, h
		g.Go(func() error {
			attempt, err := fill(gctx, h, temperature)
			results[i] = attemptResult{attempt: attempt, err: err}
			return nil // per-hole errors are recorded, not propagated to peers
		})
	}
	_ = g.Wait()
	return results
}

func filledSet(holes []*HoleState) map[int]bool {
	out := make(map[int]bool, len(holes))
	for _, h := range holes {
		if h.Status == StatusFilled {
			out[h.ID] = true
		}
	}
	return out
}

func readyHoles(holes []*HoleState, filled map[int]bool) []*HoleState {
	var ready []*HoleState
	for _, h := range holes {
		if h.isReady(filled) {
			ready = append(ready, h)
		}
	}
	return ready
}

func allTerminal(holes []*HoleState) bool {
	for _, h := range holes {
		if !h.Status.terminal() {
			return false
		}
	}
	return true
}
