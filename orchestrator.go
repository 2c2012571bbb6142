package maze

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itsneelabh/maze/adaptive"
	"github.com/itsneelabh/maze/constraint"
	"github.com/itsneelabh/maze/ensemble"
	"github.com/itsneelabh/maze/inference"
	"github.com/itsneelabh/maze/outcomes"
	"github.com/itsneelabh/maze/refinement"
	"github.com/itsneelabh/maze/router"
)

// HoleRequest is the caller-supplied static description of one hole to
// refine, combining refinement.HoleState's identity fields with
// router.HoleSpec's routing metadata and the constraint.IR list that
// governs its fill (spec.md §3 "Hole spec").
type HoleRequest struct {
	ID              int
	Scale           string
	Origin          string
	ExpectedType    string
	DependsOn       []int
	FillSchema      *constraint.JSONSchema
	FillGrammar     *constraint.Grammar
	FillConstraints []router.FillConstraint
	ExternalGrammar string
	IRs             []constraint.IR
	PromptContext   string
}

// Orchestrator wires every component (A-H) into the top-level refine
// operation, mirroring the reference implementation's MazeOrchestrator
// (original Rust source, lib.rs).
type Orchestrator struct {
	cfg       *Config
	log       Logger
	compiler  *constraint.Compiler
	router    *router.Router
	ensemble  *ensemble.Backend
	selector  *adaptive.Selector
	scheduler *refinement.Scheduler
	store     *outcomes.Store
	stats     *outcomes.StatsStore
}

// NewOrchestrator constructs every subsystem from cfg and wires them
// together. dataDir is the outcome store's persistence root.
func NewOrchestrator(cfg *Config, dataDir string) (*Orchestrator, error) {
	compiler, err := constraint.NewCompiler(cfg.Cache.CacheSizeLimit)
	if err != nil {
		return nil, NewError("NewOrchestrator", "config", err)
	}

	endpoints := make([]router.Endpoint, 0, len(cfg.Endpoints)+1)
	if len(cfg.Endpoints) == 0 {
		endpoints = append(endpoints, router.NewEndpoint(
			cfg.Inference.Model, cfg.Inference.EndpointURL, cfg.Inference.Model,
			cfg.Inference.APIKey, cfg.Inference.TimeoutSecs, nil, 0, 0,
		))
	}
	for _, ep := range cfg.Endpoints {
		caps := make([]router.Capability, 0, len(ep.Capabilities))
		for _, c := range ep.Capabilities {
			caps = append(caps, router.Capability(c))
		}
		endpoints = append(endpoints, router.NewEndpoint(
			ep.Name, ep.EndpointURL, ep.Model, ep.APIKey, ep.TimeoutSecs,
			caps, ep.Priority, ep.CostPer1kTokens,
		))
	}

	rtr, err := router.NewRouter(endpoints)
	if err != nil {
		return nil, NewError("NewOrchestrator", "routing", fmt.Errorf("%w: %v", ErrRoutingNoEndpoints, err))
	}

	backend := ensemble.NewBackend(len(endpoints)-1, func(ep router.Endpoint) *inference.Client {
		return inference.NewClient(inference.Config{
			EndpointURL: ep.EndpointURL,
			APIKey:      ep.APIKey,
			Model:       ep.Model,
			Timeout:     cfg.Inference.Timeout,
			EnableRetry: cfg.Inference.EnableRetry,
			MaxRetries:  cfg.Inference.MaxRetries,
		})
	})

	stats := outcomes.NewStatsStore()
	selector := adaptive.NewSelector(adaptive.Config{
		ExplorationRate: cfg.Adaptive.ExplorationRate,
		MinSamples:      cfg.Adaptive.MinSamples,
		DecayFactor:     cfg.Adaptive.DecayFactor,
	}, stats, time.Now().UnixNano())

	sched, err := refinement.NewScheduler(refinement.Config{
		MaxIterations:       cfg.Refinement.MaxIterations,
		MinConfidence:       cfg.Refinement.MinConfidence,
		ParallelFill:        cfg.Refinement.ParallelFill,
		TemperatureSchedule: cfg.Refinement.TemperatureSchedule,
		FailureStrategy:     refinement.FailureStrategy(cfg.Refinement.FailureStrategy),
	})
	if err != nil {
		return nil, NewError("NewOrchestrator", "config", err)
	}

	store, err := outcomes.NewStore(dataDir, 1000)
	if err != nil {
		return nil, NewError("NewOrchestrator", "config", err)
	}

	log := cfg.Logger
	if log == nil {
		log = NoOpLogger{}
	}

	return &Orchestrator{
		cfg: cfg, log: log, compiler: compiler, router: rtr, ensemble: backend,
		selector: selector, scheduler: sched, store: store, stats: stats,
	}, nil
}

// Refine runs the hole-refinement loop (component F) over requests,
// dispatching every fill through the router, ensemble backend, and
// adaptive selector, and recording one outcome per attempt.
func (o *Orchestrator) Refine(ctx context.Context, requests []HoleRequest) (refinement.Result, error) {
	holes := make([]*refinement.HoleState, 0, len(requests))
	specs := make(map[int]HoleRequest, len(requests))
	for _, req := range requests {
		constraints := make([]refinement.Constraint, 0, len(req.FillConstraints))
		for _, c := range req.FillConstraints {
			constraints = append(constraints, refinement.Constraint{
				Kind: c.Kind, Value: c.Value, ErrorMessage: c.ErrorMessage,
			})
		}
		h := refinement.NewHoleState(req.ID, req.Scale, req.Origin, req.DependsOn)
		h.ExpectedType = req.ExpectedType
		h.Constraints = constraints
		holes = append(holes, h)
		specs[req.ID] = req
	}

	result := o.scheduler.Refine(ctx, holes, o.fillHole(specs))
	if result.Blocked {
		return result, NewError("Orchestrator.Refine", "dependency_blocked",
			fmt.Errorf("%w: holes %v", ErrDependencyBlocked, result.NeedsReview))
	}
	return result, nil
}

// fillHole builds the FillFunc the scheduler drives: one fill attempt
// picks a strategy, routes, dispatches through the ensemble backend, and
// records the outcome (spec.md §4.5 step 4 combined with §4.4, §4.6,
// §4.7).
func (o *Orchestrator) fillHole(specs map[int]HoleRequest) refinement.FillFunc {
	return func(ctx context.Context, hole *refinement.HoleState, temperature float64) (refinement.Attempt, error) {
		correlationID := uuid.NewString()
		req := specs[hole.ID]
		decision := o.selector.Select(hole.Scale, hole.Origin)

		log := o.log
		if cl, ok := log.(ComponentLogger); ok {
			log = cl.WithComponent("orchestrator.fill")
		}
		log.Debug("fill attempt starting", "correlation_id", correlationID, "hole_id", hole.ID,
			"strategy", decision.Strategy, "reason", decision.Reason.Kind)

		start := time.Now()

		if decision.Strategy == adaptive.StrategyHumanRequired || decision.Strategy == adaptive.StrategySkip {
			rejected := &FillRejected{Reason: fmt.Sprintf("strategy %s requires human handling", decision.Strategy)}
			o.recordOutcome(req, string(decision.Strategy), "", false, 0, time.Since(start), "strategy excluded from automated fill")
			if IsFillRejected(rejected) {
				log.Debug("fill rejected by strategy", "correlation_id", correlationID, "hole_id", hole.ID, "reason", rejected.Reason)
			}
			return refinement.Attempt{
				Temperature: temperature, ValidationPassed: false,
				Error: rejected.Error(),
			}, rejected
		}

		spec := router.HoleSpec{
			ID: hole.ID, FillSchema: req.FillSchema, FillGrammar: req.FillGrammar,
			FillConstraints: req.FillConstraints, ExternalGrammar: req.ExternalGrammar,
		}

		routeDecision, err := o.router.Route(spec, req.IRs)
		if err != nil {
			o.recordOutcome(req, string(decision.Strategy), "", false, 0, time.Since(start), err.Error())
			return refinement.Attempt{Temperature: temperature, ValidationPassed: false, Error: err.Error()}, nil
		}

		var compiledSchema *constraint.Schema
		if len(req.IRs) > 0 {
			compiled, err := o.compiler.Compile(req.IRs)
			if err == nil {
				compiledSchema = compiled.Schema
			}
		}

		choice := router.SelectModelChoice(spec, o.cfg.Refinement.EnableDiffusion, temperature)
		maxTokens := router.EstimateMaxTokens(spec, 2048)

		genReq := inference.Request{
			Prompt:      buildPrompt(hole, req, string(decision.Strategy)),
			Constraints: compiledSchema,
			MaxTokens:   maxTokens,
			Temperature: choice.Temperature,
			Context:     map[string]interface{}{"correlation_id": correlationID},
		}

		resp, err := o.ensemble.GenerateRouted(ctx, genReq, routeDecision)
		elapsed := time.Since(start)
		if err != nil {
			if IsRetryable(err) {
				log.Warn("fill attempt failed, transient", "correlation_id", correlationID, "hole_id", hole.ID, "error", err)
			} else {
				log.Error("fill attempt failed", "correlation_id", correlationID, "hole_id", hole.ID, "error", err)
			}
			o.recordOutcome(req, string(decision.Strategy), routeDecision.Primary.Model, false, 0, elapsed, err.Error())
			return refinement.Attempt{Temperature: temperature, ValidationPassed: false, Error: err.Error()}, nil
		}

		confidence := resp.Confidence()
		validation := validateAgainstSchema(resp.GeneratedText, req.FillSchema)

		o.recordOutcome(req, string(decision.Strategy), resp.Model, validation, confidence, elapsed, "")

		return refinement.Attempt{
			Text: resp.GeneratedText, Confidence: confidence, Temperature: temperature,
			Model: resp.Model, Timestamp: time.Now(), ValidationPassed: validation,
		}, nil
	}
}

func (o *Orchestrator) recordOutcome(req HoleRequest, strategy, model string, success bool, confidence float64, elapsed time.Duration, rejectionReason string) {
	o.store.Record(outcomeFor(req, strategy, model, success, confidence, elapsed, rejectionReason))
	o.stats.Record(outcomeFor(req, strategy, model, success, confidence, elapsed, rejectionReason))
}

func outcomeFor(req HoleRequest, strategy, model string, success bool, confidence float64, elapsed time.Duration, rejectionReason string) outcomes.Outcome {
	o := outcomes.New(fmt.Sprintf("%d", req.ID), req.Scale, req.Origin, strategy, time.Now().Unix())
	o.Model = model
	o.Success = success
	o.Confidence = confidence
	o.TimeMs = elapsed.Milliseconds()
	o.RejectionReason = rejectionReason
	return o
}

// buildPrompt renders the prompt sent to the inference peer, templating
// in the hole's scale, origin, selected strategy, and surrounding context
// (SPEC_FULL.md "Supplemented features" #2).
func buildPrompt(hole *refinement.HoleState, req HoleRequest, strategy string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fill the %s-scale hole (origin: %s) using strategy %q.\n", hole.Scale, hole.Origin, strategy)
	if hole.ExpectedType != "" {
		fmt.Fprintf(&b, "Expected type: %s\n", hole.ExpectedType)
	}
	if req.PromptContext != "" {
		fmt.Fprintf(&b, "Context:\n%s\n", req.PromptContext)
	}
	for _, c := range hole.Constraints {
		fmt.Fprintf(&b, "Constraint (%s): %s\n", c.Kind, c.Value)
	}
	return b.String()
}

// validateAgainstSchema reports whether the generated text is non-empty.
// The fill schema, present or not, is not checked against the text
// (spec.md §4.5 step 5).
func validateAgainstSchema(text string, schema *constraint.JSONSchema) bool {
	if schema == nil {
		return text != ""
	}
	return text != ""
}

// StatsSummary exposes the adaptive layer's global rollup from the stats
// store.
func (o *Orchestrator) StatsSummary() outcomes.Summary {
	return o.stats.Summary()
}

// EnsembleMetrics returns a snapshot of the ensemble backend's in-memory
// per-model metrics. The backend's Prometheus collector is not exposed
// through the Orchestrator.
func (o *Orchestrator) EnsembleMetrics() map[string]ensemble.ModelMetrics {
	return o.ensemble.Metrics()
}
