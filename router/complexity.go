package router

import "github.com/itsneelabh/maze/constraint"

// FillConstraint is one entry in a hole spec's fill-constraints list
// (spec.md §3 "Hole spec").
type FillConstraint struct {
	Kind         string
	Value        string
	ErrorMessage string
}

// HoleSpec is the static description of a hole to be filled (spec.md §3
// "Hole spec" — the id/scale/origin/status fields that change over a
// refinement run live on refinement.HoleState instead).
type HoleSpec struct {
	ID              int
	FillSchema      *constraint.JSONSchema
	FillGrammar     *constraint.Grammar
	FillConstraints []FillConstraint
	ExternalGrammar string
}

// EstimateComplexity averages up to three present factors into a [0,1]
// complexity score (spec.md §4.3).
func EstimateComplexity(hole HoleSpec) float64 {
	var sum float64
	var n int

	if len(hole.FillConstraints) > 0 {
		sum += min1f(float64(len(hole.FillConstraints)) / 10)
		n++
	}
	if hole.FillSchema != nil {
		sum += schemaComplexity(hole.FillSchema)
		n++
	}
	if hole.FillGrammar != nil {
		sum += grammarComplexity(hole.FillGrammar)
		n++
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func schemaComplexity(s *constraint.JSONSchema) float64 {
	props := float64(len(s.Properties))
	required := float64(len(s.Required))
	nested := 0.0
	for _, v := range s.Properties {
		if _, ok := v.(map[string]interface{}); ok {
			nested++
		}
	}
	score := min(0.5, props/20) + min(0.3, required/10) + min(0.2, nested/5)
	return min1f(score)
}

func grammarComplexity(g *constraint.Grammar) float64 {
	rules := float64(len(g.Rules))
	var rhsTotal float64
	for _, r := range g.Rules {
		rhsTotal += float64(len(r.RHS))
	}
	meanRHS := 0.0
	if rules > 0 {
		meanRHS = rhsTotal / rules
	}
	score := min(0.5, rules/50) + min(0.5, meanRHS/10)
	return min1f(score)
}

func min1f(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

// ModelChoice models the autoregressive-vs-diffusion branch point carried
// over from the original design (SPEC_FULL.md "Supplemented features" #5).
// The diffusion backend itself remains a stub collaborator; this only
// decides which kind of request to build.
type ModelChoice struct {
	Diffusion   bool
	Temperature float64
	TopP        float64
	NumSteps    int
	GuidanceScale float64
}

// SelectModelChoice picks autoregressive vs. diffusion generation
// parameters for a hole, given whether diffusion is enabled in
// configuration and the estimated complexity.
func SelectModelChoice(hole HoleSpec, enableDiffusion bool, temperature float64) ModelChoice {
	if !enableDiffusion {
		return ModelChoice{Diffusion: false, Temperature: temperature, TopP: 0.95}
	}
	complexity := EstimateComplexity(hole)
	if complexity > 0.7 {
		return ModelChoice{Diffusion: true, NumSteps: 50, GuidanceScale: 7.5}
	}
	return ModelChoice{Diffusion: false, Temperature: temperature, TopP: 0.95}
}

// EstimateMaxTokens derives a request's max_tokens from hole richness:
// 256, plus 128 for a fill schema, 256 for a fill grammar and 32 per fill
// constraint, capped at ceiling (SPEC_FULL.md "Supplemented features" #1).
func EstimateMaxTokens(hole HoleSpec, ceiling int) int {
	tokens := 256
	if hole.FillSchema != nil {
		tokens += 128
	}
	if hole.FillGrammar != nil {
		tokens += 256
	}
	tokens += 32 * len(hole.FillConstraints)
	if tokens > ceiling {
		return ceiling
	}
	return tokens
}
