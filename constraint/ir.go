// Package constraint implements the Constraint IR data model and the
// compiler/cache that turns an ordered list of IR into the schema the
// inference peer understands (components A and B).
package constraint

// IR is a single named constraint unit. Name uniqueness is not required;
// ordering is significant only for priority-based conflict reporting.
type IR struct {
	Name       string          `json:"name"`
	Priority   int             `json:"priority"`
	Schema     *JSONSchema     `json:"json_schema,omitempty"`
	Grammar    *Grammar        `json:"grammar,omitempty"`
	Regex      []RegexPattern  `json:"regex_patterns,omitempty"`
	TokenMasks *TokenMaskRules `json:"token_masks,omitempty"`
}

// JSONSchema is a structured-object schema payload.
type JSONSchema struct {
	Type                 string                 `json:"schema_type"`
	Properties           map[string]interface{} `json:"properties"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties bool                   `json:"additional_properties"`
}

// Grammar is a context-free grammar: an ordered rule list plus start
// symbol.
type Grammar struct {
	Rules []GrammarRule `json:"rules"`
	Start string        `json:"start_symbol"`
}

// GrammarRule is a single production: lhs -> rhs (a sequence of symbols).
type GrammarRule struct {
	LHS string   `json:"lhs"`
	RHS []string `json:"rhs"`
}

// RegexPattern pairs a pattern string with a flag string (e.g. "i", "m").
type RegexPattern struct {
	Pattern string `json:"pattern"`
	Flags   string `json:"flags,omitempty"`
}

// TokenMaskRules allow-lists and/or deny-lists integer token ids.
type TokenMaskRules struct {
	Allowed   []int64 `json:"allowed_tokens,omitempty"`
	Forbidden []int64 `json:"forbidden_tokens,omitempty"`
}
