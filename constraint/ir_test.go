package constraint

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestIRJSONRoundTrip(t *testing.T) {
	// R1: IR JSON round-trip preserves all fields.
	original := IR{
		Name:     "hole-42",
		Priority: 7,
		Schema: &JSONSchema{
			Type:                 "object",
			Properties:           map[string]interface{}{"count": "integer"},
			Required:             []string{"count"},
			AdditionalProperties: false,
		},
		Grammar: &Grammar{
			Start: "expr",
			Rules: []GrammarRule{{LHS: "expr", RHS: []string{"term"}}},
		},
		Regex: []RegexPattern{{Pattern: "[0-9]+", Flags: "m"}},
		TokenMasks: &TokenMaskRules{
			Allowed:   []int64{10, 20},
			Forbidden: []int64{99},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded IR
	require.NoError(t, json.Unmarshal(data, &decoded))

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}
