package search

import (
	"github.com/codesearch-core/codesearch/internal/chunk"
)

// QueryIntent is the enumerated hint a caller of FindCode may attach to a
// query, used to boost chunks whose semantic category matches what that
// kind of request usually needs. It is a light post-multiplier applied
// after reranking, never a re-sort from scratch.
type QueryIntent string

const (
	// IntentGeneral is the default: no category gets a boost.
	IntentGeneral QueryIntent = ""

	// IntentDebugging favors control-flow and error-handling shaped chunks,
	// the ones a developer chasing a bug actually reads.
	IntentDebugging QueryIntent = "debugging"

	// IntentUsageExample favors call-site chunks over the definitions
	// themselves, useful when a caller wants to see how something is used.
	IntentUsageExample QueryIntent = "usage_example"

	// IntentAPIReference favors definitions (functions, types, signatures)
	// over call sites or literals.
	IntentAPIReference QueryIntent = "api_reference"
)

// intentWeights maps (intent, category) to a multiplier. Pairs absent from
// the table default to 1.0 (no boost, no penalty). The table is static:
// no learned or per-project tuning, matching the spec's "light
// post-multiplier" framing rather than a full re-ranking model.
var intentWeights = map[QueryIntent]map[chunk.SemanticCategory]float64{
	IntentDebugging: {
		chunk.CategoryControlFlow: 1.25,
		chunk.CategoryInvocation:  1.10,
		chunk.CategoryLiteral:     0.90,
	},
	IntentUsageExample: {
		chunk.CategoryInvocation:  1.30,
		chunk.CategoryDefinition:  0.85,
	},
	IntentAPIReference: {
		chunk.CategoryDefinition: 1.30,
		chunk.CategoryInvocation: 0.85,
	},
}

// IntentWeight returns the multiplier for a given intent and semantic
// category. An unrecognized intent, an unrecognized category, or
// IntentGeneral all resolve to 1.0.
func IntentWeight(intent QueryIntent, category chunk.SemanticCategory) float64 {
	byCategory, ok := intentWeights[intent]
	if !ok {
		return 1.0
	}
	if w, ok := byCategory[category]; ok {
		return w
	}
	return 1.0
}

// ParseIntent normalizes a free-form intent string from an external caller
// into the closed QueryIntent set. Unrecognized values fall back to
// IntentGeneral rather than erroring, since intent is an optional hint.
func ParseIntent(s string) QueryIntent {
	switch QueryIntent(s) {
	case IntentDebugging, IntentUsageExample, IntentAPIReference:
		return QueryIntent(s)
	default:
		return IntentGeneral
	}
}
