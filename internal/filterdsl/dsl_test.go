package filterdsl

import (
	"testing"

	coreerrors "github.com/codesearch-core/codesearch/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_UnknownFieldFailsWithValidation(t *testing.T) {
	p := Eq("totally_unknown_field", "x")
	err := Validate(p)
	require.Error(t, err)
	assert.Equal(t, coreerrors.KindValidation, coreerrors.GetKind(err))
}

func TestValidate_NestedUnknownFieldFailsWithValidation(t *testing.T) {
	p := And(Eq("language", "go"), Or(Exists("nope")))
	err := Validate(p)
	require.Error(t, err)
}

func TestValidate_KnownFieldsPass(t *testing.T) {
	min := 10.0
	max := 50.0
	p := And(
		Eq("language", "go"),
		In("chunk_kind", "function", "method"),
		Range("line_start", &min, &max, true, true),
		Exists("semantic_category"),
		PrefixMatch("file_path", "src/"),
	)
	assert.NoError(t, Validate(p))
}

func TestToInProcessEvaluator_EqMatchesPayload(t *testing.T) {
	eval, err := ToInProcessEvaluator(Eq("language", "go"))
	require.NoError(t, err)
	assert.True(t, eval(map[string]any{"language": "go"}))
	assert.False(t, eval(map[string]any{"language": "python"}))
}

func TestToInProcessEvaluator_AndRequiresAllChildren(t *testing.T) {
	eval, err := ToInProcessEvaluator(And(
		Eq("language", "go"),
		Exists("semantic_category"),
	))
	require.NoError(t, err)
	assert.True(t, eval(map[string]any{"language": "go", "semantic_category": "definition"}))
	assert.False(t, eval(map[string]any{"language": "go"}))
}

func TestToInProcessEvaluator_Not(t *testing.T) {
	eval, err := ToInProcessEvaluator(Not(Eq("chunk_kind", "comment")))
	require.NoError(t, err)
	assert.True(t, eval(map[string]any{"chunk_kind": "function"}))
	assert.False(t, eval(map[string]any{"chunk_kind": "comment"}))
}

func TestToInProcessEvaluator_RangeInclusiveBounds(t *testing.T) {
	min, max := 10.0, 20.0
	eval, err := ToInProcessEvaluator(Range("line_start", &min, &max, true, false))
	require.NoError(t, err)
	assert.True(t, eval(map[string]any{"line_start": 10.0}))
	assert.False(t, eval(map[string]any{"line_start": 20.0}))
	assert.True(t, eval(map[string]any{"line_start": 19.0}))
}

func TestToInProcessEvaluator_PrefixMatch(t *testing.T) {
	eval, err := ToInProcessEvaluator(PrefixMatch("file_path", "src/internal/"))
	require.NoError(t, err)
	assert.True(t, eval(map[string]any{"file_path": "src/internal/index.go"}))
	assert.False(t, eval(map[string]any{"file_path": "cmd/main.go"}))
}

func TestToInProcessEvaluator_RejectsUnknownField(t *testing.T) {
	_, err := ToInProcessEvaluator(Eq("bogus", 1))
	require.Error(t, err)
}

func TestToBleveQuery_TranslatesKnownOperators(t *testing.T) {
	min := 1.0
	max := 2.0
	p := And(
		Eq("language", "go"),
		Or(In("chunk_kind", "function")),
		Not(Exists("embedding_complete")),
		Range("importance", &min, &max, true, true),
		PrefixMatch("file_path", "src/"),
	)
	q, err := ToBleveQuery(p)
	require.NoError(t, err)
	assert.NotNil(t, q)
}

func TestToBleveQuery_RejectsUnknownField(t *testing.T) {
	_, err := ToBleveQuery(Eq("nope", "x"))
	require.Error(t, err)
	assert.Equal(t, coreerrors.KindValidation, coreerrors.GetKind(err))
}
