package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/engine"
)

func TestDataValueFromAny_String(t *testing.T) {
	// Given: a JSON string value
	// When: converting it
	v, err := dataValueFromAny("hello")

	// Then: it should become a TextValue
	require.NoError(t, err)
	text, ok := v.AsText()
	require.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestDataValueFromAny_IntegerFloat(t *testing.T) {
	// Given: a whole-number JSON float
	// When: converting it
	v, err := dataValueFromAny(float64(42))

	// Then: it should become an Int64Value, not a Float64Value
	require.NoError(t, err)
	assert.Equal(t, engine.KindInt64, v.Kind)
	assert.Equal(t, int64(42), v.Int64)
}

func TestDataValueFromAny_FractionalFloat(t *testing.T) {
	// Given: a fractional JSON float
	// When: converting it
	v, err := dataValueFromAny(3.5)

	// Then: it should become a Float64Value
	require.NoError(t, err)
	assert.Equal(t, engine.KindFloat64, v.Kind)
	assert.Equal(t, 3.5, v.Float64)
}

func TestDataValueFromAny_Vector(t *testing.T) {
	// Given: a JSON array of numbers
	// When: converting it
	v, err := dataValueFromAny([]any{float64(1), float64(2), float64(3)})

	// Then: it should become a VectorValue
	require.NoError(t, err)
	vec, ok := v.AsVector()
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestDataValueFromAny_RejectsNonNumericVectorElement(t *testing.T) {
	// Given: a JSON array with a non-numeric element
	// When: converting it
	_, err := dataValueFromAny([]any{float64(1), "oops"})

	// Then: it should fail
	require.Error(t, err)
}

func TestDataValueFromAny_RejectsUnsupportedType(t *testing.T) {
	// Given: an unsupported JSON value shape
	// When: converting it
	_, err := dataValueFromAny(map[string]any{"nested": true})

	// Then: it should fail
	require.Error(t, err)
}

func TestNewReplModel_SeedsWelcomeLine(t *testing.T) {
	// Given: a fresh repl model over a temp storage dir
	dir := t.TempDir()

	// When: constructing it
	m := newReplModel(nil, nil, dir)

	// Then: its history should carry a welcome line
	require.NotEmpty(t, m.history)
	assert.Contains(t, m.history[0].text, "irisd REPL")
}
