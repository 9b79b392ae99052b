package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMarshalJSON(t *testing.T) {
	f := New(map[string]Condition{
		FieldMilkAllergy:        {OpEq, false},
		FieldDietaryPreferences: {OpIn, []string{"vegan"}},
		FieldOtherAllergies:     {OpNin, []string{"sesame"}},
		FieldStudentPrice:       {OpLte, 8.0},
	})

	raw, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, map[string]any{"$eq": false}, decoded[FieldMilkAllergy])
	assert.Equal(t, map[string]any{"$in": []any{"vegan"}}, decoded[FieldDietaryPreferences])
	assert.Equal(t, map[string]any{"$nin": []any{"sesame"}}, decoded[FieldOtherAllergies])
	assert.Equal(t, map[string]any{"$lte": 8.0}, decoded[FieldStudentPrice])
}

func TestConditionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		wire string
	}{
		{"eq bool", Condition{OpEq, false}, `{"$eq":false}`},
		{"lte number", Condition{OpLte, 8.5}, `{"$lte":8.5}`},
		{"in list", Condition{OpIn, []string{"a", "b"}}, `{"$in":["a","b"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.cond)
			require.NoError(t, err)
			assert.JSONEq(t, tt.wire, string(raw))

			var back Condition
			require.NoError(t, json.Unmarshal(raw, &back))
			assert.Equal(t, tt.cond.Op, back.Op)
		})
	}
}

func TestFilterImmutability(t *testing.T) {
	source := map[string]Condition{
		FieldMilkAllergy: {OpEq, false},
	}
	f := New(source)

	// Mutating the source map after construction must not leak in.
	source[FieldEggsAllergy] = Condition{OpEq, false}
	assert.Equal(t, 1, f.Len())

	// Mutating a conditions snapshot must not leak back.
	snapshot := f.Conditions()
	snapshot[FieldPeanutsAllergy] = Condition{OpEq, false}
	assert.Equal(t, 1, f.Len())
}

func TestFilterFieldsSorted(t *testing.T) {
	f := New(map[string]Condition{
		FieldStudentPrice: {OpLte, 5.0},
		FieldCuisineType:  {OpIn, []string{"thai"}},
		FieldMilkAllergy:  {OpEq, false},
	})

	assert.Equal(t, []string{FieldCuisineType, FieldMilkAllergy, FieldStudentPrice}, f.Fields())
}
