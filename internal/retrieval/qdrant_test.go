package retrieval

import (
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/unifeast/feastd/internal/filter"
)

func TestTranslateFilter(t *testing.T) {
	f := filter.New(map[string]filter.Condition{
		filter.FieldMilkAllergy:        {Op: filter.OpEq, Value: false},
		filter.FieldCuisineType:        {Op: filter.OpIn, Value: []string{"thai", "korean"}},
		filter.FieldOtherAllergies:     {Op: filter.OpNin, Value: []string{"sesame"}},
		filter.FieldStudentPrice:       {Op: filter.OpLte, Value: 8.0},
		filter.FieldDietaryPreferences: {Op: filter.OpIn, Value: []string{"vegan"}},
	})

	qf, err := translateFilter(f)
	require.NoError(t, err)
	require.NotNil(t, qf)

	// $eq, $in and $lte land in Must; $nin lands in MustNot.
	assert.Len(t, qf.Must, 4)
	require.Len(t, qf.MustNot, 1)

	byKey := map[string]*qdrant.FieldCondition{}
	for _, cond := range qf.Must {
		fc := cond.GetField()
		require.NotNil(t, fc)
		byKey[fc.Key] = fc
	}

	milk := byKey[filter.FieldMilkAllergy]
	require.NotNil(t, milk)
	assert.False(t, milk.Match.GetBoolean())

	cuisine := byKey[filter.FieldCuisineType]
	require.NotNil(t, cuisine)
	assert.Equal(t, []string{"thai", "korean"}, cuisine.Match.GetKeywords().GetStrings())

	price := byKey[filter.FieldStudentPrice]
	require.NotNil(t, price)
	require.NotNil(t, price.Range)
	require.NotNil(t, price.Range.Lte)
	assert.Equal(t, 8.0, *price.Range.Lte)
	assert.Nil(t, price.Range.Gte)

	nin := qf.MustNot[0].GetField()
	require.NotNil(t, nin)
	assert.Equal(t, filter.FieldOtherAllergies, nin.Key)
	assert.Equal(t, []string{"sesame"}, nin.Match.GetKeywords().GetStrings())
}

func TestTranslateFilterEmpty(t *testing.T) {
	qf, err := translateFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, qf)

	qf, err = translateFilter(filter.New(nil))
	require.NoError(t, err)
	assert.Nil(t, qf)
}

func TestTranslateFilterStringEquality(t *testing.T) {
	f := filter.New(map[string]filter.Condition{
		filter.FieldCuisineType: {Op: filter.OpEq, Value: "thai"},
	})

	qf, err := translateFilter(f)
	require.NoError(t, err)
	require.Len(t, qf.Must, 1)
	assert.Equal(t, "thai", qf.Must[0].GetField().Match.GetKeyword())
}

func TestTranslateFilterJSONRoundTripValues(t *testing.T) {
	// After a JSON round trip, list values arrive as []any.
	f := filter.New(map[string]filter.Condition{
		filter.FieldCuisineType: {Op: filter.OpIn, Value: []any{"thai", "korean"}},
	})

	qf, err := translateFilter(f)
	require.NoError(t, err)
	require.Len(t, qf.Must, 1)
	assert.Equal(t, []string{"thai", "korean"}, qf.Must[0].GetField().Match.GetKeywords().GetStrings())
}

func TestTranslateFilterRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		cond filter.Condition
	}{
		{"eq on number", filter.Condition{Op: filter.OpEq, Value: 5.0}},
		{"in on scalar", filter.Condition{Op: filter.OpIn, Value: "thai"}},
		{"lte on string", filter.Condition{Op: filter.OpLte, Value: "8"}},
		{"unknown op", filter.Condition{Op: "$gt", Value: 3.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := filter.New(map[string]filter.Condition{"field": tt.cond})
			_, err := translateFilter(f)
			assert.Error(t, err)
		})
	}
}

func TestIsTransientError(t *testing.T) {
	assert.True(t, isTransientError(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, isTransientError(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.True(t, isTransientError(status.Error(grpccodes.ResourceExhausted, "busy")))
	assert.False(t, isTransientError(status.Error(grpccodes.InvalidArgument, "bad filter")))
	assert.False(t, isTransientError(errors.New("plain error")))
	assert.False(t, isTransientError(nil))
}

func TestQdrantConfigValidate(t *testing.T) {
	valid := QdrantConfig{Host: "localhost", Port: 6334, Collection: "menu_items", VectorSize: 1536}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*QdrantConfig)
	}{
		{"missing host", func(c *QdrantConfig) { c.Host = "" }},
		{"bad port", func(c *QdrantConfig) { c.Port = 0 }},
		{"missing collection", func(c *QdrantConfig) { c.Collection = "" }},
		{"missing vector size", func(c *QdrantConfig) { c.VectorSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}
