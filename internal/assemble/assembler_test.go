package assemble

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifeast/feastd/internal/filter"
	"github.com/unifeast/feastd/internal/profile"
	"github.com/unifeast/feastd/internal/retrieval"
)

func floatPtr(v float64) *float64 { return &v }

func testResults() []retrieval.ScoredItem {
	return []retrieval.ScoredItem{
		{
			ID:      "item-1",
			Score:   0.92,
			Content: "Pad Thai. Rice noodles with tofu.",
			Metadata: map[string]any{
				"name":          "Pad Thai",
				"description":   "Rice noodles with tofu.",
				"restaurant":    "Thai Kitchen",
				"category":      "mains",
				"cuisine_type":  "thai",
				"student_price": 6.5,
				"staff_price":   8.0,
				"eggs_allergy":  true,
				"milk_allergy":  false,
				"available":     true,
			},
		},
		{
			ID:      "item-2",
			Score:   0.85,
			Content: "Green Curry",
			Metadata: map[string]any{
				"name":          "Green Curry",
				"cuisine_type":  "thai",
				"student_price": 7.0,
			},
		},
	}
}

func TestAssemble(t *testing.T) {
	f := filter.New(map[string]filter.Condition{
		filter.FieldMilkAllergy:  {Op: filter.OpEq, Value: false},
		filter.FieldStudentPrice: {Op: filter.OpLte, Value: 8.0},
	})

	resp := Assemble(Input{
		Query:    "thai food",
		Results:  testResults(),
		Filter:   f,
		Identity: profile.IdentityStudent,
	})

	// One card per result, order preserved.
	require.Len(t, resp.UICards, 2)
	assert.Equal(t, "Pad Thai", resp.UICards[0].Name)
	assert.Equal(t, "Green Curry", resp.UICards[1].Name)
	assert.Equal(t, "thai", resp.UICards[0].Cuisine)
	assert.Equal(t, "Thai Kitchen", resp.UICards[0].Restaurant)
	assert.Equal(t, "mains", resp.UICards[0].Category)
	assert.Equal(t, []string{"eggs"}, resp.UICards[0].Allergens, "only flagged allergens are listed")
	assert.True(t, resp.UICards[0].Available)
	assert.True(t, resp.UICards[1].Available, "missing availability flag defaults to orderable")
	assert.Empty(t, resp.UICards[1].Allergens)

	// Student identity picks the student price.
	require.NotNil(t, resp.UICards[0].Price)
	assert.Equal(t, 6.5, *resp.UICards[0].Price)

	assert.Equal(t, 2, resp.SearchMetadata.TotalResults)
	assert.Equal(t, "thai food", resp.SearchMetadata.SearchQuery)
	assert.Equal(t, "student", resp.SearchMetadata.UserIdentity)
	assert.False(t, resp.SearchMetadata.ZeroMatches)
	require.NotNil(t, resp.SearchMetadata.BudgetLimit)
	assert.Equal(t, 8.0, *resp.SearchMetadata.BudgetLimit)

	assert.Contains(t, resp.TextBubble, "2 dishes")
	assert.Contains(t, resp.TextBubble, "Pad Thai")
}

func TestAssembleStaffPrice(t *testing.T) {
	resp := Assemble(Input{
		Query:    "thai food",
		Results:  testResults(),
		Identity: profile.IdentityStaff,
	})

	require.NotNil(t, resp.UICards[0].Price)
	assert.Equal(t, 8.0, *resp.UICards[0].Price)

	// item-2 has no staff price; the card omits it rather than guessing.
	assert.Nil(t, resp.UICards[1].Price)
	assert.Nil(t, resp.SearchMetadata.BudgetLimit)
}

func TestAssembleZeroMatches(t *testing.T) {
	f := filter.New(map[string]filter.Condition{
		filter.FieldPeanutsAllergy: {Op: filter.OpEq, Value: false},
	})

	resp := Assemble(Input{
		Query:    "peanut noodles",
		Results:  nil,
		Filter:   f,
		Identity: profile.IdentityStudent,
	})

	assert.Empty(t, resp.UICards)
	assert.True(t, resp.SearchMetadata.ZeroMatches)
	assert.Equal(t, 0, resp.SearchMetadata.TotalResults)
	assert.NotEmpty(t, resp.TextBubble, "zero matches still gets a conversational reply")
	assert.Contains(t, resp.TextBubble, "dietary needs")
}

func TestAssembleDegraded(t *testing.T) {
	resp := Assemble(Input{
		Query:    "lunch",
		Identity: profile.IdentityStudent,
		Degraded: true,
	})

	assert.True(t, resp.SearchMetadata.Degraded)
	assert.True(t, resp.SearchMetadata.ZeroMatches)
	assert.Contains(t, resp.TextBubble, "try again")
}

func TestAssembleFiltersAppliedWireForm(t *testing.T) {
	f := filter.New(map[string]filter.Condition{
		filter.FieldMilkAllergy: {Op: filter.OpEq, Value: false},
	})

	resp := Assemble(Input{
		Query:    "lunch",
		Filter:   f,
		Identity: profile.IdentityStudent,
	})

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(resp.SearchMetadata.FiltersApplied, &decoded))
	assert.Equal(t, map[string]any{"$eq": false}, decoded[filter.FieldMilkAllergy])

	// No filter still renders an object, never null.
	empty := Assemble(Input{Query: "x", Identity: profile.IdentityStudent})
	assert.JSONEq(t, `{}`, string(empty.SearchMetadata.FiltersApplied))
}

func TestAssemblePeriodPlanEchoed(t *testing.T) {
	resp := Assemble(Input{
		Query:      "lunch",
		Results:    testResults(),
		Identity:   profile.IdentityStudent,
		PeriodPlan: "lunch",
	})
	assert.Equal(t, "lunch", resp.SearchMetadata.PeriodPlan)
}

func TestAssembleSingleResultBubble(t *testing.T) {
	resp := Assemble(Input{
		Query:    "curry",
		Results:  testResults()[:1],
		Identity: profile.IdentityStudent,
	})
	assert.Contains(t, resp.TextBubble, "1 dish")
	assert.Contains(t, resp.TextBubble, "Pad Thai")
}
