package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unifeast/feastd/internal/logging"
	"github.com/unifeast/feastd/internal/profile"
)

func floatPtr(v float64) *float64 { return &v }

func TestBuildDefault(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	tests := []struct {
		name    string
		profile profile.Profile
		want    map[string]Condition
	}{
		{
			name:    "empty profile yields empty filter",
			profile: profile.Profile{Identity: profile.IdentityStudent},
			want:    map[string]Condition{},
		},
		{
			name: "allergen flags become equals-false constraints",
			profile: profile.Profile{
				Identity:       profile.IdentityStudent,
				MilkAllergy:    true,
				PeanutsAllergy: true,
			},
			want: map[string]Condition{
				FieldMilkAllergy:    {OpEq, false},
				FieldPeanutsAllergy: {OpEq, false},
			},
		},
		{
			name: "other allergies become not-in constraint",
			profile: profile.Profile{
				Identity:       profile.IdentityStudent,
				OtherAllergies: []string{"sesame", "soy"},
			},
			want: map[string]Condition{
				FieldOtherAllergies: {OpNin, []string{"sesame", "soy"}},
			},
		},
		{
			name: "dietary preferences become in constraint",
			profile: profile.Profile{
				Identity:           profile.IdentityStudent,
				DietaryPreferences: []string{"vegetarian"},
			},
			want: map[string]Condition{
				FieldDietaryPreferences: {OpIn, []string{"vegetarian"}},
			},
		},
		{
			name: "student budget constrains student price only",
			profile: profile.Profile{
				Identity: profile.IdentityStudent,
				Budget:   floatPtr(7.5),
			},
			want: map[string]Condition{
				FieldStudentPrice: {OpLte, 7.5},
			},
		},
		{
			name: "staff budget constrains staff price only",
			profile: profile.Profile{
				Identity: profile.IdentityStaff,
				Budget:   floatPtr(12.0),
			},
			want: map[string]Condition{
				FieldStaffPrice: {OpLte, 12.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := b.BuildDefault(tt.profile)
			assert.Equal(t, tt.want, got.Conditions())
		})
	}
}

func TestBuildDefault_NeverBothPriceFields(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	for _, identity := range []profile.Identity{profile.IdentityStudent, profile.IdentityStaff} {
		f := b.BuildDefault(profile.Profile{Identity: identity, Budget: floatPtr(10)})

		_, hasStudent := f.Get(FieldStudentPrice)
		_, hasStaff := f.Get(FieldStaffPrice)
		assert.False(t, hasStudent && hasStaff, "identity %s produced both price fields", identity)
		assert.True(t, hasStudent || hasStaff, "identity %s produced no price field", identity)
	}
}

func TestMerge_AllergensAlwaysCarried(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	p := profile.Profile{
		Identity:         profile.IdentityStudent,
		MilkAllergy:      true,
		TreeNutsAllergy:  true,
		ShellfishAllergy: true,
		OtherAllergies:   []string{"sesame"},
	}
	criteria := Criteria{
		CuisineTypes:       []string{"thai"},
		MaxPrice:           floatPtr(5),
		DietaryPreferences: []string{"vegan"},
	}

	for _, override := range []bool{false, true} {
		def := b.BuildDefault(p)
		merged := b.Merge(def, criteria, p.Identity, override)

		for _, field := range []string{FieldMilkAllergy, FieldTreeNutsAllergy, FieldShellfishAllergy} {
			cond, ok := merged.Get(field)
			require.True(t, ok, "override=%v dropped %s", override, field)
			assert.Equal(t, Condition{OpEq, false}, cond)
		}
		cond, ok := merged.Get(FieldOtherAllergies)
		require.True(t, ok, "override=%v dropped other allergies", override)
		assert.Equal(t, Condition{OpNin, []string{"sesame"}}, cond)
	}
}

func TestMerge_ProfileBudgetWins(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	p := profile.Profile{
		Identity:    profile.IdentityStudent,
		MilkAllergy: true,
		Budget:      floatPtr(8.0),
	}
	criteria := Criteria{MaxPrice: floatPtr(5.0)}

	def := b.BuildDefault(p)

	// Without override the profile's stated budget is authoritative.
	merged := b.Merge(def, criteria, p.Identity, false)
	cond, ok := merged.Get(FieldStudentPrice)
	require.True(t, ok)
	assert.Equal(t, Condition{OpLte, 8.0}, cond)

	milk, ok := merged.Get(FieldMilkAllergy)
	require.True(t, ok)
	assert.Equal(t, Condition{OpEq, false}, milk)

	// With override the criteria ceiling replaces it outright.
	merged = b.Merge(def, criteria, p.Identity, true)
	cond, ok = merged.Get(FieldStudentPrice)
	require.True(t, ok)
	assert.Equal(t, Condition{OpLte, 5.0}, cond)
}

func TestMerge_OverrideReplacesDietaryPreferences(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	p := profile.Profile{
		Identity:           profile.IdentityStudent,
		DietaryPreferences: []string{"vegetarian"},
	}
	criteria := Criteria{DietaryPreferences: []string{"vegan"}}

	def := b.BuildDefault(p)

	merged := b.Merge(def, criteria, p.Identity, false)
	cond, ok := merged.Get(FieldDietaryPreferences)
	require.True(t, ok)
	assert.Equal(t, Condition{OpIn, []string{"vegetarian"}}, cond, "criteria must not replace preferences without override")

	merged = b.Merge(def, criteria, p.Identity, true)
	cond, ok = merged.Get(FieldDietaryPreferences)
	require.True(t, ok)
	assert.Equal(t, Condition{OpIn, []string{"vegan"}}, cond, "override replaces, not intersects")
}

func TestMerge_CriteriaOnlyFields(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	p := profile.Profile{Identity: profile.IdentityStaff}
	criteria := Criteria{
		CuisineTypes: []string{"korean", "japanese"},
		MaxPrice:     floatPtr(15),
	}

	merged := b.Merge(b.BuildDefault(p), criteria, p.Identity, false)

	cuisine, ok := merged.Get(FieldCuisineType)
	require.True(t, ok)
	assert.Equal(t, Condition{OpIn, []string{"korean", "japanese"}}, cuisine)

	// No profile budget, so the criteria ceiling applies on the
	// identity's price field.
	price, ok := merged.Get(FieldStaffPrice)
	require.True(t, ok)
	assert.Equal(t, Condition{OpLte, 15.0}, price)

	_, hasStudent := merged.Get(FieldStudentPrice)
	assert.False(t, hasStudent)
}

func TestMerge_NilDefaultFilter(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	merged := b.Merge(nil, Criteria{CuisineTypes: []string{"indian"}}, profile.IdentityStudent, false)

	require.Equal(t, 1, merged.Len())
	cond, ok := merged.Get(FieldCuisineType)
	require.True(t, ok)
	assert.Equal(t, Condition{OpIn, []string{"indian"}}, cond)
}

func TestMerge_InputsNotMutated(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	p := profile.Profile{
		Identity:    profile.IdentityStudent,
		MilkAllergy: true,
		Budget:      floatPtr(8),
	}
	def := b.BuildDefault(p)
	before := def.Conditions()

	_ = b.Merge(def, Criteria{MaxPrice: floatPtr(3), CuisineTypes: []string{"thai"}}, p.Identity, true)

	assert.Equal(t, before, def.Conditions(), "default filter must not change across merges")
}

func TestMerge_PeriodPlanNeverEntersFilter(t *testing.T) {
	b := NewBuilder(logging.NewNop())

	p := profile.Profile{Identity: profile.IdentityStudent, EggsAllergy: true}
	merged := b.Merge(b.BuildDefault(p), Criteria{PeriodPlan: "lunch"}, p.Identity, false)

	assert.Equal(t, []string{FieldEggsAllergy}, merged.Fields())
}

func TestAssertAllergensCarried_PanicsInDevelopment(t *testing.T) {
	logger, err := logging.New(logging.Config{Level: "error", Format: "console", Development: true})
	require.NoError(t, err)
	b := NewBuilder(logger)

	def := New(map[string]Condition{
		FieldMilkAllergy: {OpEq, false},
	})
	broken := New(map[string]Condition{})

	require.Panics(t, func() {
		b.assertAllergensCarried(def, broken)
	})
}
