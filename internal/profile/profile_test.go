package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		raw       map[string]any
		want      Profile
		wantErrs  int
		errFields []string
	}{
		{
			name: "nil input is an anonymous student",
			raw:  nil,
			want: Profile{Identity: IdentityStudent},
		},
		{
			name: "complete profile",
			raw: map[string]any{
				"user_id":             "u-123",
				"user_identity":       "staff",
				"milk_allergy":        true,
				"peanuts_allergy":     true,
				"other_allergies":     []any{"sesame"},
				"dietary_preferences": []any{"halal", "vegetarian"},
				"budget":              12.5,
			},
			want: Profile{
				UserID:             "u-123",
				Identity:           IdentityStaff,
				MilkAllergy:        true,
				PeanutsAllergy:     true,
				OtherAllergies:     []string{"sesame"},
				DietaryPreferences: []string{"halal", "vegetarian"},
				Budget:             floatPtr(12.5),
			},
		},
		{
			name: "bare string preference becomes single-element list",
			raw: map[string]any{
				"dietary_preferences": "vegan",
			},
			want: Profile{
				Identity:           IdentityStudent,
				DietaryPreferences: []string{"vegan"},
			},
		},
		{
			name: "budget serialized as string",
			raw: map[string]any{
				"budget": "8.50",
			},
			want: Profile{
				Identity: IdentityStudent,
				Budget:   floatPtr(8.5),
			},
		},
		{
			name: "unknown identity defaults to student with a field error",
			raw: map[string]any{
				"user_identity": "visitor",
			},
			want:      Profile{Identity: IdentityStudent},
			wantErrs:  1,
			errFields: []string{"user_identity"},
		},
		{
			name: "malformed allergy flag is reported, never guessed",
			raw: map[string]any{
				"milk_allergy": "yes",
				"eggs_allergy": true,
			},
			want: Profile{
				Identity:    IdentityStudent,
				EggsAllergy: true,
			},
			wantErrs:  1,
			errFields: []string{"milk_allergy"},
		},
		{
			name: "unparseable budget reported",
			raw: map[string]any{
				"budget": "cheap",
			},
			want:      Profile{Identity: IdentityStudent},
			wantErrs:  1,
			errFields: []string{"budget"},
		},
		{
			name: "non-string list elements skipped with error",
			raw: map[string]any{
				"other_allergies": []any{"soy", 42},
			},
			want: Profile{
				Identity:       IdentityStudent,
				OtherAllergies: []string{"soy"},
			},
			wantErrs:  1,
			errFields: []string{"other_allergies"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := Decode(tt.raw)
			require.Len(t, errs, tt.wantErrs)
			for i, field := range tt.errFields {
				assert.Equal(t, field, errs[i].Field)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasAllergies(t *testing.T) {
	assert.False(t, Profile{}.HasAllergies())
	assert.True(t, Profile{ShellfishAllergy: true}.HasAllergies())
	assert.True(t, Profile{OtherAllergies: []string{"sesame"}}.HasAllergies())
}

func TestIdentityValid(t *testing.T) {
	assert.True(t, IdentityStudent.Valid())
	assert.True(t, IdentityStaff.Valid())
	assert.False(t, Identity("visitor").Valid())
	assert.False(t, Identity("").Valid())
}

func floatPtr(v float64) *float64 { return &v }
