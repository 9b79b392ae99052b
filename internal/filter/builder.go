package filter

import (
	"context"

	"go.uber.org/zap"

	"github.com/unifeast/feastd/internal/logging"
	"github.com/unifeast/feastd/internal/profile"
)

// Builder synthesizes search filters from a user profile and per-query
// criteria. Builders are stateless and safe for concurrent use.
type Builder struct {
	logger *logging.Logger
}

// NewBuilder creates a Builder. A nil logger is replaced with a no-op.
func NewBuilder(logger *logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Builder{logger: logger.Named("filter")}
}

// BuildDefault produces the filter expressing only the user's safety and
// preference defaults:
//
//   - every true allergen flag emits an equals-false constraint on the
//     corresponding item flag;
//   - non-empty other-allergens emit a not-in-list constraint;
//   - non-empty dietary preferences emit an in-list constraint;
//   - (identity, budget) translates into a price ceiling on the
//     identity-specific price field, never both.
//
// Missing or zero-valued profile fields contribute no constraint.
// BuildDefault never fails.
func (b *Builder) BuildDefault(p profile.Profile) *Filter {
	conditions := make(map[string]Condition)

	if p.MilkAllergy {
		conditions[FieldMilkAllergy] = Condition{OpEq, false}
	}
	if p.EggsAllergy {
		conditions[FieldEggsAllergy] = Condition{OpEq, false}
	}
	if p.PeanutsAllergy {
		conditions[FieldPeanutsAllergy] = Condition{OpEq, false}
	}
	if p.TreeNutsAllergy {
		conditions[FieldTreeNutsAllergy] = Condition{OpEq, false}
	}
	if p.ShellfishAllergy {
		conditions[FieldShellfishAllergy] = Condition{OpEq, false}
	}

	if len(p.OtherAllergies) > 0 {
		conditions[FieldOtherAllergies] = Condition{OpNin, append([]string(nil), p.OtherAllergies...)}
	}

	if len(p.DietaryPreferences) > 0 {
		conditions[FieldDietaryPreferences] = Condition{OpIn, append([]string(nil), p.DietaryPreferences...)}
	}

	if p.Budget != nil {
		conditions[priceField(p.Identity)] = Condition{OpLte, *p.Budget}
	}

	return &Filter{conditions: conditions}
}

// Merge combines the user's default filter with per-query criteria into the
// final search filter.
//
// Precedence rules:
//
//   - Allergen and other-allergen constraints from the default filter are
//     carried unconditionally. This is a hard safety invariant, not a
//     preference.
//   - The profile's dietary-preference and price constraints are kept
//     unless overridePreferences is true AND the criteria supplies a
//     replacement for that same field; then the criteria's value wins
//     outright (no intersection).
//   - Criteria-only fields (cuisine list, and any field the profile left
//     unconstrained) are added verbatim. An explicit max price uses the
//     same identity-aware price field selection as the profile budget.
//   - When both the profile and the criteria specify a price ceiling and
//     overriding is not requested, the profile's ceiling is authoritative:
//     criteria cannot silently raise a user's stated budget.
//
// The inputs are not mutated; the result is a fresh Filter.
// Merge never fails.
func (b *Builder) Merge(def *Filter, criteria Criteria, identity profile.Identity, overridePreferences bool) *Filter {
	conditions := make(map[string]Condition)

	if def != nil {
		// Safety constraints first. Always.
		for _, field := range allergenFields {
			if c, ok := def.Get(field); ok {
				conditions[field] = c
			}
		}
		if c, ok := def.Get(FieldOtherAllergies); ok {
			conditions[FieldOtherAllergies] = c
		}

		if c, ok := def.Get(FieldDietaryPreferences); ok {
			if !(overridePreferences && len(criteria.DietaryPreferences) > 0) {
				conditions[FieldDietaryPreferences] = c
			}
		}

		if c, ok := def.Get(priceField(identity)); ok {
			if !(overridePreferences && criteria.MaxPrice != nil) {
				conditions[priceField(identity)] = c
			}
		}
	}

	if len(criteria.CuisineTypes) > 0 {
		conditions[FieldCuisineType] = Condition{OpIn, append([]string(nil), criteria.CuisineTypes...)}
	}

	if len(criteria.DietaryPreferences) > 0 {
		if _, taken := conditions[FieldDietaryPreferences]; !taken {
			conditions[FieldDietaryPreferences] = Condition{OpIn, append([]string(nil), criteria.DietaryPreferences...)}
		}
	}

	if criteria.MaxPrice != nil {
		// Profile's ceiling wins unless override was requested.
		if _, taken := conditions[priceField(identity)]; !taken {
			conditions[priceField(identity)] = Condition{OpLte, *criteria.MaxPrice}
		}
	}

	merged := &Filter{conditions: conditions}
	b.assertAllergensCarried(def, merged)
	return merged
}

// assertAllergensCarried fails fast when a merge would drop a known allergy
// constraint. Reaching this is a programming error in Merge itself, so it
// panics in development builds and logs at error level in production.
func (b *Builder) assertAllergensCarried(def, merged *Filter) {
	if def == nil {
		return
	}
	check := append(append([]string(nil), allergenFields...), FieldOtherAllergies)
	for _, field := range check {
		if _, ok := def.Get(field); !ok {
			continue
		}
		if _, ok := merged.Get(field); !ok {
			b.logger.DPanic(context.Background(), "merged filter dropped allergen constraint",
				zap.String("field", field),
				zap.String("default_filter", def.String()),
				zap.String("merged_filter", merged.String()),
			)
		}
	}
}

// priceField returns the identity-specific price field. Unknown identities
// fall back to the student field, matching the profile store's default.
func priceField(identity profile.Identity) string {
	if identity == profile.IdentityStaff {
		return FieldStaffPrice
	}
	return FieldStudentPrice
}
