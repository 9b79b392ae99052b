package filter

// Criteria are per-query, ad-hoc search constraints supplied alongside a
// chat message. All fields are optional; an absent field inherits the
// corresponding profile default during Merge.
type Criteria struct {
	// CuisineTypes restricts results to the given cuisines.
	CuisineTypes []string `json:"cuisine_types,omitempty"`

	// MaxPrice is an explicit price ceiling for this query.
	MaxPrice *float64 `json:"max_price,omitempty"`

	// DietaryPreferences replaces or supplements the profile's tags.
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`

	// PeriodPlan is a free-text meal-planning hint. It never becomes a
	// metadata constraint; it is surfaced in search metadata only.
	PeriodPlan string `json:"period_plan,omitempty"`
}

// Empty reports whether no criteria were supplied.
func (c Criteria) Empty() bool {
	return len(c.CuisineTypes) == 0 && c.MaxPrice == nil &&
		len(c.DietaryPreferences) == 0 && c.PeriodPlan == ""
}
