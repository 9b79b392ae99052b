// Package filter implements constraint-aware search filter synthesis.
//
// A Filter is the wire-ready constraint object handed to semantic
// retrieval: a flat mapping from metadata field name to a single comparison
// condition. The wire format follows the index's operator vocabulary:
//
//	{"milk_allergy": {"$eq": false},
//	 "other_allergies": {"$nin": ["banana"]},
//	 "dietary_preferences": {"$in": ["vegetarian"]},
//	 "student_price": {"$lte": 8.0}}
//
// Filters are built fresh per query by the Builder and are immutable once
// returned.
package filter

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Op identifies a comparison operator in the wire filter.
type Op string

const (
	OpEq  Op = "$eq"  // field equals value
	OpIn  Op = "$in"  // field value is in list
	OpNin Op = "$nin" // field value is not in list
	OpLte Op = "$lte" // numeric field is at most value
)

// Metadata field names on indexed menu items.
const (
	FieldMilkAllergy        = "milk_allergy"
	FieldEggsAllergy        = "eggs_allergy"
	FieldPeanutsAllergy     = "peanuts_allergy"
	FieldTreeNutsAllergy    = "tree_nuts_allergy"
	FieldShellfishAllergy   = "shellfish_allergy"
	FieldOtherAllergies     = "other_allergies"
	FieldDietaryPreferences = "dietary_preferences"
	FieldCuisineType        = "cuisine_type"
	FieldStudentPrice       = "student_price"
	FieldStaffPrice         = "staff_price"
)

// allergenFields are the per-allergen boolean fields. Constraints on these
// fields (and FieldOtherAllergies) are safety-critical: Merge carries them
// unconditionally.
var allergenFields = []string{
	FieldMilkAllergy,
	FieldEggsAllergy,
	FieldPeanutsAllergy,
	FieldTreeNutsAllergy,
	FieldShellfishAllergy,
}

// Condition is one field constraint: an operator applied to a value.
type Condition struct {
	Op    Op
	Value any
}

// MarshalJSON renders the condition as a single-key operator object,
// e.g. {"$lte": 8.0}.
func (c Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{string(c.Op): c.Value})
}

// UnmarshalJSON parses a single-key operator object.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("condition must have exactly one operator, got %d", len(raw))
	}
	for op, value := range raw {
		c.Op = Op(op)
		c.Value = value
	}
	return nil
}

// Filter is an immutable set of field conditions.
// The zero value is not usable; use New or the Builder.
type Filter struct {
	conditions map[string]Condition
}

// New creates a Filter from a condition map. The map is copied.
func New(conditions map[string]Condition) *Filter {
	copied := make(map[string]Condition, len(conditions))
	for k, v := range conditions {
		copied[k] = v
	}
	return &Filter{conditions: copied}
}

// Get returns the condition for a field, if present.
func (f *Filter) Get(field string) (Condition, bool) {
	c, ok := f.conditions[field]
	return c, ok
}

// Len returns the number of constrained fields.
func (f *Filter) Len() int {
	return len(f.conditions)
}

// Fields returns the constrained field names in sorted order.
func (f *Filter) Fields() []string {
	fields := make([]string, 0, len(f.conditions))
	for k := range f.conditions {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Conditions returns a copy of the underlying condition map.
func (f *Filter) Conditions() map[string]Condition {
	out := make(map[string]Condition, len(f.conditions))
	for k, v := range f.conditions {
		out[k] = v
	}
	return out
}

// MarshalJSON renders the wire format: {"field": {"$op": value}, ...}.
func (f *Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.conditions)
}

// String renders the wire format for logging.
func (f *Filter) String() string {
	b, err := f.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("filter(%d fields)", len(f.conditions))
	}
	return string(b)
}
