// Package profile defines the user dietary profile consumed by filter
// synthesis.
//
// Profiles arrive inline on chat requests as loosely-typed JSON (the
// upstream profile store is not consulted directly). Decode is tolerant:
// a malformed field never fails the request, it is reported as a FieldError
// and contributes no filter constraint. Allergy data is safety-critical and
// is never silently dropped: a present-but-malformed allergy field is still
// surfaced as a FieldError so the caller can log it.
package profile

import (
	"fmt"
	"strconv"
	"time"
)

// Identity determines which price field applies to a user.
type Identity string

const (
	IdentityStudent Identity = "student"
	IdentityStaff   Identity = "staff"
)

// Valid reports whether the identity is a known value.
func (i Identity) Valid() bool {
	return i == IdentityStudent || i == IdentityStaff
}

// Profile is a user's stored dietary, allergy and budget preferences.
// It is read-only input to request handling; feastd never mutates it.
type Profile struct {
	UserID string `json:"user_id"`

	Identity Identity `json:"user_identity"`

	MilkAllergy      bool `json:"milk_allergy"`
	EggsAllergy      bool `json:"eggs_allergy"`
	PeanutsAllergy   bool `json:"peanuts_allergy"`
	TreeNutsAllergy  bool `json:"tree_nuts_allergy"`
	ShellfishAllergy bool `json:"shellfish_allergy"`

	OtherAllergies     []string `json:"other_allergies,omitempty"`
	DietaryPreferences []string `json:"dietary_preferences,omitempty"`

	// Budget is the user's stated spending ceiling. Nil means no budget.
	Budget *float64 `json:"budget,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// HasAllergies reports whether any allergen constraint applies.
func (p Profile) HasAllergies() bool {
	return p.MilkAllergy || p.EggsAllergy || p.PeanutsAllergy ||
		p.TreeNutsAllergy || p.ShellfishAllergy || len(p.OtherAllergies) > 0
}

// FieldError reports a profile field that could not be interpreted.
// It is a structured error value for logging, not a request failure.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("profile field %q: %s", e.Field, e.Reason)
}

// Decode interprets a loosely-typed profile object.
//
// Every recoverable problem (wrong type, unparseable number, unknown
// identity) is reported in the returned FieldError slice while the
// corresponding Profile field stays at its zero value. An unknown identity
// defaults to student, matching the upstream profile store's default.
func Decode(raw map[string]any) (Profile, []FieldError) {
	var errs []FieldError
	p := Profile{Identity: IdentityStudent}

	if raw == nil {
		return p, nil
	}

	p.UserID, errs = decodeString(raw, "user_id", errs)

	if v, ok := raw["user_identity"]; ok {
		s, isStr := v.(string)
		switch {
		case !isStr:
			errs = append(errs, FieldError{"user_identity", fmt.Sprintf("expected string, got %T", v)})
		case !Identity(s).Valid():
			errs = append(errs, FieldError{"user_identity", fmt.Sprintf("unknown identity %q, defaulting to student", s)})
		default:
			p.Identity = Identity(s)
		}
	}

	p.MilkAllergy, errs = decodeBool(raw, "milk_allergy", errs)
	p.EggsAllergy, errs = decodeBool(raw, "eggs_allergy", errs)
	p.PeanutsAllergy, errs = decodeBool(raw, "peanuts_allergy", errs)
	p.TreeNutsAllergy, errs = decodeBool(raw, "tree_nuts_allergy", errs)
	p.ShellfishAllergy, errs = decodeBool(raw, "shellfish_allergy", errs)

	p.OtherAllergies, errs = decodeStringList(raw, "other_allergies", errs)
	p.DietaryPreferences, errs = decodeStringList(raw, "dietary_preferences", errs)

	if v, ok := raw["budget"]; ok && v != nil {
		switch b := v.(type) {
		case float64:
			p.Budget = &b
		case string:
			// The upstream store serializes numbers as strings.
			parsed, err := strconv.ParseFloat(b, 64)
			if err != nil {
				errs = append(errs, FieldError{"budget", fmt.Sprintf("unparseable number %q", b)})
			} else {
				p.Budget = &parsed
			}
		default:
			errs = append(errs, FieldError{"budget", fmt.Sprintf("expected number, got %T", v)})
		}
	}

	return p, errs
}

func decodeString(raw map[string]any, key string, errs []FieldError) (string, []FieldError) {
	v, ok := raw[key]
	if !ok || v == nil {
		return "", errs
	}
	s, isStr := v.(string)
	if !isStr {
		return "", append(errs, FieldError{key, fmt.Sprintf("expected string, got %T", v)})
	}
	return s, errs
}

func decodeBool(raw map[string]any, key string, errs []FieldError) (bool, []FieldError) {
	v, ok := raw[key]
	if !ok || v == nil {
		return false, errs
	}
	b, isBool := v.(bool)
	if !isBool {
		return false, append(errs, FieldError{key, fmt.Sprintf("expected bool, got %T", v)})
	}
	return b, errs
}

// decodeStringList accepts a JSON array of strings or a single string (the
// upstream store stores single-element preference lists as a bare string).
func decodeStringList(raw map[string]any, key string, errs []FieldError) ([]string, []FieldError) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, errs
	}
	switch list := v.(type) {
	case string:
		if list == "" {
			return nil, errs
		}
		return []string{list}, errs
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, isStr := item.(string)
			if !isStr {
				errs = append(errs, FieldError{key, fmt.Sprintf("element %d: expected string, got %T", i, item)})
				continue
			}
			out = append(out, s)
		}
		if len(out) == 0 {
			return nil, errs
		}
		return out, errs
	default:
		return nil, append(errs, FieldError{key, fmt.Sprintf("expected string list, got %T", v)})
	}
}
