// Package assemble shapes search results into the response envelope the
// conversational UI renders: a text bubble, one card per result, and the
// search metadata block.
package assemble

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/unifeast/feastd/internal/filter"
	"github.com/unifeast/feastd/internal/profile"
	"github.com/unifeast/feastd/internal/retrieval"
)

// Card is one rendered menu item.
type Card struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Restaurant  string   `json:"restaurant,omitempty"`
	Category    string   `json:"category,omitempty"`
	Cuisine     string   `json:"cuisine_type,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Score       float32  `json:"score"`

	// Allergens lists the allergens the item contains.
	Allergens []string `json:"allergens,omitempty"`

	// Tags are the item's dietary-preference tags.
	Tags []string `json:"tags,omitempty"`

	Available bool `json:"available"`
}

// Metadata describes how a result set was produced.
type Metadata struct {
	TotalResults   int             `json:"total_results"`
	SearchQuery    string          `json:"search_query"`
	FiltersApplied json.RawMessage `json:"filters_applied"`
	UserIdentity   string          `json:"user_identity"`
	BudgetLimit    *float64        `json:"budget_limit,omitempty"`
	PeriodPlan     string          `json:"period_plan,omitempty"`
	ZeroMatches    bool            `json:"zero_matches"`
	Degraded       bool            `json:"retrieval_unavailable,omitempty"`
}

// Response is the complete chat response envelope.
type Response struct {
	TextBubble     string   `json:"text_bubble"`
	UICards        []Card   `json:"ui_cards"`
	SearchMetadata Metadata `json:"search_metadata"`
}

// Input carries everything Assemble needs about one completed search.
type Input struct {
	Query    string
	Results  []retrieval.ScoredItem
	Filter   *filter.Filter
	Identity profile.Identity

	// PeriodPlan is echoed into metadata when the request carried one.
	PeriodPlan string

	// Degraded marks a response produced without retrieval, after the
	// index was unavailable.
	Degraded bool
}

// Assemble builds the response envelope. It is pure shaping: no I/O, no
// failure modes. Result order is preserved, one card per result.
func Assemble(in Input) Response {
	cards := make([]Card, len(in.Results))
	for i, item := range in.Results {
		cards[i] = cardFromItem(item, in.Identity)
	}

	meta := Metadata{
		TotalResults:   len(in.Results),
		SearchQuery:    in.Query,
		FiltersApplied: filterJSON(in.Filter),
		UserIdentity:   string(in.Identity),
		BudgetLimit:    budgetLimit(in.Filter, in.Identity),
		PeriodPlan:     in.PeriodPlan,
		ZeroMatches:    len(in.Results) == 0,
		Degraded:       in.Degraded,
	}

	return Response{
		TextBubble:     textBubble(in),
		UICards:        cards,
		SearchMetadata: meta,
	}
}

func cardFromItem(item retrieval.ScoredItem, identity profile.Identity) Card {
	card := Card{
		ID:    item.ID,
		Score: item.Score,
	}

	if name, ok := item.Metadata["name"].(string); ok {
		card.Name = name
	} else {
		card.Name = item.Content
	}
	if desc, ok := item.Metadata["description"].(string); ok {
		card.Description = desc
	}
	if restaurant, ok := item.Metadata["restaurant"].(string); ok {
		card.Restaurant = restaurant
	}
	if category, ok := item.Metadata["category"].(string); ok {
		card.Category = category
	}
	if cuisine, ok := item.Metadata[filter.FieldCuisineType].(string); ok {
		card.Cuisine = cuisine
	}

	// An item with no availability flag is assumed orderable.
	card.Available = true
	if available, ok := item.Metadata["available"].(bool); ok {
		card.Available = available
	}

	card.Allergens = allergenList(item.Metadata)

	priceKey := filter.FieldStudentPrice
	if identity == profile.IdentityStaff {
		priceKey = filter.FieldStaffPrice
	}
	if price, ok := toPrice(item.Metadata[priceKey]); ok {
		card.Price = &price
	}

	if tags, ok := item.Metadata[filter.FieldDietaryPreferences].([]string); ok {
		card.Tags = tags
	}

	return card
}

// allergenFlagNames maps item metadata flags to display names.
var allergenFlagNames = []struct {
	field string
	name  string
}{
	{filter.FieldMilkAllergy, "milk"},
	{filter.FieldEggsAllergy, "eggs"},
	{filter.FieldPeanutsAllergy, "peanuts"},
	{filter.FieldTreeNutsAllergy, "tree nuts"},
	{filter.FieldShellfishAllergy, "shellfish"},
}

// allergenList collects the allergens an item's metadata flags as present.
func allergenList(metadata map[string]any) []string {
	var allergens []string
	for _, flag := range allergenFlagNames {
		if v, ok := metadata[flag.field].(bool); ok && v {
			allergens = append(allergens, flag.name)
		}
	}
	if others, ok := metadata[filter.FieldOtherAllergies].([]string); ok {
		allergens = append(allergens, others...)
	}
	return allergens
}

func toPrice(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int64:
		return float64(val), true
	case int:
		return float64(val), true
	default:
		return 0, false
	}
}

// filterJSON renders the applied filter in its wire form. A nil or empty
// filter renders as an empty object so the field is always present.
func filterJSON(f *filter.Filter) json.RawMessage {
	if f == nil || f.Len() == 0 {
		return json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(f)
	if err != nil {
		// Filter values are bools, strings, string lists and numbers;
		// marshaling them cannot fail.
		return json.RawMessage(`{}`)
	}
	return raw
}

// budgetLimit extracts the price ceiling actually applied, if any.
func budgetLimit(f *filter.Filter, identity profile.Identity) *float64 {
	if f == nil {
		return nil
	}
	priceKey := filter.FieldStudentPrice
	if identity == profile.IdentityStaff {
		priceKey = filter.FieldStaffPrice
	}
	cond, ok := f.Get(priceKey)
	if !ok || cond.Op != filter.OpLte {
		return nil
	}
	switch v := cond.Value.(type) {
	case float64:
		return &v
	}
	return nil
}

// textBubble writes the conversational summary line. Every response gets
// one: a hit list, a constraint-aware empty message, or a degraded notice.
func textBubble(in Input) string {
	if in.Degraded {
		return "I couldn't reach the menu right now. Please try again in a moment."
	}
	if len(in.Results) == 0 {
		if in.Filter != nil && in.Filter.Len() > 0 {
			return "I couldn't find any dishes matching your dietary needs and filters. Try relaxing a preference, or ask me for something different."
		}
		return "I couldn't find any dishes for that. Try asking for a cuisine or a dish type."
	}

	names := make([]string, 0, 3)
	for _, item := range in.Results {
		name, ok := item.Metadata["name"].(string)
		if !ok {
			name = item.Content
		}
		names = append(names, name)
		if len(names) == 3 {
			break
		}
	}

	if len(in.Results) == 1 {
		return fmt.Sprintf("I found 1 dish for you: %s.", names[0])
	}
	return fmt.Sprintf("I found %d dishes for you. Top picks: %s.", len(in.Results), strings.Join(names, ", "))
}
