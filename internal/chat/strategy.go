package chat

import (
	"strings"

	"github.com/unifeast/feastd/internal/filter"
)

// strategy rewrites the raw user message into the query text sent to the
// vector index. Strategies are consulted in table order; the first one
// whose Matches returns true wins.
type strategy struct {
	name    string
	matches func(message string, criteria filter.Criteria) bool
	rewrite func(message string, criteria filter.Criteria) string
}

// buildStrategyTable constructs the ordered strategy table once at startup.
// Order matters: more specific rewrites sit above the catch-all.
func buildStrategyTable() []strategy {
	return []strategy{
		{
			// A meal-period plan biases the query toward that period's
			// dishes without constraining the wire filter.
			name: "period_plan",
			matches: func(_ string, c filter.Criteria) bool {
				return c.PeriodPlan != ""
			},
			rewrite: func(message string, c filter.Criteria) string {
				return strings.TrimSpace(message + " for " + c.PeriodPlan)
			},
		},
		{
			// Explicit cuisine requests enrich the semantic query even
			// though cuisine is also a hard filter condition.
			name: "cuisine",
			matches: func(_ string, c filter.Criteria) bool {
				return len(c.CuisineTypes) > 0
			},
			rewrite: func(message string, c filter.Criteria) string {
				return strings.TrimSpace(message + " " + strings.Join(c.CuisineTypes, " "))
			},
		},
		{
			// Bare greetings and empty asks get a generic recommendation
			// query instead of embedding a meaningless message.
			name: "greeting",
			matches: func(message string, _ filter.Criteria) bool {
				normalized := strings.ToLower(strings.TrimSpace(message))
				switch normalized {
				case "", "hi", "hello", "hey", "hi!", "hello!", "hey!":
					return true
				}
				return false
			},
			rewrite: func(_ string, _ filter.Criteria) string {
				return "popular recommended dishes"
			},
		},
		{
			name: "verbatim",
			matches: func(_ string, _ filter.Criteria) bool {
				return true
			},
			rewrite: func(message string, _ filter.Criteria) string {
				return strings.TrimSpace(message)
			},
		},
	}
}

// resolveQuery applies the first matching strategy and reports which one.
func resolveQuery(table []strategy, message string, criteria filter.Criteria) (query, strategyName string) {
	for _, s := range table {
		if s.matches(message, criteria) {
			return s.rewrite(message, criteria), s.name
		}
	}
	// The table ends in a catch-all, so this is unreachable.
	return strings.TrimSpace(message), "verbatim"
}
