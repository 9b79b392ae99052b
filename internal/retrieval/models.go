package retrieval

// Item is a menu item to be indexed: free-text content for embedding plus
// the metadata fields that filters match against (allergen flags, dietary
// preference tags, cuisine, per-identity prices, availability).
type Item struct {
	// ID uniquely identifies the item. Empty IDs are assigned a UUID.
	ID string

	// Content is the text embedded for semantic search, typically the
	// item name plus its description.
	Content string

	// Metadata holds the filterable fields. Values are strings, bools or
	// float64s.
	Metadata map[string]any
}

// ScoredItem is one search hit: the indexed item's metadata plus its
// relevance score. Higher scores are more relevant.
type ScoredItem struct {
	ID       string
	Score    float32
	Content  string
	Metadata map[string]any
}
