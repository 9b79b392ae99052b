package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/unifeast/feastd/internal/filter"
)

var chromemTracer = otel.Tracer("feastd.retrieval.chromem")

// ChromemConfig holds configuration for the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Created if missing.
	Path string

	// Collection is the menu-item collection name.
	Collection string

	// Compress enables gzip compression of persisted documents.
	Compress bool
}

// Validate validates the configuration.
func (c ChromemConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("%w: path required", ErrInvalidConfig)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is a Searcher backed by the embedded chromem-go database.
// It needs no external server, which makes it the zero-infrastructure
// default for local development.
//
// chromem's native where-clause only supports string equality, so only
// $eq-on-string conditions are pushed down. Everything else (allergen
// booleans, list membership, price ceilings) is evaluated here against
// an oversampled result set.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
	config     ChromemConfig
}

// NewChromemStore creates a persistent ChromemStore at the configured path.
func NewChromemStore(cfg ChromemConfig, embedder Embedder) (*ChromemStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(cfg.Path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("%w: opening chromem db: %v", ErrConnectionFailed, err)
	}

	embedFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.EmbedQuery(ctx, text)
	}
	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		embedder:   embedder,
		config:     cfg,
	}, nil
}

// Close is a no-op: chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

// Index upserts menu items into the collection.
func (s *ChromemStore) Index(ctx context.Context, items []Item) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Index")
	defer span.End()

	span.SetAttributes(
		attribute.Int("item_count", len(items)),
		attribute.String("collection", s.config.Collection),
	)

	if len(items) == 0 {
		return nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Content
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	docs := make([]chromem.Document, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = fmt.Sprintf("item_%d", i)
		}
		docs[i] = chromem.Document{
			ID:        id,
			Content:   item.Content,
			Metadata:  metadataToStrings(item.Metadata),
			Embedding: embeddings[i],
		}
	}

	// Concurrency of 1: embeddings are already computed.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs filtered similarity search over the menu collection.
func (s *ChromemStore) Search(ctx context.Context, query string, f *filter.Filter, limit int) ([]ScoredItem, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("limit", limit),
	)

	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	where, residual := splitConditions(f)

	docCount := s.collection.Count()
	if docCount == 0 {
		return []ScoredItem{}, nil
	}

	// Oversample so post-filtering can still fill the limit.
	k := limit
	if len(residual) > 0 {
		k = limit * 4
	}
	if k > docCount {
		k = docCount
	}

	results, err := s.collection.Query(ctx, query, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	items := make([]ScoredItem, 0, limit)
	for _, res := range results {
		if !matchesResidual(res.Metadata, residual) {
			continue
		}
		items = append(items, ScoredItem{
			ID:       res.ID,
			Score:    res.Similarity,
			Content:  res.Content,
			Metadata: metadataFromStrings(res.Metadata),
		})
		if len(items) == limit {
			break
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(items)))
	span.SetStatus(codes.Ok, "success")
	return items, nil
}

// splitConditions partitions a filter into chromem's native where clause
// (string equality) and conditions that must be evaluated client-side.
func splitConditions(f *filter.Filter) (where map[string]string, residual map[string]filter.Condition) {
	if f == nil || f.Len() == 0 {
		return nil, nil
	}
	residual = make(map[string]filter.Condition)
	for _, field := range f.Fields() {
		cond, _ := f.Get(field)
		if cond.Op == filter.OpEq {
			if s, ok := cond.Value.(string); ok {
				if where == nil {
					where = make(map[string]string)
				}
				where[field] = s
				continue
			}
		}
		residual[field] = cond
	}
	if len(residual) == 0 {
		residual = nil
	}
	return where, residual
}

// matchesResidual evaluates the non-pushdown conditions against a stored
// item's metadata. A condition on a missing field fails closed: an item
// with no allergen flag is never served to an allergic user.
func matchesResidual(metadata map[string]string, residual map[string]filter.Condition) bool {
	for field, cond := range residual {
		raw, present := metadata[field]
		if !present {
			return false
		}
		switch cond.Op {
		case filter.OpEq:
			want, ok := cond.Value.(bool)
			if !ok {
				return false
			}
			got, err := strconv.ParseBool(raw)
			if err != nil || got != want {
				return false
			}

		case filter.OpIn:
			values, ok := toStringSlice(cond.Value)
			if !ok || !containsAny(raw, values) {
				return false
			}

		case filter.OpNin:
			values, ok := toStringSlice(cond.Value)
			if !ok || containsAny(raw, values) {
				return false
			}

		case filter.OpLte:
			limit, ok := toFloat(cond.Value)
			if !ok {
				return false
			}
			price, err := strconv.ParseFloat(raw, 64)
			if err != nil || price > limit {
				return false
			}

		default:
			return false
		}
	}
	return true
}

// containsAny reports whether any element of the stored value (a single
// string or a comma-joined list) appears in values.
func containsAny(raw string, values []string) bool {
	for _, stored := range strings.Split(raw, ",") {
		for _, v := range values {
			if stored == v {
				return true
			}
		}
	}
	return false
}

// metadataToStrings converts item metadata to chromem's string map.
func metadataToStrings(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case []string:
			out[k] = strings.Join(val, ",")
		default:
			out[k] = fmt.Sprintf("%v", val)
		}
	}
	return out
}

// metadataFromStrings restores typed values where the representation is
// unambiguous. Everything else stays a string.
func metadataFromStrings(metadata map[string]string) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if isListField(k) {
			if v != "" {
				out[k] = strings.Split(v, ",")
			}
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil && (v == "true" || v == "false") {
			out[k] = b
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[k] = f
			continue
		}
		out[k] = v
	}
	return out
}

// isListField reports whether a metadata field holds a string list.
func isListField(field string) bool {
	return field == filter.FieldOtherAllergies || field == filter.FieldDietaryPreferences
}

// Ensure ChromemStore implements Searcher.
var _ Searcher = (*ChromemStore)(nil)
