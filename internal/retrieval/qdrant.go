package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/unifeast/feastd/internal/filter"
)

// Tracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("feastd.retrieval.qdrant")

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334), not the HTTP REST port.
	Port int

	// Collection is the menu-item collection name.
	Collection string

	// VectorSize is the embedding dimensionality. Must match the
	// embedder's output.
	VectorSize uint64

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// MaxRetries is the maximum retry count for transient failures.
	// Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry.
	// Default: 1s.
	RetryBackoff time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.Collection == "" {
		return fmt.Errorf("%w: collection required", ErrInvalidConfig)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// isTransientError reports whether an error should be retried: network
// timeouts and temporary unavailability, not invalid arguments.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore is a Searcher backed by Qdrant's native gRPC client.
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore creates a QdrantStore, connects, and health-checks it.
func NewQdrantStore(cfg QdrantConfig, embedder Embedder) (*QdrantStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	return store, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries an operation with exponential backoff on
// transient errors.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, op func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// ensureCollection creates the menu collection on first use.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.ensureOnce.Do(func() {
		exists, err := s.client.CollectionExists(ctx, s.config.Collection)
		if err != nil {
			s.ensureErr = fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
			return
		}
		if exists {
			return
		}
		s.ensureErr = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.config.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.config.VectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	return s.ensureErr
}

// Index upserts menu items into the collection.
func (s *QdrantStore) Index(ctx context.Context, items []Item) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Index")
	defer span.End()

	span.SetAttributes(
		attribute.Int("item_count", len(items)),
		attribute.String("collection", s.config.Collection),
	)

	if len(items) == 0 {
		return nil
	}

	if err := s.ensureCollection(ctx); err != nil {
		spanFail(span, err)
		return err
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

	points := make([]*qdrant.PointStruct, len(items))
	for i, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}

		payload := make(map[string]*qdrant.Value, len(item.Metadata)+2)
		payload["content"] = qdrantValue(item.Content)
		payload["id"] = qdrantValue(id)
		for k, v := range item.Metadata {
			if qv := qdrantValue(v); qv != nil {
				payload[k] = qv
			}
		}

		pointID := id
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.New().String()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		spanFail(span, err)
		return fmt.Errorf("upserting points: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Search performs filtered similarity search over the menu collection.
func (s *QdrantStore) Search(ctx context.Context, query string, f *filter.Filter, limit int) ([]ScoredItem, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
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

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	qf, err := translateFilter(f)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var results []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "search", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         qf,
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		spanFail(span, err)
		if errors.Is(err, context.DeadlineExceeded) || isTransientError(errors.Unwrap(err)) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	items := make([]ScoredItem, len(results))
	for i, point := range results {
		items[i] = scoredItemFromPayload(point)
	}

	span.SetAttributes(attribute.Int("results_count", len(items)))
	span.SetStatus(codes.Ok, "success")
	return items, nil
}

// spanFail records an error on a span and marks it failed.
func spanFail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// translateFilter converts a structured filter into native Qdrant
/// conditions: $eq and $in become Must matches, $lte becomes a Must range,
// $nin becomes a MustNot match.
func translateFilter(f *filter.Filter) (*qdrant.Filter, error) {
	if f == nil || f.Len() == 0 {
		return nil, nil
	}

	var must, mustNot []*qdrant.Condition
	for _, field := range f.Fields() {
		cond, _ := f.Get(field)
		switch cond.Op {
		case filter.OpEq:
			m, err := matchValue(field, cond.Value)
			if err != nil {
				return nil, err
			}
			must = append(must, fieldCondition(field, m))

		case filter.OpIn:
			values, ok := toStringSlice(cond.Value)
			if !ok {
				return nil, fmt.Errorf("field %s: $in requires a string list, got %T", field, cond.Value)
			}
			must = append(must, fieldCondition(field, keywordsMatch(values)))

		case filter.OpNin:
			values, ok := toStringSlice(cond.Value)
			if !ok {
				return nil, fmt.Errorf("field %s: $nin requires a string list, got %T", field, cond.Value)
			}
			mustNot = append(mustNot, fieldCondition(field, keywordsMatch(values)))

		case filter.OpLte:
			limit, ok := toFloat(cond.Value)
			if !ok {
				return nil, fmt.Errorf("field %s: $lte requires a number, got %T", field, cond.Value)
			}
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   field,
						Range: &qdrant.Range{Lte: qdrant.PtrOf(limit)},
					},
				},
			})

		default:
			return nil, fmt.Errorf("field %s: unsupported operator %s", field, cond.Op)
		}
	}

	return &qdrant.Filter{Must: must, MustNot: mustNot}, nil
}

func fieldCondition(field string, match *qdrant.Match) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: field, Match: match},
		},
	}
}

func matchValue(field string, value any) (*qdrant.Match, error) {
	switch v := value.(type) {
	case bool:
		return &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}, nil
	case string:
		return &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}, nil
	default:
		return nil, fmt.Errorf("field %s: $eq requires bool or string, got %T", field, value)
	}
}

func keywordsMatch(values []string) *qdrant.Match {
	return &qdrant.Match{
		MatchValue: &qdrant.Match_Keywords{
			Keywords: &qdrant.RepeatedStrings{Strings: values},
		},
	}
}

// toStringSlice accepts []string directly or []any from a JSON round-trip.
func toStringSlice(value any) ([]string, bool) {
	switch v := value.(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

func qdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case []string:
		values := make([]*qdrant.Value, len(val))
		for i, s := range val {
			values[i] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
	default:
		return nil
	}
}

func scoredItemFromPayload(point *qdrant.ScoredPoint) ScoredItem {
	item := ScoredItem{Score: point.Score}

	if point.Payload == nil {
		return item
	}
	item.Metadata = make(map[string]any, len(point.Payload))
	for k, v := range point.Payload {
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			item.Metadata[k] = val.StringValue
			switch k {
			case "content":
				item.Content = val.StringValue
			case "id":
				item.ID = val.StringValue
			}
		case *qdrant.Value_BoolValue:
			item.Metadata[k] = val.BoolValue
		case *qdrant.Value_IntegerValue:
			item.Metadata[k] = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			item.Metadata[k] = val.DoubleValue
		case *qdrant.Value_ListValue:
			var list []string
			for _, lv := range val.ListValue.GetValues() {
				if sv, ok := lv.Kind.(*qdrant.Value_StringValue); ok {
					list = append(list, sv.StringValue)
				}
			}
			item.Metadata[k] = list
		}
	}
	return item
}

// Ensure QdrantStore implements Searcher.
var _ Searcher = (*QdrantStore)(nil)
