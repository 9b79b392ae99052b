// Package chat orchestrates one conversational turn: session resolution,
// filter synthesis, query strategy selection, the provider chain, and
// memory write-back.
package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unifeast/feastd/internal/assemble"
	"github.com/unifeast/feastd/internal/filter"
	"github.com/unifeast/feastd/internal/logging"
	"github.com/unifeast/feastd/internal/memory"
	"github.com/unifeast/feastd/internal/profile"
)

// Request is one user turn.
type Request struct {
	// Message is the user's free-text message.
	Message string

	// UserID identifies the user. Empty falls back to the configured
	// default identity.
	UserID string

	// SessionID continues an existing conversation. Empty starts a new
	// session with a generated id.
	SessionID string

	// Profile is the user's decoded dietary profile.
	Profile profile.Profile

	// Criteria are the ad-hoc constraints extracted from this turn.
	Criteria filter.Criteria

	// OverridePreferences lets this turn's criteria replace the
	// profile's dietary and price preferences. Allergen constraints are
	// never overridable.
	OverridePreferences bool
}

// Result is a completed turn.
type Result struct {
	Response  assemble.Response
	UserID    string
	SessionID string
	Provider  string
	Timestamp time.Time
}

// Memory is the slice of the session store the service needs.
type Memory interface {
	GetOrCreate(ctx context.Context, sessionID, userID string) (memory.Session, error)
	Append(ctx context.Context, sessionID string, role memory.Role, content string) error
	LoadRecent(ctx context.Context, sessionID string, limit int) ([]memory.Message, error)
}

// Options configures a Service.
type Options struct {
	// HistoryLimit bounds how many prior turns are loaded per request.
	HistoryLimit int

	// DefaultUserID is used when a request carries no user id.
	DefaultUserID string
}

// Service handles chat turns. All dependencies are injected at
// construction; the service holds no mutable state and is safe for
// concurrent use.
type Service struct {
	providers  []Provider
	strategies []strategy
	memory     Memory
	builder    *filter.Builder
	opts       Options
	logger     *logging.Logger
}

// NewService creates a chat service. The provider chain is consulted in
// the given order; it must end with a provider that cannot fail. The
// strategy table is built once here, not per request.
func NewService(providers []Provider, mem Memory, builder *filter.Builder, opts Options, logger *logging.Logger) (*Service, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if mem == nil {
		return nil, errors.New("memory store is required")
	}
	if builder == nil {
		return nil, errors.New("filter builder is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	if opts.DefaultUserID == "" {
		opts.DefaultUserID = "anonymous"
	}

	return &Service{
		providers:  providers,
		strategies: buildStrategyTable(),
		memory:     mem,
		builder:    builder,
		opts:       opts,
		logger:     logger.Named("chat"),
	}, nil
}

// Chat handles one turn end to end. It always produces a response: memory
// failures are logged and tolerated, and an unreachable vector index falls
// through to the degraded provider rather than erroring out.
func (s *Service) Chat(ctx context.Context, req Request) (Result, error) {
	if req.Message == "" && req.Criteria.Empty() {
		return Result{}, errors.New("message or criteria required")
	}

	userID := req.UserID
	if userID == "" {
		userID = s.opts.DefaultUserID
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	ctx = logging.WithUserID(ctx, userID)
	ctx = logging.WithSessionID(ctx, sessionID)

	history := s.loadHistory(ctx, sessionID, userID)

	def := s.builder.BuildDefault(req.Profile)
	merged := s.builder.Merge(def, req.Criteria, req.Profile.Identity, req.OverridePreferences)

	query, strategyName := resolveQuery(s.strategies, req.Message, req.Criteria)

	s.logger.Debug(ctx, "resolved chat turn",
		zap.String("strategy", strategyName),
		zap.Int("history_turns", len(history)),
		zap.Int("filter_conditions", merged.Len()),
		zap.Bool("override_preferences", req.OverridePreferences),
	)

	in := providerInput{
		Query:      query,
		Filter:     merged,
		Identity:   req.Profile.Identity,
		PeriodPlan: req.Criteria.PeriodPlan,
	}

	response, providerName, err := s.respond(ctx, in)
	if err != nil {
		return Result{}, err
	}

	s.persistTurn(ctx, sessionID, req.Message, response.TextBubble)

	return Result{
		Response:  response,
		UserID:    userID,
		SessionID: sessionID,
		Provider:  providerName,
		Timestamp: time.Now().UTC(),
	}, nil
}

// respond walks the provider chain in order. Unavailable providers are
// skipped; any other error aborts the turn.
func (s *Service) respond(ctx context.Context, in providerInput) (assemble.Response, string, error) {
	for _, p := range s.providers {
		response, err := p.Respond(ctx, in)
		if err == nil {
			return response, p.Name(), nil
		}
		if errors.Is(err, ErrUnavailable) {
			s.logger.Warn(ctx, "provider unavailable, trying next",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			continue
		}
		return assemble.Response{}, "", fmt.Errorf("provider %s: %w", p.Name(), err)
	}
	return assemble.Response{}, "", errors.New("all providers unavailable")
}

// loadHistory fetches recent turns, treating an unknown or purged session
// as empty. Memory read failures degrade to no history.
func (s *Service) loadHistory(ctx context.Context, sessionID, userID string) []memory.Message {
	if _, err := s.memory.GetOrCreate(ctx, sessionID, userID); err != nil {
		s.logger.Error(ctx, "failed to resolve session, continuing without memory",
			zap.Error(err),
		)
		return nil
	}
	history, err := s.memory.LoadRecent(ctx, sessionID, s.opts.HistoryLimit)
	if err != nil {
		s.logger.Error(ctx, "failed to load history, continuing without it",
			zap.Error(err),
		)
		return nil
	}
	return history
}

// persistTurn writes both sides of the turn. Failures are loud but do not
// fail the response.
func (s *Service) persistTurn(ctx context.Context, sessionID, userMessage, reply string) {
	if userMessage != "" {
		if err := s.memory.Append(ctx, sessionID, memory.RoleUser, userMessage); err != nil {
			s.logger.Error(ctx, "failed to persist user message", zap.Error(err))
		}
	}
	if reply != "" {
		if err := s.memory.Append(ctx, sessionID, memory.RoleAssistant, reply); err != nil {
			s.logger.Error(ctx, "failed to persist assistant reply", zap.Error(err))
		}
	}
}
