package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unifeast/feastd/internal/assemble"
	"github.com/unifeast/feastd/internal/filter"
	"github.com/unifeast/feastd/internal/logging"
	"github.com/unifeast/feastd/internal/profile"
	"github.com/unifeast/feastd/internal/retrieval"
)

// ErrUnavailable is returned by a provider that cannot serve the request
// right now. The service then consults the next provider in order.
var ErrUnavailable = errors.New("provider unavailable")

// providerInput carries one resolved request through the provider chain.
type providerInput struct {
	Query      string
	Filter     *filter.Filter
	Identity   profile.Identity
	PeriodPlan string
}

// Provider produces a complete response for a resolved request. Returning
// an error wrapping ErrUnavailable signals a typed, expected outage; any
// other error is a hard failure.
type Provider interface {
	Name() string
	Respond(ctx context.Context, in providerInput) (assemble.Response, error)
}

// BuildProviders assembles the standard chain: retrieval first, then the
// always-on fallback. The fallback guarantees every turn gets an answer.
func BuildProviders(searcher retrieval.Searcher, topK int, timeout time.Duration, logger *logging.Logger) []Provider {
	return []Provider{
		newRetrievalProvider(searcher, topK, timeout, logger),
		fallbackProvider{},
	}
}

// retrievalProvider answers via filtered vector search. It is the primary
// provider; it reports ErrUnavailable when the index cannot be reached
// within the timeout instead of failing the request.
type retrievalProvider struct {
	searcher retrieval.Searcher
	topK     int
	timeout  time.Duration
	logger   *logging.Logger
}

func newRetrievalProvider(searcher retrieval.Searcher, topK int, timeout time.Duration, logger *logging.Logger) *retrievalProvider {
	return &retrievalProvider{
		searcher: searcher,
		topK:     topK,
		timeout:  timeout,
		logger:   logger.Named("provider.retrieval"),
	}
}

func (p *retrievalProvider) Name() string { return "retrieval" }

func (p *retrievalProvider) Respond(ctx context.Context, in providerInput) (assemble.Response, error) {
	searchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	results, err := p.searcher.Search(searchCtx, in.Query, in.Filter, p.topK)
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn(ctx, "vector index unavailable, deferring to next provider",
				zap.Error(err),
			)
			return assemble.Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return assemble.Response{}, fmt.Errorf("searching menu: %w", err)
	}

	return assemble.Assemble(assemble.Input{
		Query:      in.Query,
		Results:    results,
		Filter:     in.Filter,
		Identity:   in.Identity,
		PeriodPlan: in.PeriodPlan,
	}), nil
}

// fallbackProvider terminates the chain. It always succeeds, producing a
// degraded zero-result response so the user still gets an answer.
type fallbackProvider struct{}

func (fallbackProvider) Name() string { return "fallback" }

func (fallbackProvider) Respond(_ context.Context, in providerInput) (assemble.Response, error) {
	return assemble.Assemble(assemble.Input{
		Query:      in.Query,
		Filter:     in.Filter,
		Identity:   in.Identity,
		PeriodPlan: in.PeriodPlan,
		Degraded:   true,
	}), nil
}
