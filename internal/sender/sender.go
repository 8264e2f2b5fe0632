// Package sender delivers messages to peer agents with registry resolution,
// per-destination circuit breaking and bounded retries. Every failure mode is
// turned into a readable reply rather than an error.
package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentfleet/agentfleet/internal/a2a"
	"github.com/agentfleet/agentfleet/internal/correlation"
	"github.com/agentfleet/agentfleet/internal/metrics"
	"github.com/agentfleet/agentfleet/internal/observability"
	"github.com/agentfleet/agentfleet/internal/registry"
	"github.com/agentfleet/agentfleet/internal/resilience"
)

// DefaultTimeout bounds a single outbound attempt.
const DefaultTimeout = 120 * time.Second

// Outcome classifies how a send ended.
type Outcome string

const (
	OutcomeDelivered   Outcome = "delivered"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeFailed      Outcome = "failed"
	OutcomeCanceled    Outcome = "canceled"
)

// Reply is the result of a send. Text is always populated.
type Reply struct {
	Text    string
	Outcome Outcome
}

// Delivered reports whether the peer answered.
func (r Reply) Delivered() bool {
	return r.Outcome == OutcomeDelivered
}

// Options configures a Sender.
type Options struct {
	Registry *registry.Registry
	Breakers *resilience.Breakers
	// Retry is copied per call; its Retryable and OnRetry hooks are replaced.
	// Nil uses the retry defaults.
	Retry   *resilience.Retrier
	Client  *a2a.Client
	Timeout time.Duration
}

// Sender is safe for concurrent use.
type Sender struct {
	registry *registry.Registry
	breakers *resilience.Breakers
	retry    resilience.Retrier
	client   *a2a.Client
	timeout  time.Duration
}

// New creates a Sender. Missing collaborators fall back to empty or default instances.
func New(opts Options) *Sender {
	s := &Sender{
		registry: opts.Registry,
		breakers: opts.Breakers,
		client:   opts.Client,
		timeout:  opts.Timeout,
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.breakers == nil {
		s.breakers = resilience.NewBreakers(resilience.BreakerConfig{})
	}
	if opts.Retry != nil {
		s.retry = *opts.Retry
	} else {
		s.retry = *resilience.NewRetrier(resilience.DefaultMaxRetries, 0, 0)
	}
	if s.client == nil {
		s.client = a2a.NewClient("")
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	return s
}

// Registry returns the registry used for resolution.
func (s *Sender) Registry() *registry.Registry {
	return s.registry
}

// Breakers returns the breaker registry.
func (s *Sender) Breakers() *resilience.Breakers {
	return s.breakers
}

// Send delivers text to agent and returns the peer's reply text, or a
// sentence describing why it could not. The correlation ID bound to ctx is
// forwarded on every attempt.
func (s *Sender) Send(ctx context.Context, agent, text string) Reply {
	start := time.Now()
	reply := s.send(ctx, agent, text)
	metrics.RecordSend(agent, string(reply.Outcome), time.Since(start))
	return reply
}

func (s *Sender) send(ctx context.Context, agent, text string) Reply {
	logger := observability.Logger()
	cid := zap.String("correlation_id", correlation.FromContext(ctx))

	url, err := s.registry.Resolve(agent)
	if err != nil {
		return Reply{
			Outcome: OutcomeNotFound,
			Text: fmt.Sprintf("Agent '%s' not found in registry. Available agents: [%s]",
				agent, strings.Join(s.registry.Names(), ", ")),
		}
	}

	breaker := s.breakers.Get(agent)
	if !breaker.AllowRequest() {
		metrics.RecordBreakerRejection(agent)
		if logger != nil {
			logger.Warn("Circuit open, not sending", zap.String("agent", agent), cid)
		}
		return Reply{
			Outcome: OutcomeCircuitOpen,
			Text:    fmt.Sprintf("Agent '%s' is unavailable: circuit breaker is open after repeated failures. Try again later.", agent),
		}
	}

	if logger != nil {
		logger.Info("Sending message to agent", zap.String("agent", agent), zap.String("url", url), cid)
	}

	retrier := s.retry
	// only transport failures and HTTP error statuses are worth another attempt
	retrier.Retryable = func(err error) bool {
		var rpcErr *a2a.RPCError
		return !errors.As(err, &rpcErr) && !errors.Is(err, a2a.ErrMalformedResponse)
	}
	retrier.OnRetry = func(attempt int, err error, delay time.Duration) {
		metrics.RecordRetryAttempt(agent)
		if logger != nil {
			logger.Warn("Send attempt failed, retrying",
				zap.String("agent", agent),
				zap.Int("attempt", attempt),
				zap.Int("attempts", retrier.MaxRetries+1),
				zap.Duration("delay", delay),
				zap.Error(err),
				cid)
		}
	}

	var result any
	err = retrier.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		res, err := s.client.SendMessage(attemptCtx, url, text)
		if err != nil {
			return err
		}
		result = res
		return nil
	})

	var rpcErr *a2a.RPCError
	switch {
	case err == nil:
		breaker.RecordSuccess()
		return Reply{Outcome: OutcomeDelivered, Text: a2a.ExtractText(result)}

	case ctx.Err() != nil:
		breaker.Release()
		if logger != nil {
			logger.Info("Send canceled", zap.String("agent", agent), zap.Error(ctx.Err()), cid)
		}
		return Reply{
			Outcome: OutcomeCanceled,
			Text:    fmt.Sprintf("Request to agent '%s' was canceled: %v", agent, ctx.Err()),
		}

	case errors.As(err, &rpcErr):
		// the peer is reachable, it just refused the request
		breaker.RecordSuccess()
		if logger != nil {
			logger.Warn("Agent returned an error", zap.String("agent", agent), zap.Int("code", rpcErr.Code), cid)
		}
		return Reply{
			Outcome: OutcomeFailed,
			Text:    fmt.Sprintf("Agent '%s' returned an error: %s", agent, rpcErr.Message),
		}

	default:
		breaker.RecordFailure()
		if logger != nil {
			logger.Error("Failed to communicate with agent", zap.String("agent", agent), zap.Error(err), cid)
		}
		return Reply{
			Outcome: OutcomeFailed,
			Text:    fmt.Sprintf("Failed to communicate with agent '%s': %v", agent, err),
		}
	}
}

// ObserveTransition logs and counts a breaker state change. It matches
// resilience.BreakerConfig.OnStateChange.
func ObserveTransition(name string, from, to resilience.State) {
	metrics.RecordBreakerTransition(name, from.String(), to.String())
	logger := observability.Logger()
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("agent", name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	}
	if to == resilience.StateOpen {
		logger.Warn("Circuit breaker opened", fields...)
		return
	}
	logger.Info("Circuit breaker state changed", fields...)
}
