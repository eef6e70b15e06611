package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jbellis/llmap/internal/metrics"
	"github.com/jbellis/llmap/llm/cache"
	"github.com/jbellis/llmap/llm/retry"
)

// ProgressSink receives incremental progress notifications as a
// streaming completion comes in: linesReceived is the number of newline
// characters present in the delta that just arrived, so a caller can
// track liveness (and roughly how much output an in-flight call has
// produced) without buffering the response itself. It is only invoked
// for deltas that actually contain a newline. ProgressSink is passed
// explicitly into each Ask call rather than stored as client state, so
// a Client can be shared safely across phases that want independent
// progress reporting without a mutable shared field racing between
// them.
type ProgressSink func(linesReceived int)

// Exhausted reports whether the retry loop gave up after MaxAttempts,
// as opposed to hitting a class of error that is never retried. The
// pipeline uses this to pick between PhaseError{Kind: Request} and
// PhaseError{Kind: Timeout}.
func (e *Error) Exhausted() bool { return e.exhausted }

// Client wraps one backend's transport with cache consultation and a
// retry/backoff loop. It holds no per-call mutable state, so the same
// Client is shared across every concurrent pipeline worker.
type Client struct {
	backend   *backend
	transport *transport
	cache     cache.Cache
	logger    *zap.Logger
	metrics   *metrics.Collector

	// analyzeModel/refineModel override the backend's defaults when
	// non-empty. Validated against the backend's valid-model set at
	// construction time by NewClient, not lazily at call time.
	analyzeModel string
	refineModel  string

	// refineLimiter throttles calls against the refine backend only.
	// It is optional: nil means unthrottled. Refine calls tend to hit
	// pricier, more rate-limited models than analyze calls, so throttling
	// is opt-in rather than applied to every request uniformly.
	refineLimiter *rate.Limiter
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithRefineRateLimit throttles calls made with AskRefine to at most
// rps requests per second, with a burst of burst.
func WithRefineRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.refineLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHTTPTimeout overrides the default per-request HTTP timeout.
func WithHTTPTimeout(d time.Duration) Option {
	return func(c *Client) { c.transport = newTransport(d) }
}

// WithLogger attaches a structured logger; the zero value logs nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithMetrics attaches a Collector that ask() reports per-request
// outcomes and error codes to. mcol may be nil, which is equivalent to
// omitting the option.
func WithMetrics(mcol *metrics.Collector) Option {
	return func(c *Client) { c.metrics = mcol }
}

// WithModels overrides the backend's default analyze and/or refine
// model. Either argument may be empty to leave that role's backend
// default in place. NewClient validates a non-empty override against
// the selected backend's valid-model set and fails construction if it
// doesn't belong to that backend, rather than deferring the failure to
// the first Ask call that uses it.
func WithModels(analyze, refine string) Option {
	return func(c *Client) {
		c.analyzeModel = analyze
		c.refineModel = refine
	}
}

// NewClient selects a backend from creds and wires it to cch, which may
// be a no-op cache (see cache.ModeNone).
func NewClient(creds BackendCredentials, cch cache.Cache, opts ...Option) (*Client, error) {
	b, err := selectBackend(creds)
	if err != nil {
		return nil, err
	}
	c := &Client{
		backend:   b,
		transport: newTransport(0),
		cache:     cch,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.analyzeModel != "" {
		if err := b.validateModel("analyze", c.analyzeModel); err != nil {
			return nil, err
		}
	}
	if c.refineModel != "" {
		if err := b.validateModel("refine", c.refineModel); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultAnalyzeModel returns the configured analyze-model override, if
// any, otherwise the backend's default model for triage and per-chunk
// analysis calls.
func (c *Client) DefaultAnalyzeModel() string {
	if c.analyzeModel != "" {
		return c.analyzeModel
	}
	return c.backend.defaultAnalyze
}

// DefaultRefineModel returns the configured refine-model override, if
// any, otherwise the backend's default model for the two-pass refine
// phase.
func (c *Client) DefaultRefineModel() string {
	if c.refineModel != "" {
		return c.refineModel
	}
	return c.backend.defaultRefine
}

// MaxTokens returns the backend's prompt token ceiling, used by the
// pipeline's collation phase to size groups.
func (c *Client) MaxTokens() int { return c.backend.maxTokens }

// Ask computes the cache key, checks the cache, streams a completion on
// a miss, validates the accumulated content is non-empty, and writes the
// cache on success. The model must be valid for the selected backend.
//
// progress, if non-nil, is invoked as deltas arrive on the stream (see
// ProgressSink), letting a phase report liveness without the Client
// itself tracking any shared counter. It is not invoked at all on a
// cache hit, since nothing streams in that case.
func (c *Client) Ask(ctx context.Context, messages []Message, model string, progress ProgressSink) (*Response, error) {
	return c.ask(ctx, messages, model, nil, progress)
}

// AskRefine is Ask with the optional refine-backend rate limiter applied.
func (c *Client) AskRefine(ctx context.Context, messages []Message, model string, progress ProgressSink) (*Response, error) {
	return c.ask(ctx, messages, model, c.refineLimiter, progress)
}

func (c *Client) ask(ctx context.Context, messages []Message, model string, limiter *rate.Limiter, progress ProgressSink) (*Response, error) {
	if err := c.backend.validateModel("request", model); err != nil {
		return nil, err
	}

	key, err := c.cacheKey(messages, model)
	if err != nil {
		return nil, err
	}
	if entry, hit, err := c.cache.Get(key); err != nil {
		c.logger.Warn("cache read failed, continuing to backend", zap.Error(err))
	} else if hit {
		return &Response{Content: entry.Answer}, nil
	}

	var lastErr *Error
	for attempt := 0; attempt < retry.MaxAttempts; attempt++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		content, llmErr := c.streamOnce(ctx, model, messages, progress)
		if llmErr == nil {
			c.metrics.ObserveRequest(model, "success", time.Since(start))
			if err := c.cache.Set(key, content); err != nil {
				c.logger.Warn("cache write failed", zap.Error(err))
			}
			return &Response{Content: content}, nil
		}
		c.metrics.ObserveError(string(llmErr.Code))

		if !llmErr.Retryable {
			c.metrics.ObserveRequest(model, "error", time.Since(start))
			// Append the rejected request body to a diagnostic log for
			// post-mortem; failure to write it is ignored.
			if body, mErr := json.Marshal(chatRequest{Model: model, Messages: messages}); mErr == nil {
				logPath := filepath.Join(os.TempDir(), "llmap_request_errors.log")
				if f, fErr := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600); fErr == nil {
					fmt.Fprintf(f, "%s\n%s\n\n", llmErr.Error(), body)
					f.Close()
				}
			}
			return nil, llmErr
		}
		lastErr = llmErr

		delay := retry.FlatDelay
		if llmErr.Code == ErrRateLimited {
			delay = retry.RateLimitDelay(attempt)
		}
		c.logger.Debug("retrying llm call",
			zap.Int("attempt", attempt),
			zap.String("code", string(llmErr.Code)),
			zap.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	lastErr.exhausted = true
	c.metrics.ObserveRequest(model, "exhausted", 0)
	return nil, lastErr
}

// streamOnce opens one streaming completion and accumulates its content,
// treating an empty or whitespace-only result as a transient server
// error rather than a successful empty answer.
func (c *Client) streamOnce(ctx context.Context, model string, messages []Message, progress ProgressSink) (string, *Error) {
	deltas, err := c.transport.stream(ctx, c.backend, model, messages)
	if err != nil {
		var llmErr *Error
		if errors.As(err, &llmErr) {
			return "", llmErr
		}
		return "", &Error{Code: ErrUpstreamError, Message: err.Error(), Retryable: true, Provider: c.backend.name}
	}

	var sb strings.Builder
	for d := range deltas {
		if d.err != nil {
			return "", d.err
		}
		sb.WriteString(d.content)
		if progress != nil {
			if newLines := strings.Count(d.content, "\n"); newLines > 0 {
				progress(newLines)
			}
		}
	}

	content := sb.String()
	if strings.TrimSpace(content) == "" {
		return "", &Error{Code: ErrEmptyStream, Message: "stream produced no content", Retryable: true, Provider: c.backend.name}
	}
	return content, nil
}

func (c *Client) cacheKey(messages []Message, model string) (string, error) {
	payload := struct {
		Messages []Message `json:"messages"`
		Model    string    `json:"model"`
	}{Messages: messages, Model: model}
	data, err := cache.MarshalForKey(payload)
	if err != nil {
		return "", err
	}
	return cache.Key(data, model), nil
}
