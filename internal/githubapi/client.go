package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coursestats/gather/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts       int
	RateLimitWaits int
	LastHeaders    RateLimitHeaders
}

// FetchResult is the outcome of one JSON GET round-trip.
type FetchResult struct {
	StatusCode int
	Body       json.RawMessage
	Metadata   CallMetadata
}

// Client wraps GitHub GET requests with retry backoff, rate-limit waiting
// and optional proactive pacing. Transport errors and undecodable bodies are
// retried with exponential backoff; rate-limited responses wait out the
// reported reset instead, capped by the wait policy.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	waitPolicy WaitPolicy

	// Pacer optionally throttles request starts.
	Pacer *rate.Limiter
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// NewClient creates a GitHub API client wrapper.
func NewClient(doer HTTPDoer, retry RetryConfig, waitPolicy WaitPolicy) *Client {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	return &Client{
		doer:       doer,
		retry:      retry,
		waitPolicy: waitPolicy,
		Sleep:      time.Sleep,
	}
}

// FetchJSON executes a GET against rawURL and returns the response body once
// a decodable JSON payload or a terminal status is obtained.
func (c *Client) FetchJSON(ctx context.Context, rawURL string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("gather/internal/githubapi").Start(
			ctx,
			"githubapi.client.fetch",
			trace.WithAttributes(
				attribute.String("http.path", req.URL.EscapedPath()),
				attribute.Int("github.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
		req = req.WithContext(ctx)
	}

	result := FetchResult{}
	var lastErr error
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		result.Metadata.Attempts = attempt

		if c.Pacer != nil {
			if err := c.Pacer.Wait(ctx); err != nil {
				return result, fmt.Errorf("pacing wait: %w", err)
			}
		}

		resp, err := c.doer.Do(req.Clone(ctx))
		if err != nil {
			lastErr = err
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("github.attempt", attempt),
				))
			}
			if attempt == c.retry.MaxAttempts {
				break
			}
			c.Sleep(backoffForAttempt(c.retry, attempt))
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		result.Metadata.LastHeaders = headers
		body, readErr := readAndClose(resp)

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
			))
		}

		// Bad credentials are terminal: retrying cannot help.
		if resp.StatusCode == http.StatusUnauthorized {
			result.StatusCode = resp.StatusCode
			if span != nil {
				span.SetStatus(codes.Error, "unauthorized")
			}
			return result, nil
		}

		if decision := c.waitPolicy.Evaluate(headers); decision.Wait {
			result.Metadata.RateLimitWaits++
			if attempt == c.retry.MaxAttempts {
				result.StatusCode = resp.StatusCode
				if span != nil {
					span.SetStatus(codes.Error, "rate-limited")
				}
				return result, nil
			}
			c.Sleep(decision.WaitFor)
			continue
		}

		if isTransientStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
			if attempt == c.retry.MaxAttempts {
				result.StatusCode = resp.StatusCode
				if span != nil {
					span.SetStatus(codes.Error, lastErr.Error())
				}
				return result, nil
			}
			c.Sleep(backoffForAttempt(c.retry, attempt))
			continue
		}

		result.StatusCode = resp.StatusCode
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			if span != nil {
				span.SetStatus(codes.Ok, "request completed")
			}
			return result, nil
		}

		if readErr != nil {
			lastErr = readErr
		} else if !json.Valid(body) {
			lastErr = fmt.Errorf("invalid json body")
		} else {
			result.Body = body
			if span != nil {
				span.SetStatus(codes.Ok, "request completed")
			}
			return result, nil
		}

		// Truncated or undecodable body on a success status: retry.
		if attempt == c.retry.MaxAttempts {
			break
		}
		c.Sleep(backoffForAttempt(c.retry, attempt))
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	return result, fmt.Errorf("request attempts exhausted: %w", lastErr)
}

func readAndClose(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, nil
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return io.ReadAll(resp.Body)
}

func isTransientStatus(statusCode int) bool {
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
