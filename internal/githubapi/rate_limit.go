package githubapi

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	Remaining  int
	ResetUnix  int64
	RetryAfter time.Duration
	Limited    bool
}

// Decision represents a rate-limit wait decision.
type Decision struct {
	Wait    bool
	WaitFor time.Duration
	Reason  string
}

// WaitPolicy decides how long to pause when a response signals rate limiting.
// The reset wait is a distinct delay strategy from retry backoff: it waits
// until the reported reset instant, capped at MaxWait.
type WaitPolicy struct {
	MaxWait time.Duration
	Now     func() time.Time
}

// ParseRateLimitHeaders parses rate-limit and retry headers from a response.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	parsed := RateLimitHeaders{}
	parsed.Remaining = parseInt(header.Get("X-RateLimit-Remaining"))
	parsed.ResetUnix = parseInt64(header.Get("X-RateLimit-Reset"))

	retryAfterSeconds := parseInt(header.Get("Retry-After"))
	if retryAfterSeconds > 0 {
		parsed.RetryAfter = time.Duration(retryAfterSeconds) * time.Second
	}

	if statusCode == http.StatusTooManyRequests {
		parsed.Limited = true
	}
	if statusCode == http.StatusForbidden && (parsed.ResetUnix > 0 || parsed.RetryAfter > 0) {
		parsed.Limited = true
	}

	return parsed
}

// Evaluate decides whether the caller should wait before the next attempt.
func (p WaitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	if !headers.Limited {
		return Decision{Reason: "not_limited"}
	}

	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	waitFor := headers.RetryAfter
	if headers.ResetUnix > 0 {
		untilReset := time.Unix(headers.ResetUnix, 0).Sub(now) + time.Second
		if untilReset > waitFor {
			waitFor = untilReset
		}
	}
	if waitFor < 0 {
		waitFor = 0
	}
	if p.MaxWait > 0 && waitFor > p.MaxWait {
		waitFor = p.MaxWait
	}

	return Decision{
		Wait:    true,
		WaitFor: waitFor,
		Reason:  "rate_limit_reset",
	}
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
