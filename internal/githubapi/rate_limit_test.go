package githubapi

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitHeaders(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		headers    map[string]string
		want       RateLimitHeaders
	}{
		{
			name:       "forbidden_with_reset_is_limited",
			statusCode: http.StatusForbidden,
			headers: map[string]string{
				"X-RateLimit-Remaining": "0",
				"X-RateLimit-Reset":     "1739836900",
			},
			want: RateLimitHeaders{Remaining: 0, ResetUnix: 1739836900, Limited: true},
		},
		{
			name:       "forbidden_without_limit_headers_is_plain_forbidden",
			statusCode: http.StatusForbidden,
			headers:    map[string]string{},
			want:       RateLimitHeaders{},
		},
		{
			name:       "too_many_requests_is_limited",
			statusCode: http.StatusTooManyRequests,
			headers:    map[string]string{"Retry-After": "30"},
			want:       RateLimitHeaders{RetryAfter: 30 * time.Second, Limited: true},
		},
		{
			name:       "ok_with_remaining",
			statusCode: http.StatusOK,
			headers:    map[string]string{"X-RateLimit-Remaining": "4999"},
			want:       RateLimitHeaders{Remaining: 4999},
		},
		{
			name:       "garbage_headers_parse_to_zero",
			statusCode: http.StatusOK,
			headers:    map[string]string{"X-RateLimit-Remaining": "many", "Retry-After": "soon"},
			want:       RateLimitHeaders{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			header := make(http.Header)
			for key, value := range tc.headers {
				header.Set(key, value)
			}
			got := ParseRateLimitHeaders(header, tc.statusCode)
			if got != tc.want {
				t.Fatalf("ParseRateLimitHeaders = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestWaitPolicyEvaluate(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	testCases := []struct {
		name     string
		policy   WaitPolicy
		headers  RateLimitHeaders
		wantWait bool
		wantFor  time.Duration
	}{
		{
			name:    "not_limited_no_wait",
			policy:  WaitPolicy{MaxWait: 5 * time.Minute, Now: func() time.Time { return now }},
			headers: RateLimitHeaders{Remaining: 100},
		},
		{
			name:     "waits_until_reset_plus_buffer",
			policy:   WaitPolicy{MaxWait: 5 * time.Minute, Now: func() time.Time { return now }},
			headers:  RateLimitHeaders{Limited: true, ResetUnix: now.Unix() + 90},
			wantWait: true,
			wantFor:  91 * time.Second,
		},
		{
			name:     "wait_capped_at_max",
			policy:   WaitPolicy{MaxWait: 5 * time.Minute, Now: func() time.Time { return now }},
			headers:  RateLimitHeaders{Limited: true, ResetUnix: now.Unix() + 3600},
			wantWait: true,
			wantFor:  5 * time.Minute,
		},
		{
			name:     "retry_after_wins_when_longer",
			policy:   WaitPolicy{MaxWait: 5 * time.Minute, Now: func() time.Time { return now }},
			headers:  RateLimitHeaders{Limited: true, ResetUnix: now.Unix() + 10, RetryAfter: 2 * time.Minute},
			wantWait: true,
			wantFor:  2 * time.Minute,
		},
		{
			name:     "stale_reset_clamps_to_zero",
			policy:   WaitPolicy{MaxWait: 5 * time.Minute, Now: func() time.Time { return now }},
			headers:  RateLimitHeaders{Limited: true, ResetUnix: now.Unix() - 120},
			wantWait: true,
			wantFor:  0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decision := tc.policy.Evaluate(tc.headers)
			if decision.Wait != tc.wantWait {
				t.Fatalf("Evaluate wait = %v, want %v", decision.Wait, tc.wantWait)
			}
			if decision.WaitFor != tc.wantFor {
				t.Fatalf("Evaluate waitFor = %v, want %v", decision.WaitFor, tc.wantFor)
			}
		})
	}
}
