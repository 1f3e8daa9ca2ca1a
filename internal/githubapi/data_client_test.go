package githubapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestDataClient(t *testing.T, handler http.Handler) (*DataClient, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	requestClient := NewClient(server.Client(), RetryConfig{MaxAttempts: 1}, WaitPolicy{})
	client, err := NewDataClient(server.URL, requestClient)
	if err != nil {
		t.Fatalf("NewDataClient: %v", err)
	}
	return client, server
}

func TestListCommitsPage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/commits", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("page"); got != "2" {
			t.Errorf("page query = %q, want %q", got, "2")
		}
		if got := r.URL.Query().Get("sha"); got != "develop" {
			t.Errorf("sha query = %q, want %q", got, "develop")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"sha": "abc123",
				"url": "https://api.example.test/repos/acme/widget/commits/abc123",
				"html_url": "https://example.test/acme/widget/commit/abc123",
				"author": {"login": "alice"},
				"commit": {"message": "fix parser", "author": {"name": "Alice A", "date": "2025-10-01T08:30:00Z"}}
			},
			{
				"sha": "def456",
				"url": "https://api.example.test/repos/acme/widget/commits/def456",
				"html_url": "https://example.test/acme/widget/commit/def456",
				"author": null,
				"commit": {"message": "initial", "author": {"name": "Bob B", "date": "2025-09-20T10:00:00Z"}}
			},
			{"sha": ["not", "a", "string"]}
		]`))
	})
	client, _ := newTestDataClient(t, mux)

	page, err := client.ListCommitsPage(context.Background(), "acme", "widget", "develop", 2)
	if err != nil {
		t.Fatalf("ListCommitsPage: %v", err)
	}
	if page.Status != EndpointStatusOK {
		t.Fatalf("status = %q, want ok", page.Status)
	}
	if len(page.Commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(page.Commits))
	}
	if page.Malformed != 1 {
		t.Fatalf("malformed = %d, want 1", page.Malformed)
	}

	first := page.Commits[0]
	if first.SHA != "abc123" || first.Login != "alice" || first.AuthorName != "Alice A" {
		t.Fatalf("unexpected first commit: %+v", first)
	}
	wantDate := time.Date(2025, 10, 1, 8, 30, 0, 0, time.UTC)
	if !first.AuthoredAt.Equal(wantDate) {
		t.Fatalf("authored at = %v, want %v", first.AuthoredAt, wantDate)
	}
	if second := page.Commits[1]; second.Login != "" || second.AuthorName != "Bob B" {
		t.Fatalf("unexpected second commit: %+v", second)
	}
}

func TestListCommitsPageNonArrayBodyEndsPagination(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/commits", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message": "Git Repository is empty."}`))
	})
	client, _ := newTestDataClient(t, mux)

	page, err := client.ListCommitsPage(context.Background(), "acme", "widget", "", 1)
	if err != nil {
		t.Fatalf("ListCommitsPage: %v", err)
	}
	if page.Status != EndpointStatusOK {
		t.Fatalf("status = %q, want ok", page.Status)
	}
	if len(page.Commits) != 0 {
		t.Fatalf("commits = %d, want 0", len(page.Commits))
	}
}

func TestGetCommitDiff(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/commits/abc123", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"sha": "abc123",
			"files": [{"filename": "main.go"}, {"filename": "parser.go"}],
			"stats": {"total": 42}
		}`))
	})
	client, server := newTestDataClient(t, mux)

	diff, err := client.GetCommitDiff(context.Background(), server.URL+"/repos/acme/widget/commits/abc123")
	if err != nil {
		t.Fatalf("GetCommitDiff: %v", err)
	}
	if diff.Total != 42 {
		t.Fatalf("total = %d, want 42", diff.Total)
	}
	if len(diff.Filenames) != 2 || diff.Filenames[0] != "main.go" {
		t.Fatalf("filenames = %v", diff.Filenames)
	}
}

func TestListIssuesPage(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/issues", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("state"); got != "all" {
			t.Errorf("state query = %q, want %q", got, "all")
		}
		_, _ = w.Write([]byte(`[
			{
				"number": 7,
				"title": "widget breaks",
				"body": "steps to reproduce",
				"state": "open",
				"comments": 2,
				"comments_url": "https://api.example.test/repos/acme/widget/issues/7/comments",
				"html_url": "https://example.test/acme/widget/issues/7",
				"created_at": "2025-10-02T09:00:00Z",
				"user": {"login": "carol"},
				"labels": [{"name": "bug"}],
				"assignees": [{"login": "alice"}]
			},
			{
				"number": 8,
				"title": "add parser",
				"state": "closed",
				"comments": 0,
				"html_url": "https://example.test/acme/widget/pull/8",
				"created_at": "2025-10-03T09:00:00Z",
				"user": {"login": "alice"},
				"pull_request": {"url": "https://api.example.test/repos/acme/widget/pulls/8"}
			}
		]`))
	})
	client, _ := newTestDataClient(t, mux)

	page, err := client.ListIssuesPage(context.Background(), "acme", "widget", 1)
	if err != nil {
		t.Fatalf("ListIssuesPage: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}

	issue := page.Items[0]
	if issue.PullURL != "" {
		t.Fatalf("issue item must have no pull linkage: %+v", issue)
	}
	if issue.Login != "carol" || issue.CommentsCount != 2 {
		t.Fatalf("unexpected issue item: %+v", issue)
	}
	if len(issue.Labels) != 1 || issue.Labels[0] != "bug" {
		t.Fatalf("labels = %v", issue.Labels)
	}
	if len(issue.Assignees) != 1 || issue.Assignees[0] != "alice" {
		t.Fatalf("assignees = %v", issue.Assignees)
	}

	pr := page.Items[1]
	if pr.PullURL != "https://api.example.test/repos/acme/widget/pulls/8" {
		t.Fatalf("pull item must carry pull linkage: %+v", pr)
	}
}

func TestListPullCommitsAppendsSuffix(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget/pulls/8/commits", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"sha": "abc123", "url": "https://api.example.test/repos/acme/widget/commits/abc123"},
			{"sha": "def456", "url": "https://api.example.test/repos/acme/widget/commits/def456"}
		]`))
	})
	client, server := newTestDataClient(t, mux)

	result, err := client.ListPullCommits(context.Background(), server.URL+"/repos/acme/widget/pulls/8")
	if err != nil {
		t.Fatalf("ListPullCommits: %v", err)
	}
	if len(result.Commits) != 2 {
		t.Fatalf("commits = %d, want 2", len(result.Commits))
	}
	if result.Commits[0].SHA != "abc123" {
		t.Fatalf("unexpected first commit: %+v", result.Commits[0])
	}
}

func TestGetRepositoryStatusMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		statusCode int
		body       string
		want       EndpointStatus
	}{
		{name: "ok", statusCode: http.StatusOK, body: `{"full_name": "acme/widget", "default_branch": "main"}`, want: EndpointStatusOK},
		{name: "not_found", statusCode: http.StatusNotFound, body: `{"message": "Not Found"}`, want: EndpointStatusNotFound},
		{name: "forbidden", statusCode: http.StatusForbidden, body: `{}`, want: EndpointStatusForbidden},
		{name: "conflict", statusCode: http.StatusConflict, body: `{}`, want: EndpointStatusConflict},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.statusCode)
				_, _ = w.Write([]byte(tc.body))
			})
			client, _ := newTestDataClient(t, handler)

			info, err := client.GetRepository(context.Background(), "acme", "widget")
			if err != nil {
				t.Fatalf("GetRepository: %v", err)
			}
			if info.Status != tc.want {
				t.Fatalf("status = %q, want %q", info.Status, tc.want)
			}
			if tc.want == EndpointStatusOK && info.DefaultBranch != "main" {
				t.Fatalf("default branch = %q, want main", info.DefaultBranch)
			}
		})
	}
}
