package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultGitHubAPIBaseURL = "https://api.github.com/"

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusUnauthorized indicates bad or missing credentials.
	EndpointStatusUnauthorized EndpointStatus = "unauthorized"
	// EndpointStatusForbidden indicates authorization failure or an exhausted rate limit.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusConflict indicates a state conflict, like listing commits of an empty repository.
	EndpointStatusConflict EndpointStatus = "conflict"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// RepositoryInfo is the reachability/metadata lookup result for one repository.
type RepositoryInfo struct {
	Status        EndpointStatus
	FullName      string
	DefaultBranch string
	Metadata      CallMetadata
}

// CommitItem is one commit summary from the commit list endpoint.
type CommitItem struct {
	SHA        string
	Login      string
	AuthorName string
	Message    string
	HTMLURL    string
	APIURL     string
	AuthoredAt time.Time
}

// CommitsPage is one page of the commit list endpoint. Malformed counts
// items that could not be decoded and were skipped.
type CommitsPage struct {
	Status    EndpointStatus
	Commits   []CommitItem
	Malformed int
	Metadata  CallMetadata
}

// CommitDiff carries per-commit file-change statistics.
type CommitDiff struct {
	Status    EndpointStatus
	Filenames []string
	Total     int
	Metadata  CallMetadata
}

// IssueItem is one item from the combined issues+PRs list endpoint. A
// non-empty PullURL marks the item as a pull request.
type IssueItem struct {
	Number        int
	Title         string
	Body          string
	Labels        []string
	Assignees     []string
	Login         string
	State         string
	CommentsCount int
	CommentsURL   string
	HTMLURL       string
	PullURL       string
	CreatedAt     time.Time
}

// IssuesPage is one page of the combined issues+PRs list endpoint.
type IssuesPage struct {
	Status    EndpointStatus
	Items     []IssueItem
	Malformed int
	Metadata  CallMetadata
}

// Comment is one issue or pull request comment.
type Comment struct {
	Login string
	Body  string
}

// CommentsResult is the typed result of a comment-thread fetch.
type CommentsResult struct {
	Status   EndpointStatus
	Comments []Comment
	Metadata CallMetadata
}

// PullCommitRef references one commit belonging to a pull request.
type PullCommitRef struct {
	SHA    string
	APIURL string
}

// PullCommitsResult is the typed result of a per-PR commit list fetch.
type PullCommitsResult struct {
	Status   EndpointStatus
	Commits  []PullCommitRef
	Metadata CallMetadata
}

// DataClient is a typed GitHub REST data client for the endpoints the
// collectors consume.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// GetRepository looks up one repository's metadata, primarily as a
// reachability check before collection starts.
func (c *DataClient) GetRepository(ctx context.Context, owner, repo string) (RepositoryInfo, error) {
	if err := requireOwnerRepo(owner, repo); err != nil {
		return RepositoryInfo{}, err
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "repos", url.PathEscape(owner), url.PathEscape(repo))

	fetched, err := c.requestClient.FetchJSON(ctx, reqURL.String())
	if err != nil {
		return RepositoryInfo{Metadata: fetched.Metadata}, fmt.Errorf("repository lookup failed: %w", err)
	}

	result := RepositoryInfo{
		Status:   endpointStatusFromHTTP(fetched.StatusCode),
		Metadata: fetched.Metadata,
	}
	if result.Status != EndpointStatusOK {
		return result, nil
	}

	var payload struct {
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.Unmarshal(fetched.Body, &payload); err != nil {
		return result, fmt.Errorf("decode repository payload: %w", err)
	}
	result.FullName = payload.FullName
	result.DefaultBranch = payload.DefaultBranch
	return result, nil
}

// ListCommitsPage reads one page of a repository's commit history, newest
// first, optionally scoped to a branch or ref.
func (c *DataClient) ListCommitsPage(ctx context.Context, owner, repo, branch string, page int) (CommitsPage, error) {
	if err := requireOwnerRepo(owner, repo); err != nil {
		return CommitsPage{}, err
	}
	if page <= 0 {
		return CommitsPage{}, fmt.Errorf("page must be > 0")
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "repos", url.PathEscape(owner), url.PathEscape(repo), "commits")
	query := reqURL.Query()
	query.Set("page", strconv.Itoa(page))
	if strings.TrimSpace(branch) != "" {
		query.Set("sha", strings.TrimSpace(branch))
	}
	reqURL.RawQuery = query.Encode()

	fetched, err := c.requestClient.FetchJSON(ctx, reqURL.String())
	if err != nil {
		return CommitsPage{Metadata: fetched.Metadata}, fmt.Errorf("list commits page %d failed: %w", page, err)
	}

	result := CommitsPage{
		Status:   endpointStatusFromHTTP(fetched.StatusCode),
		Metadata: fetched.Metadata,
	}
	if result.Status != EndpointStatusOK {
		return result, nil
	}

	for _, raw := range decodeArrayItems(fetched.Body) {
		var payload commitListPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			result.Malformed++
			continue
		}
		item := CommitItem{
			SHA:        payload.SHA,
			AuthorName: payload.Commit.Author.Name,
			Message:    payload.Commit.Message,
			HTMLURL:    payload.HTMLURL,
			APIURL:     payload.URL,
			AuthoredAt: parseRFC3339(payload.Commit.Author.Date),
		}
		if payload.Author != nil {
			item.Login = payload.Author.Login
		}
		result.Commits = append(result.Commits, item)
	}
	return result, nil
}

// GetCommitDiff reads one commit's detail by its API URL and reduces it to
// the touched filenames and the total change count.
func (c *DataClient) GetCommitDiff(ctx context.Context, apiURL string) (CommitDiff, error) {
	if strings.TrimSpace(apiURL) == "" {
		return CommitDiff{}, fmt.Errorf("commit url is required")
	}

	fetched, err := c.requestClient.FetchJSON(ctx, apiURL)
	if err != nil {
		return CommitDiff{Metadata: fetched.Metadata}, fmt.Errorf("commit diff fetch failed: %w", err)
	}

	result := CommitDiff{
		Status:   endpointStatusFromHTTP(fetched.StatusCode),
		Metadata: fetched.Metadata,
	}
	if result.Status != EndpointStatusOK {
		return result, nil
	}

	var payload commitDetailPayload
	if err := json.Unmarshal(fetched.Body, &payload); err != nil {
		return result, fmt.Errorf("decode commit diff payload: %w", err)
	}
	for _, file := range payload.Files {
		result.Filenames = append(result.Filenames, file.Filename)
	}
	result.Total = payload.Stats.Total
	return result, nil
}

// ListIssuesPage reads one page of the combined issues+PRs endpoint with
// state filter "all", newest first.
func (c *DataClient) ListIssuesPage(ctx context.Context, owner, repo string, page int) (IssuesPage, error) {
	if err := requireOwnerRepo(owner, repo); err != nil {
		return IssuesPage{}, err
	}
	if page <= 0 {
		return IssuesPage{}, fmt.Errorf("page must be > 0")
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "repos", url.PathEscape(owner), url.PathEscape(repo), "issues")
	query := reqURL.Query()
	query.Set("state", "all")
	query.Set("page", strconv.Itoa(page))
	reqURL.RawQuery = query.Encode()

	fetched, err := c.requestClient.FetchJSON(ctx, reqURL.String())
	if err != nil {
		return IssuesPage{Metadata: fetched.Metadata}, fmt.Errorf("list issues page %d failed: %w", page, err)
	}

	result := IssuesPage{
		Status:   endpointStatusFromHTTP(fetched.StatusCode),
		Metadata: fetched.Metadata,
	}
	if result.Status != EndpointStatusOK {
		return result, nil
	}

	for _, raw := range decodeArrayItems(fetched.Body) {
		var payload issueListPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			result.Malformed++
			continue
		}
		item := IssueItem{
			Number:        payload.Number,
			Title:         payload.Title,
			Body:          payload.Body,
			State:         payload.State,
			CommentsCount: payload.Comments,
			CommentsURL:   payload.CommentsURL,
			HTMLURL:       payload.HTMLURL,
			CreatedAt:     parseRFC3339(payload.CreatedAt),
		}
		if payload.User != nil {
			item.Login = payload.User.Login
		}
		if payload.PullRequest != nil {
			item.PullURL = payload.PullRequest.URL
		}
		for _, label := range payload.Labels {
			item.Labels = append(item.Labels, label.Name)
		}
		for _, assignee := range payload.Assignees {
			item.Assignees = append(item.Assignees, assignee.Login)
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// ListComments reads one item's full comment thread by its API URL.
func (c *DataClient) ListComments(ctx context.Context, commentsURL string) (CommentsResult, error) {
	if strings.TrimSpace(commentsURL) == "" {
		return CommentsResult{}, fmt.Errorf("comments url is required")
	}

	fetched, err := c.requestClient.FetchJSON(ctx, commentsURL)
	if err != nil {
		return CommentsResult{Metadata: fetched.Metadata}, fmt.Errorf("comments fetch failed: %w", err)
	}

	result := CommentsResult{
		Status:   endpointStatusFromHTTP(fetched.StatusCode),
		Metadata: fetched.Metadata,
	}
	if result.Status != EndpointStatusOK {
		return result, nil
	}

	for _, raw := range decodeArrayItems(fetched.Body) {
		var payload commentPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		comment := Comment{Body: payload.Body}
		if payload.User != nil {
			comment.Login = payload.User.Login
		}
		result.Comments = append(result.Comments, comment)
	}
	return result, nil
}

// ListPullCommits reads the commit list of one pull request by the PR's API URL.
func (c *DataClient) ListPullCommits(ctx context.Context, pullURL string) (PullCommitsResult, error) {
	trimmed := strings.TrimSpace(pullURL)
	if trimmed == "" {
		return PullCommitsResult{}, fmt.Errorf("pull request url is required")
	}

	fetched, err := c.requestClient.FetchJSON(ctx, strings.TrimSuffix(trimmed, "/")+"/commits")
	if err != nil {
		return PullCommitsResult{Metadata: fetched.Metadata}, fmt.Errorf("pull commits fetch failed: %w", err)
	}

	result := PullCommitsResult{
		Status:   endpointStatusFromHTTP(fetched.StatusCode),
		Metadata: fetched.Metadata,
	}
	if result.Status != EndpointStatusOK {
		return result, nil
	}

	for _, raw := range decodeArrayItems(fetched.Body) {
		var payload pullCommitPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			continue
		}
		result.Commits = append(result.Commits, PullCommitRef{
			SHA:    payload.SHA,
			APIURL: payload.URL,
		})
	}
	return result, nil
}

func requireOwnerRepo(owner, repo string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if strings.TrimSpace(repo) == "" {
		return fmt.Errorf("repo is required")
	}
	return nil
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusUnauthorized:
		return EndpointStatusUnauthorized
	case http.StatusForbidden, http.StatusTooManyRequests:
		return EndpointStatusForbidden
	case http.StatusNotFound:
		return EndpointStatusNotFound
	case http.StatusConflict:
		return EndpointStatusConflict
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

// decodeArrayItems splits a JSON array body into raw items. A non-array body
// yields no items, which list callers treat as the end of pagination.
func decodeArrayItems(body json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil
	}
	return items
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

type commitListPayload struct {
	SHA     string          `json:"sha"`
	URL     string          `json:"url"`
	HTMLURL string          `json:"html_url"`
	Author  *userPayload    `json:"author"`
	Commit  commitCoreBlock `json:"commit"`
}

type commitCoreBlock struct {
	Message string            `json:"message"`
	Author  commitAuthorBlock `json:"author"`
}

type commitAuthorBlock struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

type commitDetailPayload struct {
	SHA   string `json:"sha"`
	Files []struct {
		Filename string `json:"filename"`
	} `json:"files"`
	Stats struct {
		Total int `json:"total"`
	} `json:"stats"`
}

type issueListPayload struct {
	Number      int            `json:"number"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	State       string         `json:"state"`
	Comments    int            `json:"comments"`
	CommentsURL string         `json:"comments_url"`
	HTMLURL     string         `json:"html_url"`
	CreatedAt   string         `json:"created_at"`
	User        *userPayload   `json:"user"`
	Labels      []labelPayload `json:"labels"`
	Assignees   []userPayload  `json:"assignees"`
	PullRequest *pullLinkBlock `json:"pull_request"`
}

type labelPayload struct {
	Name string `json:"name"`
}

type pullLinkBlock struct {
	URL string `json:"url"`
}

type commentPayload struct {
	Body string       `json:"body"`
	User *userPayload `json:"user"`
}

type pullCommitPayload struct {
	SHA string `json:"sha"`
	URL string `json:"url"`
}

type userPayload struct {
	Login string `json:"login"`
}
