package gather

import (
	"context"

	"github.com/coursestats/gather/internal/githubapi"
)

// DataClient is the typed GitHub API surface the collectors consume.
type DataClient interface {
	ListCommitsPage(ctx context.Context, owner, repo, branch string, page int) (githubapi.CommitsPage, error)
	GetCommitDiff(ctx context.Context, apiURL string) (githubapi.CommitDiff, error)
	ListIssuesPage(ctx context.Context, owner, repo string, page int) (githubapi.IssuesPage, error)
	ListComments(ctx context.Context, commentsURL string) (githubapi.CommentsResult, error)
	ListPullCommits(ctx context.Context, pullURL string) (githubapi.PullCommitsResult, error)
}

// RepositoryChecker verifies a repository target is reachable before
// collection starts.
type RepositoryChecker interface {
	CheckRepository(ctx context.Context, owner, repo string) (RepositoryCheck, error)
}

// RepositoryCheck is the reachability lookup outcome.
type RepositoryCheck struct {
	Reachable     bool
	NotFound      bool
	FullName      string
	DefaultBranch string
}
