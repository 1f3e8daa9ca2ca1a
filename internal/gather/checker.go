package gather

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coursestats/gather/internal/githubapi"
)

// restRepositoryChecker performs the reachability lookup through the
// go-github REST client.
type restRepositoryChecker struct {
	rest *githubapi.RESTClient
}

// NewRepositoryChecker wraps a go-github REST client as a RepositoryChecker.
func NewRepositoryChecker(rest *githubapi.RESTClient) RepositoryChecker {
	return &restRepositoryChecker{rest: rest}
}

func (c *restRepositoryChecker) CheckRepository(ctx context.Context, owner, repo string) (RepositoryCheck, error) {
	if c.rest == nil || c.rest.Client == nil {
		return RepositoryCheck{}, fmt.Errorf("rest client is required")
	}

	repository, resp, err := c.rest.Client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return RepositoryCheck{NotFound: true}, nil
		}
		return RepositoryCheck{}, fmt.Errorf("repository lookup %s/%s: %w", owner, repo, err)
	}

	return RepositoryCheck{
		Reachable:     true,
		FullName:      repository.GetFullName(),
		DefaultBranch: repository.GetDefaultBranch(),
	}, nil
}
