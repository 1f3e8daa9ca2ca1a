package gather

import (
	"context"
	"regexp"

	"github.com/coursestats/gather/internal/config"
	"github.com/coursestats/gather/internal/githubapi"
	"github.com/coursestats/gather/internal/milestone"
	"github.com/coursestats/gather/internal/progress"
	"github.com/coursestats/gather/internal/snapshot"
	"go.uber.org/zap"
)

// unknownAuthor is the fallback identity when a commit has neither a linked
// login nor a recorded author name.
const unknownAuthor = "unknown"

var coauthorPattern = regexp.MustCompile(`Co-authored-by: (.*) <.*>`)

// RepoRun carries the per-repository collection state shared by both
// collectors. The diff cache and snapshot are scoped to exactly one run.
type RepoRun struct {
	Target       config.RepositoryTarget
	Branch       string
	Schedule     milestone.Schedule
	Snapshot     *snapshot.Snapshot
	Diffs        *DiffCache
	SnapshotPath string
}

// CommitCollector pages through a repository's commit history, newest first,
// and buckets each commit's attributed identities into milestones.
type CommitCollector struct {
	Client    DataClient
	Writer    snapshot.Writer
	Usernames config.UsernameMap
	Metrics   *progress.Metrics
	Logger    *zap.Logger
}

// Collect gathers commits for one repository. Page fetch failures end the
// collector for this repository only; the returned error is reserved for
// snapshot persistence failures.
func (c *CommitCollector) Collect(ctx context.Context, run *RepoRun) error {
	logger := c.Logger.With(
		zap.String("repo", run.Target.String()),
		zap.String("category", "commits"),
	)
	logger.Info("gathering commits", zap.String("branch", run.Branch))

	for page := 1; ; page++ {
		result, err := c.Client.ListCommitsPage(ctx, run.Target.Owner, run.Target.Name, run.Branch, page)
		c.Metrics.ObserveRequest("list_commits", requestStatus(result.Status, err))
		c.Metrics.ObserveRateLimitWaits(result.Metadata.RateLimitWaits)
		if err != nil {
			logger.Error("commit page fetch failed, ending pagination",
				zap.Int("page", page), zap.Error(err))
			return nil
		}
		if !pageUsable(result.Status, logger, page) {
			return nil
		}
		if result.Malformed > 0 {
			logger.Warn("skipped undecodable commit records",
				zap.Int("page", page), zap.Int("count", result.Malformed))
		}
		if len(result.Commits) == 0 {
			logger.Debug("commit history exhausted", zap.Int("page", page))
			return nil
		}
		c.Metrics.ObservePage("commits")

		seenBefore := false
		collected := 0
		for _, commit := range result.Commits {
			if commit.SHA == "" || commit.AuthoredAt.IsZero() {
				logger.Warn("skipping malformed commit record",
					zap.Int("page", page), zap.String("sha", commit.SHA))
				continue
			}
			if run.Schedule.BeforeCutoff(commit.AuthoredAt) {
				// List order is newest first: nothing older appears again,
				// so the remaining items and pages are all stale.
				seenBefore = true
				break
			}
			bucketIndex, ok := run.Schedule.Classify(commit.AuthoredAt)
			if !ok {
				continue
			}

			diff := run.Diffs.GetOrFetch(commit.SHA, func() DiffStat {
				return c.fetchDiff(ctx, commit.APIURL, commit.SHA, logger)
			})

			activity := snapshot.CommitActivity{
				Message: commit.Message,
				Date:    milestone.DisplayTime(commit.AuthoredAt),
				Link:    commit.HTMLURL,
				Diff:    diff.Summary(),
			}
			bucket := run.Snapshot.Buckets[bucketIndex]
			for _, identity := range commitIdentities(commit) {
				bucket.Commits.Add(identity, c.Usernames.FullName(identity), activity)
				collected++
			}
		}
		c.Metrics.ObserveItems("commits", collected)

		if err := c.Writer.Persist(run.Snapshot, run.SnapshotPath); err != nil {
			return err
		}
		logger.Debug("persisted snapshot after commit page", zap.Int("page", page))

		if seenBefore {
			logger.Debug("reached commits before the cutoff, stopping pagination",
				zap.Int("page", page))
			return nil
		}
	}
}

// fetchDiff resolves one commit's diff statistics, degrading to an empty
// stat when the fetch cannot succeed: partial diff data is preferred over
// losing the containing activity record.
func (c *CommitCollector) fetchDiff(ctx context.Context, apiURL, sha string, logger *zap.Logger) DiffStat {
	result, err := c.Client.GetCommitDiff(ctx, apiURL)
	c.Metrics.ObserveRequest("commit_diff", requestStatus(result.Status, err))
	c.Metrics.ObserveRateLimitWaits(result.Metadata.RateLimitWaits)
	if err != nil || result.Status != githubapi.EndpointStatusOK {
		logger.Error("commit diff fetch failed, recording empty diff",
			zap.String("sha", sha),
			zap.String("status", string(result.Status)),
			zap.Error(err))
		return DiffStat{Filenames: map[string]struct{}{}}
	}

	stat := DiffStat{
		Filenames: make(map[string]struct{}, len(result.Filenames)),
		Total:     result.Total,
	}
	for _, filename := range result.Filenames {
		stat.Filenames[filename] = struct{}{}
	}
	return stat
}

// commitIdentities returns the co-author identities parsed from the commit
// message trailers plus the primary author, in that order. Each identity
// receives its own independent activity record.
func commitIdentities(commit githubapi.CommitItem) []string {
	var identities []string
	for _, match := range coauthorPattern.FindAllStringSubmatch(commit.Message, -1) {
		identities = append(identities, match[1])
	}

	primary := commit.Login
	if primary == "" {
		primary = commit.AuthorName
	}
	if primary == "" {
		primary = unknownAuthor
	}
	return append(identities, primary)
}

// pageUsable reports whether a page fetch outcome allows processing to
// continue, logging the terminal conditions.
func pageUsable(status githubapi.EndpointStatus, logger *zap.Logger, page int) bool {
	switch status {
	case githubapi.EndpointStatusOK:
		return true
	case githubapi.EndpointStatusUnauthorized:
		logger.Error("bad credentials, check your token", zap.Int("page", page))
	case githubapi.EndpointStatusConflict:
		// Empty repositories answer the commit list with a conflict.
		logger.Debug("nothing to list", zap.Int("page", page))
	default:
		logger.Error("page fetch returned terminal status",
			zap.Int("page", page), zap.String("status", string(status)))
	}
	return false
}

func requestStatus(status githubapi.EndpointStatus, err error) string {
	if err != nil {
		return "error"
	}
	return string(status)
}
