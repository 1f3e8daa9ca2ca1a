package gather

import (
	"context"

	"github.com/coursestats/gather/internal/config"
	"github.com/coursestats/gather/internal/githubapi"
	"github.com/coursestats/gather/internal/milestone"
	"github.com/coursestats/gather/internal/progress"
	"github.com/coursestats/gather/internal/snapshot"
	"go.uber.org/zap"
)

// IssuePRCollector pages through the combined issues+PRs endpoint, newest
// first, separating pull requests from issues by their pull-request linkage.
type IssuePRCollector struct {
	Client    DataClient
	Writer    snapshot.Writer
	Usernames config.UsernameMap
	Metrics   *progress.Metrics
	Logger    *zap.Logger
}

// Collect gathers issues and/or pull requests for one repository. Items of
// an excluded category are skipped without affecting the cutoff logic. Page
// fetch failures end the collector for this repository only.
func (c *IssuePRCollector) Collect(ctx context.Context, run *RepoRun, includeIssues, includePRs bool) error {
	logger := c.Logger.With(
		zap.String("repo", run.Target.String()),
		zap.String("category", "issues_prs"),
	)
	logger.Info("gathering issues and pull requests",
		zap.Bool("issues", includeIssues), zap.Bool("prs", includePRs))

	for page := 1; ; page++ {
		result, err := c.Client.ListIssuesPage(ctx, run.Target.Owner, run.Target.Name, page)
		c.Metrics.ObserveRequest("list_issues", requestStatus(result.Status, err))
		c.Metrics.ObserveRateLimitWaits(result.Metadata.RateLimitWaits)
		if err != nil {
			logger.Error("issue page fetch failed, ending pagination",
				zap.Int("page", page), zap.Error(err))
			return nil
		}
		if !pageUsable(result.Status, logger, page) {
			return nil
		}
		if result.Malformed > 0 {
			logger.Warn("skipped undecodable issue records",
				zap.Int("page", page), zap.Int("count", result.Malformed))
		}
		if len(result.Items) == 0 {
			logger.Debug("issue list exhausted", zap.Int("page", page))
			return nil
		}
		c.Metrics.ObservePage("issues")

		seenBefore := false
		issues, prs := 0, 0
		for _, item := range result.Items {
			isPR := item.PullURL != ""
			if (isPR && !includePRs) || (!isPR && !includeIssues) {
				continue
			}
			if item.Login == "" || item.CreatedAt.IsZero() {
				logger.Warn("skipping malformed issue record",
					zap.Int("page", page), zap.Int("number", item.Number))
				continue
			}
			if run.Schedule.BeforeCutoff(item.CreatedAt) {
				seenBefore = true
				break
			}
			bucketIndex, ok := run.Schedule.Classify(item.CreatedAt)
			if !ok {
				continue
			}

			activity := c.buildActivity(ctx, item, logger)
			if isPR {
				diff := c.aggregatePullDiff(ctx, run, item, logger)
				activity.Diff = &diff
			}

			bucket := run.Snapshot.Buckets[bucketIndex]
			fullName := c.Usernames.FullName(item.Login)
			if isPR {
				bucket.PRs.Add(item.Login, fullName, activity)
				prs++
			} else {
				bucket.Issues.Add(item.Login, fullName, activity)
				issues++
			}
		}
		c.Metrics.ObserveItems("issues", issues)
		c.Metrics.ObserveItems("prs", prs)

		if err := c.Writer.Persist(run.Snapshot, run.SnapshotPath); err != nil {
			return err
		}
		logger.Debug("persisted snapshot after issue page", zap.Int("page", page))

		if seenBefore {
			logger.Debug("reached issues before the cutoff, stopping pagination",
				zap.Int("page", page))
			return nil
		}
	}
}

func (c *IssuePRCollector) buildActivity(ctx context.Context, item githubapi.IssueItem, logger *zap.Logger) snapshot.IssueActivity {
	labels := append([]string{}, item.Labels...)
	assignees := append([]string{}, item.Assignees...)
	assigneeFullNames := make([]string, 0, len(assignees))
	for _, assignee := range assignees {
		assigneeFullNames = append(assigneeFullNames, c.Usernames.FullName(assignee))
	}

	return snapshot.IssueActivity{
		Title:             item.Title,
		Desc:              item.Body,
		Date:              milestone.DisplayTime(item.CreatedAt),
		Labels:            labels,
		Assignees:         assignees,
		AssigneeFullNames: assigneeFullNames,
		Link:              item.HTMLURL,
		State:             item.State,
		Comments:          c.fetchComments(ctx, item, logger),
	}
}

// fetchComments resolves an item's comment thread when it reports any
// comments. A failure degrades to an empty thread; it never drops the item.
func (c *IssuePRCollector) fetchComments(ctx context.Context, item githubapi.IssueItem, logger *zap.Logger) []snapshot.CommentRecord {
	comments := []snapshot.CommentRecord{}
	if item.CommentsCount <= 0 {
		return comments
	}

	result, err := c.Client.ListComments(ctx, item.CommentsURL)
	c.Metrics.ObserveRequest("list_comments", requestStatus(result.Status, err))
	c.Metrics.ObserveRateLimitWaits(result.Metadata.RateLimitWaits)
	if err != nil || result.Status != githubapi.EndpointStatusOK {
		logger.Error("comment fetch failed, recording empty thread",
			zap.Int("number", item.Number),
			zap.String("status", string(result.Status)),
			zap.Error(err))
		return comments
	}

	for _, comment := range result.Comments {
		comments = append(comments, snapshot.CommentRecord{
			Author:         comment.Login,
			AuthorFullName: c.Usernames.FullName(comment.Login),
			Body:           comment.Body,
		})
	}
	return comments
}

// aggregatePullDiff resolves every commit of a pull request through the
// shared diff cache and aggregates: total is the sum of change counts, files
// is the size of the union of touched filenames, so a file edited by several
// commits of the same PR is counted once.
func (c *IssuePRCollector) aggregatePullDiff(ctx context.Context, run *RepoRun, item githubapi.IssueItem, logger *zap.Logger) snapshot.DiffSummary {
	result, err := c.Client.ListPullCommits(ctx, item.PullURL)
	c.Metrics.ObserveRequest("pull_commits", requestStatus(result.Status, err))
	c.Metrics.ObserveRateLimitWaits(result.Metadata.RateLimitWaits)
	if err != nil || result.Status != githubapi.EndpointStatusOK {
		logger.Error("pull commit list fetch failed, recording empty diff",
			zap.Int("number", item.Number),
			zap.String("status", string(result.Status)),
			zap.Error(err))
		return snapshot.DiffSummary{}
	}

	union := make(map[string]struct{})
	total := 0
	for _, ref := range result.Commits {
		diff := run.Diffs.GetOrFetch(ref.SHA, func() DiffStat {
			return c.fetchDiff(ctx, ref.APIURL, ref.SHA, logger)
		})
		total += diff.Total
		for filename := range diff.Filenames {
			union[filename] = struct{}{}
		}
	}
	return snapshot.DiffSummary{
		Files: len(union),
		Total: total,
	}
}

func (c *IssuePRCollector) fetchDiff(ctx context.Context, apiURL, sha string, logger *zap.Logger) DiffStat {
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
