// Package gather implements the collection pipeline: paging repository
// activity out of the GitHub API, bucketing it by milestone and persisting
// per-repository snapshots.
package gather

import (
	"context"
	"path/filepath"

	"github.com/coursestats/gather/internal/config"
	"github.com/coursestats/gather/internal/milestone"
	"github.com/coursestats/gather/internal/progress"
	"github.com/coursestats/gather/internal/snapshot"
	"go.uber.org/zap"
)

// Orchestrator runs the collection pipeline over the configured repository
// targets, one at a time, in configuration order.
type Orchestrator struct {
	Checker    RepositoryChecker
	Commits    *CommitCollector
	Issues     *IssuePRCollector
	Writer     snapshot.Writer
	Schedule   milestone.Schedule
	Categories config.CategoriesConfig
	OutputDir  string

	// BranchOverride, when set, replaces the commit ref for every target
	// that does not pin its own branch.
	BranchOverride string

	Metrics *progress.Metrics
	Logger  *zap.Logger
}

// MilestoneCounts is the per-bucket record count triple for one repository.
type MilestoneCounts struct {
	Date    string
	Commits int
	Issues  int
	PRs     int
}

// RepoResult describes the outcome of one repository target.
type RepoResult struct {
	Target     config.RepositoryTarget
	Skipped    bool
	SkipReason string
	Milestones []MilestoneCounts
}

// Run processes every target. A failing repository is reported in its result
// and never aborts the remaining targets.
func (o *Orchestrator) Run(ctx context.Context, targets []config.RepositoryTarget) []RepoResult {
	results := make([]RepoResult, 0, len(targets))
	for _, target := range targets {
		results = append(results, o.runRepository(ctx, target))
	}
	return results
}

func (o *Orchestrator) runRepository(ctx context.Context, target config.RepositoryTarget) RepoResult {
	logger := o.Logger.With(zap.String("repo", target.String()))

	check, err := o.Checker.CheckRepository(ctx, target.Owner, target.Name)
	if err != nil {
		logger.Error("repository lookup failed, skipping", zap.Error(err))
		o.Metrics.ObserveRepoSkipped()
		return RepoResult{Target: target, Skipped: true, SkipReason: "lookup failed"}
	}
	if check.NotFound {
		logger.Warn("repository not found, skipping")
		o.Metrics.ObserveRepoSkipped()
		return RepoResult{Target: target, Skipped: true, SkipReason: "not found"}
	}

	run := &RepoRun{
		Target:       target,
		Branch:       o.branchFor(target),
		Schedule:     o.Schedule,
		Snapshot:     snapshot.New(o.Schedule.Milestones),
		Diffs:        NewDiffCache(),
		SnapshotPath: filepath.Join(o.OutputDir, target.Slug()+".json"),
	}
	logger.Info("processing repository",
		zap.String("full_name", check.FullName),
		zap.String("branch", run.Branch),
		zap.String("snapshot", run.SnapshotPath))

	if o.Categories.Commits {
		if err := o.Commits.Collect(ctx, run); err != nil {
			logger.Error("commit collection aborted", zap.Error(err))
			o.Metrics.ObserveRepoSkipped()
			return RepoResult{Target: target, Skipped: true, SkipReason: "persist failed"}
		}
	}
	if o.Categories.Issues || o.Categories.PRs {
		if err := o.Issues.Collect(ctx, run, o.Categories.Issues, o.Categories.PRs); err != nil {
			logger.Error("issue collection aborted", zap.Error(err))
			o.Metrics.ObserveRepoSkipped()
			return RepoResult{Target: target, Skipped: true, SkipReason: "persist failed"}
		}
	}

	run.Snapshot.Finalize()
	if err := o.Writer.Persist(run.Snapshot, run.SnapshotPath); err != nil {
		logger.Error("final snapshot persist failed", zap.Error(err))
		o.Metrics.ObserveRepoSkipped()
		return RepoResult{Target: target, Skipped: true, SkipReason: "persist failed"}
	}
	o.Metrics.ObserveRepoProcessed()

	result := RepoResult{Target: target}
	for _, bucket := range run.Snapshot.Buckets {
		counts := MilestoneCounts{
			Date:    bucket.Date,
			Commits: bucket.Commits.Total(),
			Issues:  bucket.Issues.Total(),
			PRs:     bucket.PRs.Total(),
		}
		result.Milestones = append(result.Milestones, counts)
		logger.Info("milestone gathered",
			zap.String("milestone", counts.Date),
			zap.Int("commits", counts.Commits),
			zap.Int("issues", counts.Issues),
			zap.Int("prs", counts.PRs))
	}
	return result
}

// branchFor resolves the commit ref: a branch pinned on the target wins, the
// global override comes next, and an empty ref lets the API use the
// repository's default branch.
func (o *Orchestrator) branchFor(target config.RepositoryTarget) string {
	if target.Branch != "" {
		return target.Branch
	}
	return o.BranchOverride
}
