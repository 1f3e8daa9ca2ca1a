package gather

import "github.com/coursestats/gather/internal/snapshot"

// DiffStat is the per-commit file-change statistic keyed by commit SHA.
type DiffStat struct {
	Filenames map[string]struct{}
	Total     int
}

// Summary projects the stat into its persisted form.
func (d DiffStat) Summary() snapshot.DiffSummary {
	return snapshot.DiffSummary{
		Files: len(d.Filenames),
		Total: d.Total,
	}
}

// DiffCache memoizes diff statistics for one repository's collection run. A
// commit referenced by both the commit list and a pull request's commit list
// is fetched at most once; repeated fetches would multiply rate-limit
// consumption. Degraded (empty) results are cached too, matching the
// at-most-one-fetch contract.
type DiffCache struct {
	stats map[string]DiffStat
}

// NewDiffCache creates an empty cache scoped to one repository run.
func NewDiffCache() *DiffCache {
	return &DiffCache{stats: make(map[string]DiffStat)}
}

// GetOrFetch returns the cached stat for the SHA, invoking fetch exactly
// once per distinct SHA across all call sites.
func (c *DiffCache) GetOrFetch(sha string, fetch func() DiffStat) DiffStat {
	if hit, ok := c.stats[sha]; ok {
		return hit
	}
	stat := fetch()
	c.stats[sha] = stat
	return stat
}

// Len reports the number of resolved SHAs.
func (c *DiffCache) Len() int {
	return len(c.stats)
}
