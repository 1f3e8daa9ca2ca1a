package gather

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// RenderSummary prints a per-repository, per-milestone count table for the
// completed run. Skipped repositories appear as a single row with the reason
// in place of counts.
func RenderSummary(w io.Writer, results []RepoResult) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Repository", "Milestone", "Commits", "Issues", "PRs"})

	var data [][]string
	for _, result := range results {
		if result.Skipped {
			data = append(data, []string{
				result.Target.String(), "skipped: " + result.SkipReason, "-", "-", "-",
			})
			continue
		}
		for _, counts := range result.Milestones {
			data = append(data, []string{
				result.Target.String(),
				counts.Date,
				strconv.Itoa(counts.Commits),
				strconv.Itoa(counts.Issues),
				strconv.Itoa(counts.PRs),
			})
		}
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}
