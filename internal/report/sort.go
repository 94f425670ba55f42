package report

import (
	"sort"

	"github.com/defenseunicorns/uds-preflight-scan/pkg/types"
)

// SortRows returns a copy of rows ordered FAILED, NOT_APP, PASSED and then by test case.
// Rows that compare equal keep their scan order.
func SortRows(rows []types.Row) []types.Row {
	sorted := make([]types.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Status.Priority(), sorted[j].Status.Priority()
		if pi != pj {
			return pi < pj
		}
		return sorted[i].TestCase < sorted[j].TestCase
	})
	return sorted
}

// Count tallies rows per status.
func Count(rows []types.Row) map[types.Status]int {
	counts := make(map[types.Status]int, 3)
	for _, r := range rows {
		counts[r.Status]++
	}
	return counts
}
