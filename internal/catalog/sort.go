package catalog

import (
	"sort"
	"strconv"
)

// SortSummaries orders numeric codes ascending, then non-numeric codes
// lexicographically.
func SortSummaries(list []Summary) {
	sort.SliceStable(list, func(i, j int) bool {
		return codeLess(list[i].Code, list[j].Code)
	})
}

func codeLess(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
