package sqlstore

import (
	"fmt"
	"regexp"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// shiftPlaceholders renumbers a selection.Predicate's $1, $2, ... fragment
// so it can be spliced into a query that already consumes the first n
// positional arguments for its own columns.
func shiftPlaceholders(sql string, n int) string {
	return placeholderRe.ReplaceAllStringFunc(sql, func(m string) string {
		var idx int
		fmt.Sscanf(m, "$%d", &idx)
		return fmt.Sprintf("$%d", idx+n)
	})
}
