package zmailbox

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// equalFold compares folder names the way the server does, using full
// Unicode case folding.
func equalFold(a, b string) bool {
	if a == b {
		return true
	}
	// Casers keep state and are not safe for concurrent use.
	c := cases.Fold()
	return c.String(a) == c.String(b)
}

// splitIDs splits a comma separated id list, dropping empty elements.
func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// sortedCopy returns a sorted copy of ids.
func sortedCopy(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

// quoteQuery quotes a value for use inside a search query.
func quoteQuery(s string) string {
	return strconv.Quote(s)
}
