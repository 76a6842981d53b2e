package applications

import (
	"fmt"
	"strings"
)

// StatusFilter narrows a listing to one status, or none.
type StatusFilter string

// FilterAll disables status filtering.
const FilterAll StatusFilter = "all"

// ParseStatusFilter accepts "all" (or blank) and the three statuses.
func ParseStatusFilter(raw string) (StatusFilter, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || v == string(FilterAll) {
		return FilterAll, nil
	}
	if !Status(v).Valid() {
		return "", fmt.Errorf("unknown status filter %q", raw)
	}
	return StatusFilter(v), nil
}

// Matches reports whether status passes the filter.
func (f StatusFilter) Matches(status Status) bool {
	return f == "" || f == FilterAll || Status(f) == status
}

// Filter returns, in their original order, the applications whose name, email
// or roll number contains search (case-insensitive) and whose status passes
// the filter. The input slice is not modified.
func Filter(apps []Application, search string, status StatusFilter) []Application {
	needle := strings.ToLower(search)
	out := make([]Application, 0, len(apps))
	for _, app := range apps {
		if !status.Matches(app.Status) {
			continue
		}
		if needle != "" && !matchesSearch(app, needle) {
			continue
		}
		out = append(out, app)
	}
	return out
}

func matchesSearch(app Application, needle string) bool {
	return strings.Contains(strings.ToLower(app.Name), needle) ||
		strings.Contains(strings.ToLower(app.Email), needle) ||
		strings.Contains(strings.ToLower(app.RollNumber), needle)
}
