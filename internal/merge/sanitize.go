package merge

import (
	"fmt"
	"regexp"
	"strings"
)

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// dedupeAttempts bounds the numeric-suffix search for colliding names.
const dedupeAttempts = 1000

// sanitizeNames rewrites every column name into a valid PostgreSQL
// identifier: lowercase, invalid characters replaced with underscores, a
// leading non-letter prefixed, reserved words suffixed, and duplicates
// disambiguated with numeric suffixes. Sanitizing an already-clean name is a
// no-op, so the pass is idempotent.
func sanitizeNames(cols []workingColumn, reserved []string) ([]string, []ColumnIssue) {
	reservedSet := make(map[string]bool, len(reserved))
	for _, w := range reserved {
		reservedSet[strings.ToLower(w)] = true
	}

	var warnings []string
	var issues []ColumnIssue
	taken := make(map[string]bool, len(cols))

	for i := range cols {
		name := sanitizeIdentifier(cols[i].original)
		if reservedSet[name] {
			name += "_col"
		}
		if taken[name] {
			resolved := ""
			for n := 2; n <= dedupeAttempts; n++ {
				candidate := fmt.Sprintf("%s_%d", name, n)
				if !taken[candidate] {
					resolved = candidate
					break
				}
			}
			if resolved == "" {
				issues = append(issues, ColumnIssue{Column: cols[i].original,
					Detail: fmt.Sprintf("could not disambiguate duplicate name %q", name)})
				continue
			}
			name = resolved
		}
		taken[name] = true
		cols[i].name = name
		if name != cols[i].original {
			warnings = append(warnings, fmt.Sprintf("column %q renamed to %q", cols[i].original, name))
		}
	}
	return warnings, issues
}

func sanitizeIdentifier(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	var sb strings.Builder
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	name := sb.String()
	if name == "" {
		return "_"
	}
	if c := name[0]; c >= '0' && c <= '9' {
		name = "_" + name
	}
	return name
}
