package merge

import (
	"fmt"
	"strings"
)

// resolvePrimaryKey picks exactly one primary key from the candidate set and
// demotes the rest to unique indexes. Candidates are columns the inference
// pass flagged, plus columns whose name matches a configured pattern and
// whose sampled values are all distinct. Ranking: a pattern-matching name
// beats type alone, and a uuid-typed column breaks ties among pattern
// matches, so uuid_id wins over a plain integer id when both are present.
func resolvePrimaryKey(cols []workingColumn, patterns []string) (string, []string) {
	type candidate struct {
		index int
		score int
	}
	var candidates []candidate

	for i := range cols {
		flagged := cols[i].typ.IsPrimaryKeyCandidate()
		patterned := matchesAnyPattern(cols[i].name, patterns)
		if !flagged && !(patterned && sampleValuesUnique(cols[i].sample.NonNullValues())) {
			continue
		}
		score := 0
		if patterned {
			score += 2
		}
		if strings.HasPrefix(cols[i].typ.PGType, "uuid") {
			score++
		}
		candidates = append(candidates, candidate{index: i, score: score})
	}
	if len(candidates) == 0 {
		return "", nil
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.score > best.score {
			best = c
		}
	}

	var warnings []string
	for _, c := range candidates {
		if c.index == best.index {
			continue
		}
		cols[c.index].unique = true
		warnings = append(warnings, fmt.Sprintf(
			"column %q was a primary-key candidate; demoted to unique index in favor of %q",
			cols[c.index].name, cols[best.index].name))
	}
	return cols[best.index].name, warnings
}

// matchesAnyPattern reports whether name matches one of the patterns, where
// "*" matches any run of characters (e.g. "*_id" matches "user_id").
func matchesAnyPattern(name string, patterns []string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if star := strings.IndexByte(p, '*'); star >= 0 {
			prefix, suffix := p[:star], p[star+1:]
			if len(name) >= len(prefix)+len(suffix) &&
				strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}

func sampleValuesUnique(values []string) bool {
	if len(values) < 2 {
		return len(values) == 1
	}
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
