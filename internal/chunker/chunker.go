// Package chunker partitions an ordered column list into bounded chunks for
// inference, keeping name-affine columns (shared prefix before the first
// underscore) together when they fit.
package chunker

import (
	"fmt"
	"strings"

	"github.com/johndauphine/csv2pg/internal/logging"
	"github.com/johndauphine/csv2pg/internal/schema"
)

// Chunk partitions columns into chunks of at most chunkSize, grouping columns
// by name prefix. The result is deterministic: groups form in first-appearance
// order, oversized groups split in column order, and every column lands in
// exactly one chunk.
func Chunk(samples []schema.ColumnSample, chunkSize int) ([]schema.ColumnChunk, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be at least 1, got %d", chunkSize)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no columns to chunk")
	}

	byName := make(map[string]schema.ColumnSample, len(samples))
	order := make([]string, 0, len(samples))
	for _, s := range samples {
		byName[s.Name] = s
		order = append(order, s.Name)
	}

	groups := groupByPrefix(order)

	var chunked [][]string
	var current []string
	for _, group := range groups {
		if len(current)+len(group) > chunkSize {
			if len(current) > 0 {
				chunked = append(chunked, current)
				current = nil
			}
			if len(group) > chunkSize {
				for i := 0; i < len(group); i += chunkSize {
					end := i + chunkSize
					if end > len(group) {
						end = len(group)
					}
					chunked = append(chunked, group[i:end])
				}
			} else {
				current = append([]string(nil), group...)
			}
		} else {
			current = append(current, group...)
		}
	}
	if len(current) > 0 {
		chunked = append(chunked, current)
	}

	chunks := make([]schema.ColumnChunk, len(chunked))
	for i, cols := range chunked {
		colSamples := make([]schema.ColumnSample, len(cols))
		for j, name := range cols {
			colSamples[j] = byName[name]
		}
		chunks[i] = schema.ColumnChunk{
			ID:          i,
			TotalChunks: len(chunked),
			Columns:     cols,
			Samples:     colSamples,
		}
	}

	logging.Debug("split %d columns into %d chunks (size bound %d)",
		len(samples), len(chunks), chunkSize)

	return chunks, nil
}

// groupByPrefix buckets column names by the token before the first underscore
// (names without an underscore share an "other" bucket), preserving the order
// in which each prefix first appears and the column order within a bucket.
func groupByPrefix(columns []string) [][]string {
	index := make(map[string]int)
	var groups [][]string
	for _, col := range columns {
		prefix := "other"
		if i := strings.IndexByte(col, '_'); i > 0 {
			prefix = col[:i]
		}
		gi, ok := index[prefix]
		if !ok {
			gi = len(groups)
			index[prefix] = gi
			groups = append(groups, nil)
		}
		groups[gi] = append(groups[gi], col)
	}
	return groups
}
