package infer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/johndauphine/csv2pg/internal/schema"
)

// HeuristicProvider infers types by pattern-matching sampled values. It is a
// pure function of its input: no network, no randomness, never fails.
type HeuristicProvider struct{}

var (
	uuidPattern      = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}`)
	emailPattern     = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

var booleanValues = map[string]bool{
	"true": true, "false": true, "t": true, "f": true,
	"yes": true, "no": true, "y": true, "n": true, "1": true, "0": true,
}

// InferChunk infers every column of the chunk heuristically.
func (HeuristicProvider) InferChunk(_ context.Context, chunk schema.ColumnChunk) ([]schema.InferredType, error) {
	out := make([]schema.InferredType, len(chunk.Samples))
	for i, sample := range chunk.Samples {
		out[i] = InferColumn(sample)
	}
	return out, nil
}

// InferColumn is the heuristic for a single column. Patterns are checked in a
// fixed order; the first one matched by every non-null value wins.
func InferColumn(col schema.ColumnSample) schema.InferredType {
	values := col.NonNullValues()
	nullable := col.NullCount > 0

	if len(values) == 0 {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     "text",
			Confidence: schema.ConfidenceLow,
			Reasoning:  "all values are null, defaulting to text",
			Nullable:   true,
		}
	}
	if len(values) > 100 {
		values = values[:100]
	}

	if matchAll(values, uuidPattern.MatchString) {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     "uuid",
			Confidence: schema.ConfidenceHigh,
			Reasoning:  "all values match UUID pattern",
			Nullable:   nullable,
		}
	}

	if matchAll(values, func(v string) bool { return booleanValues[strings.ToLower(v)] }) {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     "boolean",
			Confidence: schema.ConfidenceHigh,
			Reasoning:  "all values are boolean-like",
			Nullable:   nullable,
		}
	}

	if typ, ok := integerType(values); ok {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     typ,
			Confidence: schema.ConfidenceHigh,
			Reasoning:  "all values are integers",
			Nullable:   nullable,
		}
	}

	if matchAll(values, isFloat) {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     "numeric",
			Confidence: schema.ConfidenceMedium,
			Reasoning:  "all values are numeric with decimal points",
			Nullable:   nullable,
		}
	}

	if matchAll(values, datePattern.MatchString) {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     "date",
			Confidence: schema.ConfidenceHigh,
			Reasoning:  "all values match date pattern (YYYY-MM-DD)",
			Nullable:   nullable,
		}
	}

	if matchAll(values, timestampPattern.MatchString) {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     "timestamptz",
			Confidence: schema.ConfidenceHigh,
			Reasoning:  "all values match timestamp pattern",
			Nullable:   nullable,
		}
	}

	if matchAll(values, emailPattern.MatchString) {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     "text",
			Confidence: schema.ConfidenceMedium,
			Reasoning:  "all values match email pattern",
			Nullable:   nullable,
		}
	}

	maxLen := 0
	for _, v := range values {
		if len(v) > maxLen {
			maxLen = len(v)
		}
	}
	if maxLen < 255 {
		return schema.InferredType{
			ColumnName: col.Name,
			PGType:     fmt.Sprintf("varchar(%d)", maxLen+50),
			Confidence: schema.ConfidenceMedium,
			Reasoning:  fmt.Sprintf("string values with max length %d", maxLen),
			Nullable:   nullable,
		}
	}
	return schema.InferredType{
		ColumnName: col.Name,
		PGType:     "text",
		Confidence: schema.ConfidenceMedium,
		Reasoning:  fmt.Sprintf("string values with max length %d", maxLen),
		Nullable:   nullable,
	}
}

func matchAll(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func isFloat(v string) bool {
	_, err := strconv.ParseFloat(v, 64)
	return err == nil
}

// integerType reports whether every value parses as an integer, and whether
// the observed range fits PostgreSQL's 4-byte integer.
func integerType(values []string) (string, bool) {
	var min, max int64
	for i, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", false
		}
		if i == 0 || n < min {
			min = n
		}
		if i == 0 || n > max {
			max = n
		}
	}
	if min >= -2147483648 && max <= 2147483647 {
		return "integer", true
	}
	return "bigint", true
}
