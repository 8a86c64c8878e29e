// Package schema defines the data model shared by the inference, merge, and
// generation stages: column chunks, per-column inferred types, and the final
// table schema handed to the generator.
package schema

import (
	"fmt"
	"strings"
)

// Confidence expresses how sure a provider is about an inferred type.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence normalizes a provider-supplied confidence string.
// Unknown values degrade to medium rather than failing the column.
func ParseConfidence(s string) Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return ConfidenceHigh
	case "low":
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}

// ColumnSample holds the sampled values for one column.
type ColumnSample struct {
	Name       string
	Values     []string
	NullCount  int
	TotalCount int
}

// NullRatio returns the fraction of sampled values that were null or blank.
func (c ColumnSample) NullRatio() float64 {
	if c.TotalCount == 0 {
		return 0
	}
	return float64(c.NullCount) / float64(c.TotalCount)
}

// NonNullValues returns the trimmed, non-blank sampled values.
func (c ColumnSample) NonNullValues() []string {
	out := make([]string, 0, len(c.Values))
	for _, v := range c.Values {
		if strings.TrimSpace(v) != "" {
			out = append(out, strings.TrimSpace(v))
		}
	}
	return out
}

// ColumnChunk is an ordered subset of a CSV's columns submitted together for
// inference. Chunks partition the column list: every column appears in
// exactly one chunk, in original order within the chunk.
type ColumnChunk struct {
	ID          int
	TotalChunks int
	Columns     []string
	Samples     []ColumnSample // parallel to Columns
}

// SampleFor returns the sample for the named column, if present.
func (c ColumnChunk) SampleFor(name string) (ColumnSample, bool) {
	for _, s := range c.Samples {
		if s.Name == name {
			return s, true
		}
	}
	return ColumnSample{}, false
}

// InferredType is a provider's per-column guess. It is ephemeral: merge
// consumes it and produces ColumnSchema.
type InferredType struct {
	ColumnName           string
	PGType               string
	Confidence           Confidence
	Reasoning            string
	Nullable             bool
	Constraints          []string
	CastRule             string
	NeedsArrayConversion bool
}

// IsPrimaryKeyCandidate reports whether the provider flagged this column as
// a primary-key candidate via its constraint list.
func (t InferredType) IsPrimaryKeyCandidate() bool {
	for _, c := range t.Constraints {
		if strings.EqualFold(strings.TrimSpace(c), "PRIMARY KEY") {
			return true
		}
	}
	return false
}

// ColumnSchema is a merged, sanitized column definition. Constraints never
// contain an inline PRIMARY KEY; the key lives on TableSchema.
type ColumnSchema struct {
	Name                 string
	PGType               string
	Nullable             bool
	Constraints          []string
	CastRule             string
	NeedsArrayConversion bool
	UniqueIndex          bool // demoted PK candidate, indexed after load
}

// NeedsCast reports whether the column carries a pgloader cast rule.
func (c ColumnSchema) NeedsCast() bool {
	return c.CastRule != ""
}

// TableSchema is the durable output of merge and the sole input to the
// generator.
type TableSchema struct {
	TableName  string
	Columns    []ColumnSchema
	PrimaryKey string // empty when no key was resolved
}

// Column returns the column with the given name, if present.
func (s *TableSchema) Column(name string) (*ColumnSchema, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the ordered column names.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// KnownPGTypes is the accepted type vocabulary for provider responses.
// Parameterized types are matched on their base name.
var KnownPGTypes = map[string]bool{
	"smallint": true, "integer": true, "int": true, "bigint": true,
	"decimal": true, "numeric": true, "real": true, "double precision": true,
	"smallserial": true, "serial": true, "bigserial": true,
	"money":   true,
	"varchar": true, "char": true, "text": true,
	"bytea":     true,
	"timestamp": true, "timestamptz": true,
	"timestamp with time zone": true, "timestamp without time zone": true,
	"date": true, "time": true, "timetz": true, "interval": true,
	"boolean": true, "bool": true,
	"point": true, "cidr": true, "inet": true, "macaddr": true,
	"uuid": true, "json": true, "jsonb": true, "xml": true,
}

// ValidPGType reports whether a provider-supplied type is in the known
// vocabulary. Array types (text[], integer[]) are deliberately NOT valid:
// CSV-sourced data is loaded as delimited text and converted after load.
func ValidPGType(pgType string) bool {
	base := strings.ToLower(strings.TrimSpace(pgType))
	if strings.HasSuffix(base, "[]") {
		return false
	}
	if i := strings.Index(base, "("); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	return KnownPGTypes[base]
}

// Validate checks structural invariants: at least one column, unique names,
// and a primary key that references an existing column.
func (s *TableSchema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema must have at least one column")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column name: %s", c.Name)
		}
		seen[c.Name] = true
	}
	if s.PrimaryKey != "" && !seen[s.PrimaryKey] {
		return fmt.Errorf("primary key %q not found in columns", s.PrimaryKey)
	}
	return nil
}
