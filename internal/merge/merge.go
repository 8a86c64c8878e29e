// Package merge combines per-chunk inference results into one validated
// TableSchema. Per-chunk guesses are independently produced and possibly
// oracle-sourced, so nothing guarantees global consistency until this pass:
// names are sanitized and deduplicated, exactly one primary key survives,
// array-looking columns are forced to text, numeric precision is corrected
// against the sample evidence, and nullability is made conservative.
package merge

import (
	"fmt"
	"strings"

	"github.com/johndauphine/csv2pg/internal/infer"
	"github.com/johndauphine/csv2pg/internal/logging"
	"github.com/johndauphine/csv2pg/internal/schema"
)

// Options carries the policy knobs that are configuration, not code.
type Options struct {
	// ReservedWords are identifiers that must not be used bare as column names.
	ReservedWords []string
	// PKNamePatterns rank primary-key candidates by name; "*" matches any run
	// of characters (e.g. "*_id").
	PKNamePatterns []string
	// MinNullSample is the smallest sample size that justifies NOT NULL for a
	// column with zero observed nulls.
	MinNullSample int
}

// ColumnIssue is one blocking problem, tied to the column that caused it.
type ColumnIssue struct {
	Column string
	Detail string
}

// ValidationError is the fatal outcome of merge: one or more invariants could
// not be satisfied. It carries full column-level detail and is never
// auto-repaired.
type ValidationError struct {
	Issues []ColumnIssue
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("schema validation failed with %d issue(s):", len(e.Issues)))
	for _, issue := range e.Issues {
		sb.WriteString(fmt.Sprintf("\n  column %q: %s", issue.Column, issue.Detail))
	}
	return sb.String()
}

// Result is the successful output of merge.
type Result struct {
	Schema   *schema.TableSchema
	Warnings []string
}

// Merge combines chunk outcomes into a single validated schema. headers fixes
// the column order (chunk affinity grouping may have reordered them); samples
// supply the evidence for the sample-driven corrections.
func Merge(tableName string, headers []string, outcomes []infer.ChunkOutcome, samples []schema.ColumnSample, opts Options) (*Result, error) {
	if opts.MinNullSample < 1 {
		opts.MinNullSample = 50
	}

	var warnings []string

	inferred := make(map[string]schema.InferredType, len(headers))
	for _, outcome := range outcomes {
		if outcome.Resolution == infer.Degraded {
			warnings = append(warnings, outcome.Warning)
		}
		for _, t := range outcome.Types {
			inferred[t.ColumnName] = t
		}
	}

	sampleByName := make(map[string]schema.ColumnSample, len(samples))
	for _, s := range samples {
		sampleByName[s.Name] = s
	}

	var issues []ColumnIssue

	// Assemble columns in original header order.
	cols := make([]workingColumn, 0, len(headers))
	for _, h := range headers {
		t, ok := inferred[h]
		if !ok {
			issues = append(issues, ColumnIssue{Column: h, Detail: "no inference result for column"})
			continue
		}
		cols = append(cols, workingColumn{
			original: h,
			typ:      t,
			sample:   sampleByName[h],
		})
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	// Step 1: name sanitization.
	renameWarnings, nameIssues := sanitizeNames(cols, opts.ReservedWords)
	warnings = append(warnings, renameWarnings...)
	issues = append(issues, nameIssues...)

	// Step 2: primary-key resolution.
	pk, pkWarnings := resolvePrimaryKey(cols, opts.PKNamePatterns)
	warnings = append(warnings, pkWarnings...)

	// Step 3: array reclassification.
	warnings = append(warnings, reclassifyArrays(cols)...)

	// Step 4: numeric precision correction.
	warnings = append(warnings, correctNumerics(cols)...)

	// Step 5: nullability conservatism.
	applyNullability(cols, pk, opts.MinNullSample)

	out := &schema.TableSchema{
		TableName:  tableName,
		Columns:    make([]schema.ColumnSchema, len(cols)),
		PrimaryKey: pk,
	}
	for i, c := range cols {
		out.Columns[i] = c.finish()
	}

	issues = append(issues, checkInvariants(out)...)
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	logging.Info("merged %d columns into schema for %q (primary key: %s)",
		len(out.Columns), tableName, orNone(pk))

	return &Result{Schema: out, Warnings: warnings}, nil
}

// workingColumn is the mutable per-column state while merging.
type workingColumn struct {
	original  string
	name      string
	typ       schema.InferredType
	sample    schema.ColumnSample
	unique    bool // demoted PK candidate, gets a unique index
	arrayText bool
	notNull   bool
}

func (c workingColumn) finish() schema.ColumnSchema {
	constraints := make([]string, 0, len(c.typ.Constraints))
	for _, con := range c.typ.Constraints {
		// The primary key never appears inline; it lives on the table.
		if strings.EqualFold(strings.TrimSpace(con), "PRIMARY KEY") {
			continue
		}
		constraints = append(constraints, con)
	}
	return schema.ColumnSchema{
		Name:                 c.name,
		PGType:               c.typ.PGType,
		Nullable:             !c.notNull,
		Constraints:          constraints,
		CastRule:             c.typ.CastRule,
		NeedsArrayConversion: c.arrayText,
		UniqueIndex:          c.unique,
	}
}

// checkInvariants verifies the always-true properties one last time. A
// violation here is a blocking error, never silently repaired.
func checkInvariants(s *schema.TableSchema) []ColumnIssue {
	var issues []ColumnIssue
	seen := make(map[string]string, len(s.Columns))
	for _, c := range s.Columns {
		if !identifierPattern.MatchString(c.Name) {
			issues = append(issues, ColumnIssue{Column: c.Name, Detail: "sanitized name is not a valid identifier"})
		}
		if prev, dup := seen[c.Name]; dup {
			issues = append(issues, ColumnIssue{Column: c.Name,
				Detail: fmt.Sprintf("name collision with column %q could not be resolved", prev)})
		}
		seen[c.Name] = c.Name
		if c.NeedsArrayConversion && c.PGType != "text" {
			issues = append(issues, ColumnIssue{Column: c.Name,
				Detail: fmt.Sprintf("array-conversion column must be text, got %s", c.PGType)})
		}
	}
	if s.PrimaryKey != "" {
		if _, ok := s.Column(s.PrimaryKey); !ok {
			issues = append(issues, ColumnIssue{Column: s.PrimaryKey, Detail: "primary key references no column"})
		}
	}
	return issues
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
