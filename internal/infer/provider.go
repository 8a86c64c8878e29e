// Package infer resolves PostgreSQL types for sampled CSV columns. A
// Provider produces per-column guesses for one chunk; the Orchestrator fans
// chunks out concurrently and substitutes the heuristic provider for any
// chunk whose primary provider fails.
package infer

import (
	"context"
	"fmt"

	"github.com/johndauphine/csv2pg/internal/schema"
)

// Provider infers types for the columns of a single chunk. Implementations
// must return exactly one InferredType per chunk column, in any order.
type Provider interface {
	InferChunk(ctx context.Context, chunk schema.ColumnChunk) ([]schema.InferredType, error)
}

// ProviderError classifies an inference failure.
type ProviderError struct {
	Provider  string
	ChunkID   int
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s provider failed on chunk %d (%s): %v", e.Provider, e.ChunkID, kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ValidateChunkResult checks that a provider response covers exactly the
// chunk's columns with known types. Violations are permanent failures.
func ValidateChunkResult(chunk schema.ColumnChunk, types []schema.InferredType) error {
	if len(types) != len(chunk.Columns) {
		return fmt.Errorf("expected %d column types, got %d", len(chunk.Columns), len(types))
	}
	want := make(map[string]bool, len(chunk.Columns))
	for _, c := range chunk.Columns {
		want[c] = true
	}
	for _, t := range types {
		if !want[t.ColumnName] {
			return fmt.Errorf("response contains unknown or duplicate column %q", t.ColumnName)
		}
		delete(want, t.ColumnName)
		if !schema.ValidPGType(t.PGType) {
			return fmt.Errorf("column %q has unknown type %q", t.ColumnName, t.PGType)
		}
	}
	if len(want) > 0 {
		for c := range want {
			return fmt.Errorf("response missing column %q", c)
		}
	}
	return nil
}
