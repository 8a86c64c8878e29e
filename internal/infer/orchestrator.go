package infer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/johndauphine/csv2pg/internal/logging"
	"github.com/johndauphine/csv2pg/internal/schema"
)

// Resolution says how a chunk's types were obtained.
type Resolution int

const (
	// Resolved means the primary provider succeeded.
	Resolved Resolution = iota
	// Degraded means the primary provider failed and the heuristic fallback
	// supplied the types for this chunk.
	Degraded
)

// ChunkOutcome is the result for one chunk after fallback handling.
type ChunkOutcome struct {
	ChunkID    int
	Resolution Resolution
	Types      []schema.InferredType
	// Warning carries the degradation reason when Resolution == Degraded.
	Warning string
}

// Orchestrator fans chunks out to the primary provider with a bounded number
// of in-flight calls, falling back to the heuristic per chunk on failure.
type Orchestrator struct {
	primary     Provider
	fallback    Provider
	maxInflight int
	// OnChunkDone, when set, is called once per resolved chunk. Used for
	// progress reporting; must be safe for concurrent use.
	OnChunkDone func()
}

// NewOrchestrator builds an orchestrator. A nil primary means heuristic-only
// inference; fallback defaults to the heuristic provider.
func NewOrchestrator(primary Provider, maxInflight int) *Orchestrator {
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &Orchestrator{
		primary:     primary,
		fallback:    HeuristicProvider{},
		maxInflight: maxInflight,
	}
}

// Run resolves every chunk, via the primary provider or its fallback. It
// returns either a complete outcome set (one per chunk, in chunk order) or an
// error; partial results are never returned. A provider failure on one chunk
// never aborts the run; only cancellation or an impossible fallback does.
func (o *Orchestrator) Run(ctx context.Context, chunks []schema.ColumnChunk) ([]ChunkOutcome, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to infer")
	}

	outcomes := make([]ChunkOutcome, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxInflight)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			outcome, err := o.resolveChunk(gctx, chunk)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			if o.OnChunkDone != nil {
				o.OnChunkDone()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(outcomes, func(a, b int) bool { return outcomes[a].ChunkID < outcomes[b].ChunkID })
	return outcomes, nil
}

// resolveChunk tries the primary provider, then degrades to the fallback.
// Cancellation is the only error that propagates.
func (o *Orchestrator) resolveChunk(ctx context.Context, chunk schema.ColumnChunk) (ChunkOutcome, error) {
	if err := ctx.Err(); err != nil {
		return ChunkOutcome{}, err
	}

	if o.primary != nil {
		types, err := o.primary.InferChunk(ctx, chunk)
		if err == nil {
			if verr := ValidateChunkResult(chunk, types); verr == nil {
				return ChunkOutcome{ChunkID: chunk.ID, Resolution: Resolved, Types: types}, nil
			} else {
				err = verr
			}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return ChunkOutcome{}, ctx.Err()
			}
		}
		logging.Warn("chunk %d/%d: provider failed, using heuristic fallback: %v",
			chunk.ID+1, chunk.TotalChunks, err)

		types, ferr := o.fallback.InferChunk(ctx, chunk)
		if ferr != nil {
			return ChunkOutcome{}, fmt.Errorf("fallback inference for chunk %d: %w", chunk.ID, ferr)
		}
		return ChunkOutcome{
			ChunkID:    chunk.ID,
			Resolution: Degraded,
			Types:      types,
			Warning:    fmt.Sprintf("chunk %d resolved heuristically: %v", chunk.ID, err),
		}, nil
	}

	types, err := o.fallback.InferChunk(ctx, chunk)
	if err != nil {
		return ChunkOutcome{}, fmt.Errorf("heuristic inference for chunk %d: %w", chunk.ID, err)
	}
	return ChunkOutcome{ChunkID: chunk.ID, Resolution: Resolved, Types: types}, nil
}
