package infer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/johndauphine/csv2pg/internal/schema"
)

// scriptedProvider succeeds or fails per chunk ID.
type scriptedProvider struct {
	mu       sync.Mutex
	failIDs  map[int]bool
	inflight atomic.Int32
	peak     atomic.Int32
	block    chan struct{} // when set, calls wait here
}

func (p *scriptedProvider) InferChunk(ctx context.Context, chunk schema.ColumnChunk) ([]schema.InferredType, error) {
	cur := p.inflight.Add(1)
	defer p.inflight.Add(-1)
	for {
		old := p.peak.Load()
		if cur <= old || p.peak.CompareAndSwap(old, cur) {
			break
		}
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	fail := p.failIDs[chunk.ID]
	p.mu.Unlock()
	if fail {
		return nil, &ProviderError{Provider: "scripted", ChunkID: chunk.ID, Err: errors.New("oracle rejected the chunk")}
	}
	out := make([]schema.InferredType, len(chunk.Columns))
	for i, name := range chunk.Columns {
		out[i] = schema.InferredType{
			ColumnName: name, PGType: "text", Confidence: schema.ConfidenceHigh,
			Reasoning: "scripted",
		}
	}
	return out, nil
}

func makeChunks(n, colsPer int) []schema.ColumnChunk {
	chunks := make([]schema.ColumnChunk, n)
	for i := range chunks {
		chunks[i] = schema.ColumnChunk{ID: i, TotalChunks: n}
		for j := 0; j < colsPer; j++ {
			name := string(rune('a'+i)) + "_" + string(rune('a'+j))
			chunks[i].Columns = append(chunks[i].Columns, name)
			chunks[i].Samples = append(chunks[i].Samples, schema.ColumnSample{
				Name: name, Values: []string{"7", "8"}, TotalCount: 2,
			})
		}
	}
	return chunks
}

// One chunk failing permanently must degrade that chunk only, not the run.
func TestRunDegradesFailedChunkLocally(t *testing.T) {
	provider := &scriptedProvider{failIDs: map[int]bool{1: true}}
	orch := NewOrchestrator(provider, 2)

	chunks := makeChunks(3, 2)
	outcomes, err := orch.Run(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("len(outcomes) = %d, want 3", len(outcomes))
	}
	for i, o := range outcomes {
		if o.ChunkID != i {
			t.Errorf("outcome %d has chunk ID %d", i, o.ChunkID)
		}
		if len(o.Types) != len(chunks[i].Columns) {
			t.Errorf("chunk %d: %d types, want %d", i, len(o.Types), len(chunks[i].Columns))
		}
	}
	if outcomes[0].Resolution != Resolved || outcomes[2].Resolution != Resolved {
		t.Error("healthy chunks must stay Resolved")
	}
	if outcomes[1].Resolution != Degraded {
		t.Fatal("failed chunk must be Degraded")
	}
	if outcomes[1].Warning == "" || !strings.Contains(outcomes[1].Warning, "chunk 1") {
		t.Errorf("degraded outcome warning = %q", outcomes[1].Warning)
	}
	// Degraded chunk types come from the heuristic; "7"/"8" samples are integers.
	if outcomes[1].Types[0].PGType != "integer" {
		t.Errorf("degraded type = %s, want heuristic integer", outcomes[1].Types[0].PGType)
	}
}

// A provider that returns the wrong columns is caught by validation and
// degraded like any other failure.
func TestRunDegradesInvalidResponse(t *testing.T) {
	bad := providerFunc(func(ctx context.Context, chunk schema.ColumnChunk) ([]schema.InferredType, error) {
		return []schema.InferredType{{ColumnName: "not_in_chunk", PGType: "text"}}, nil
	})
	orch := NewOrchestrator(bad, 1)

	outcomes, err := orch.Run(context.Background(), makeChunks(1, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcomes[0].Resolution != Degraded {
		t.Error("invalid response must degrade the chunk")
	}
}

func TestRunBoundsInflightCalls(t *testing.T) {
	provider := &scriptedProvider{block: make(chan struct{})}
	orch := NewOrchestrator(provider, 2)

	done := make(chan struct{})
	go func() {
		defer close(done)
		orch.Run(context.Background(), makeChunks(8, 1))
	}()

	time.Sleep(50 * time.Millisecond)
	close(provider.block)
	<-done

	if peak := provider.peak.Load(); peak > 2 {
		t.Errorf("peak in-flight calls = %d, want <= 2", peak)
	}
}

func TestRunPropagatesCancellation(t *testing.T) {
	provider := &scriptedProvider{block: make(chan struct{})}
	orch := NewOrchestrator(provider, 4)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := orch.Run(ctx, makeChunks(4, 1))
		errc <- err
	}()

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunRejectsEmptyInput(t *testing.T) {
	orch := NewOrchestrator(nil, 2)
	if _, err := orch.Run(context.Background(), nil); err == nil {
		t.Error("expected error for empty chunk list")
	}
}

func TestRunHeuristicOnly(t *testing.T) {
	orch := NewOrchestrator(nil, 2)
	outcomes, err := orch.Run(context.Background(), makeChunks(2, 2))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, o := range outcomes {
		if o.Resolution != Resolved {
			t.Errorf("chunk %d resolution = %v, want Resolved", o.ChunkID, o.Resolution)
		}
	}
}

// providerFunc adapts a function to the Provider interface.
type providerFunc func(context.Context, schema.ColumnChunk) ([]schema.InferredType, error)

func (f providerFunc) InferChunk(ctx context.Context, chunk schema.ColumnChunk) ([]schema.InferredType, error) {
	return f(ctx, chunk)
}
