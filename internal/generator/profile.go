package generator

import (
	"fmt"

	"github.com/johndauphine/csv2pg/internal/config"
)

// PerformanceProfile holds the tuning values injected into the loader
// configuration. All values are pre-clamped to safe bounds, so rendering
// never has to second-guess them.
type PerformanceProfile struct {
	Workers           int
	Concurrency       int
	BatchRows         int
	PrefetchRows      int
	WorkMemMB         int64
	MaintenanceWorkMB int64
}

// Profile bounds. The loader misbehaves well before hardware limits are
// reached, so the caps are deliberately conservative.
const (
	minWorkers, maxWorkers         = 1, 16
	minConcurrency, maxConcurrency = 1, 8
	minBatchRows, maxBatchRows     = 10000, 100000
	minPrefetch, maxPrefetch       = 1000, 25000
	minWorkMemMB, maxWorkMemMB     = 64, 2048
	minMaintMemMB, maxMaintMemMB   = 256, 4096
)

// ComputeProfile derives a performance profile from the host resources and
// the input size. Pure: the same inputs always produce the same profile.
func ComputeProfile(res config.HostResources, fileSizeBytes int64) PerformanceProfile {
	workers := clampInt(res.CPUCores, minWorkers, maxWorkers)
	concurrency := clampInt(res.CPUCores/2, minConcurrency, maxConcurrency)

	// Batch sizing follows available memory; large inputs get the full batch
	// even on modest hosts since the loader streams rather than buffers.
	batch := clampInt(int(res.AvailableMemoryMB/1024)*25000, minBatchRows, maxBatchRows)
	if fileSizeBytes > 1<<30 {
		batch = maxBatchRows
	}
	prefetch := clampInt(batch/4, minPrefetch, maxPrefetch)

	return PerformanceProfile{
		Workers:           workers,
		Concurrency:       concurrency,
		BatchRows:         batch,
		PrefetchRows:      prefetch,
		WorkMemMB:         clampInt64(res.AvailableMemoryMB/8, minWorkMemMB, maxWorkMemMB),
		MaintenanceWorkMB: clampInt64(res.AvailableMemoryMB/4, minMaintMemMB, maxMaintMemMB),
	}
}

// formatMem renders a megabyte count the way PostgreSQL session parameters
// expect, using GB for whole gigabytes.
func formatMem(mb int64) string {
	if mb >= 1024 && mb%1024 == 0 {
		return fmt.Sprintf("%dGB", mb/1024)
	}
	return fmt.Sprintf("%dMB", mb)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
