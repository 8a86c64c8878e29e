// Package state persists the import lifecycle as a JSON state file. Every
// mutation goes through the Manager, which writes atomically (temp file plus
// rename) so a reader never observes a half-written state.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/johndauphine/csv2pg/internal/logging"
)

// Version is the state-file schema version this build reads and writes.
const Version = "1.0"

// Status is the coarse run status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Phase is the fine-grained pipeline position.
type Phase string

const (
	PhaseSampling   Phase = "sampling"
	PhaseSampled    Phase = "sampled"
	PhaseInferring  Phase = "inferring"
	PhaseInferred   Phase = "inferred"
	PhaseGenerating Phase = "generating"
	PhaseGenerated  Phase = "generated"
	PhaseImporting  Phase = "importing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// phaseRank orders the phases for the monotonicity check. The failed phase
// has no rank: it is reachable from anywhere and only via MarkFailed.
var phaseRank = map[Phase]int{
	PhaseSampling:   1,
	PhaseSampled:    2,
	PhaseInferring:  3,
	PhaseInferred:   4,
	PhaseGenerating: 5,
	PhaseGenerated:  6,
	PhaseImporting:  7,
	PhaseCompleted:  8,
}

// Progress tracks bulk-load counters. Only start and terminal status of the
// external load are observed, so these update coarsely.
type Progress struct {
	RowsLoaded int64   `json:"rows_loaded"`
	RowsTotal  int64   `json:"rows_total"`
	Percent    float64 `json:"percent"`
}

// ImportState is the durable record of one import run.
type ImportState struct {
	Version     string               `json:"version"`
	RunID       string               `json:"run_id"`
	CSVPath     string               `json:"csv_path"`
	CSVChecksum string               `json:"csv_checksum"`
	TableName   string               `json:"table_name"`
	Status      Status               `json:"status"`
	Phase       Phase                `json:"phase"`
	Timestamps  map[string]time.Time `json:"timestamps"`
	Progress    Progress             `json:"progress"`
	Error       string               `json:"error,omitempty"`
}

// CorruptError marks a state file that exists but cannot be trusted.
// A resume against it is refused; the caller must start fresh.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt state file %s: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// ChecksumMismatchError means the state refers to a different source file
// than the one on disk now.
type ChecksumMismatchError struct {
	Recorded string
	Current  string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("source file changed since this run started (recorded %s, current %s)",
		e.Recorded, e.Current)
}

// TransitionError rejects a non-monotonic phase move.
type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move from phase %s back to %s without a forced restart", e.From, e.To)
}

// Manager owns a single state file. It is the single writer; callers share
// one Manager per run.
type Manager struct {
	path string
	now  func() time.Time
}

// NewManager returns a manager for the state file at path.
func NewManager(path string) *Manager {
	return &Manager{path: path, now: time.Now}
}

// Path returns the managed state-file location.
func (m *Manager) Path() string { return m.path }

// NewState creates the initial record for a fresh run. Nothing is persisted
// until Save.
func (m *Manager) NewState(csvPath, checksum, tableName string) *ImportState {
	return &ImportState{
		Version:     Version,
		RunID:       uuid.NewString(),
		CSVPath:     csvPath,
		CSVChecksum: checksum,
		TableName:   tableName,
		Status:      StatusPending,
		Phase:       PhaseSampling,
		Timestamps:  map[string]time.Time{"started": m.now().UTC()},
	}
}

// Save writes the state atomically: marshal to a temp file in the same
// directory, fsync, then rename over the destination.
func (m *Manager) Save(s *ImportState) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".state-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp state file: %w", err)
	}
	if err := os.Rename(tmpName, m.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing state file: %w", err)
	}

	logging.Debug("saved state to %s (phase=%s status=%s)", m.path, s.Phase, s.Status)
	return nil
}

// Load reads and validates the state file. A missing file surfaces as
// os.ErrNotExist; anything unparseable or structurally invalid surfaces as a
// CorruptError, never as a silently defaulted state.
func (m *Manager) Load() (*ImportState, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, &CorruptError{Path: m.path, Err: err}
	}

	var s ImportState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &CorruptError{Path: m.path, Err: err}
	}
	if err := validate(&s); err != nil {
		return nil, &CorruptError{Path: m.path, Err: err}
	}
	// Older or hand-edited files may omit timestamps entirely.
	if s.Timestamps == nil {
		s.Timestamps = make(map[string]time.Time)
	}

	logging.Debug("loaded state from %s (phase=%s status=%s)", m.path, s.Phase, s.Status)
	return &s, nil
}

func validate(s *ImportState) error {
	if s.Version != Version {
		return fmt.Errorf("unsupported state version %q", s.Version)
	}
	if s.CSVChecksum == "" || s.TableName == "" || s.CSVPath == "" {
		return fmt.Errorf("state is missing required fields")
	}
	switch s.Status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", s.Status)
	}
	if _, ok := phaseRank[s.Phase]; !ok && s.Phase != PhaseFailed {
		return fmt.Errorf("unknown phase %q", s.Phase)
	}
	return nil
}

// Advance moves the run to a later phase and persists the transition.
// Moving backwards is rejected; use ForceRestart for that.
func (m *Manager) Advance(s *ImportState, phase Phase) error {
	to, ok := phaseRank[phase]
	if !ok {
		return fmt.Errorf("phase %q cannot be advanced to directly", phase)
	}
	if from, ok := phaseRank[s.Phase]; ok && to < from {
		return &TransitionError{From: s.Phase, To: phase}
	}

	s.Phase = phase
	s.Timestamps[string(phase)] = m.now().UTC()
	if phase == PhaseCompleted {
		s.Status = StatusCompleted
	} else {
		s.Status = StatusInProgress
	}
	return m.Save(s)
}

// ForceRestart rewinds the run to an earlier phase. The state keeps its run
// ID; only the phase, status, and error reset.
func (m *Manager) ForceRestart(s *ImportState, phase Phase) error {
	if _, ok := phaseRank[phase]; !ok {
		return fmt.Errorf("phase %q cannot be restarted to", phase)
	}
	logging.Warn("forced restart of run %s to phase %s", s.RunID, phase)
	s.Phase = phase
	s.Status = StatusInProgress
	s.Error = ""
	s.Timestamps[string(phase)] = m.now().UTC()
	return m.Save(s)
}

// MarkFailed records a terminal failure.
func (m *Manager) MarkFailed(s *ImportState, errMsg string) error {
	s.Status = StatusFailed
	s.Phase = PhaseFailed
	s.Error = errMsg
	s.Timestamps["failed"] = m.now().UTC()
	return m.Save(s)
}

// MarkCompleted records a terminal success.
func (m *Manager) MarkCompleted(s *ImportState) error {
	return m.Advance(s, PhaseCompleted)
}

// SetProgress updates the load counters and persists them.
func (m *Manager) SetProgress(s *ImportState, loaded, total int64) error {
	s.Progress = Progress{RowsLoaded: loaded, RowsTotal: total}
	if total > 0 {
		s.Progress.Percent = float64(loaded) / float64(total) * 100
	}
	return m.Save(s)
}

// CanResume reports whether the run in s may be resumed against the source
// file identified by currentChecksum. A checksum mismatch is returned as a
// ChecksumMismatchError so callers can distinguish it from a plain refusal.
func (m *Manager) CanResume(s *ImportState, currentChecksum string) (bool, string, error) {
	if s.Status == StatusCompleted {
		return false, "import already completed", nil
	}
	if s.CSVChecksum != currentChecksum {
		return false, "source file has changed",
			&ChecksumMismatchError{Recorded: s.CSVChecksum, Current: currentChecksum}
	}
	switch s.Status {
	case StatusFailed:
		return true, fmt.Sprintf("resumable from failed run (phase %s)", s.Phase), nil
	case StatusInProgress:
		return true, fmt.Sprintf("resumable from in-progress run (phase %s)", s.Phase), nil
	}
	return false, fmt.Sprintf("run is %s; start it normally", s.Status), nil
}
