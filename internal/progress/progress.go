// Package progress maintains the on-disk job status protocol shared with
// observer processes: an atomically replaced JSON snapshot plus a cancel
// flag file polled by running workers.
package progress

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	progressFile = "scrape_progress.json"
	progressTmp  = "scrape_progress.tmp"
	cancelFile   = "scrape_cancel.flag"

	// staleTimeout is how long a record may go without a flush before a
	// reader considers the worker dead.
	staleTimeout = 120 * time.Second
)

// Job status values as written to the progress file.
const (
	StatusRunning   = "running"
	StatusFinished  = "finished"
	StatusCancelled = "cancelled"
	StatusError     = "error"
)

// Record is one snapshot of a job, as serialized to the progress file.
// Timestamps are unix seconds with fraction.
type Record struct {
	JobType        string  `json:"job_type"`
	Status         string  `json:"status"`
	RunID          string  `json:"run_id"`
	PID            int     `json:"pid"`
	StartedAt      float64 `json:"started_at"`
	LastFlushTS    float64 `json:"last_flush_ts"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ElapsedFmt     string  `json:"elapsed_fmt"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Updated        int     `json:"updated"`
	Errors         int     `json:"errors"`
	NotFound       int     `json:"not_found"`
	Remaining      int     `json:"remaining"`
	ProgressPct    float64 `json:"progress_pct"`
	SpeedPerMin    float64 `json:"speed_per_min"`
	ETASeconds     float64 `json:"eta_seconds"`
	ETAFmt         string  `json:"eta_fmt"`
	CurrentItem    string  `json:"current_item"`
	Phase          string  `json:"phase"`
	PhaseNumber    int     `json:"phase_number"`
	PhaseTotal     int     `json:"phase_total"`
	ErrorMessage   string  `json:"error_message"`
}

// TickKind selects which counter a tick bumps besides processed.
type TickKind int

const (
	TickUpdated TickKind = iota
	TickError
	TickNotFound
)

func nowTS() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}

func fmtDuration(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%.0fs", seconds)
	}
	total := int(seconds)
	m, s := total/60, total%60
	h, m := m/60, m%60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}

// Writer reports one job's progress to disk. Every mutating call flushes;
// the file is small and a write per item keeps observers current.
type Writer struct {
	dataDir string
	jobType string
	runID   string

	mu          sync.Mutex
	startedAt   float64
	total       int
	processed   int
	updated     int
	errCount    int
	notFound    int
	currentItem string
	phase       string
	phaseNumber int
	phaseTotal  int
	done        bool
}

// NewWriter starts a progress record for a job. Any cancel flag left over
// from a previous run is cleared, then an initial running snapshot is
// written.
func NewWriter(dataDir, jobType, runID string, total int) (*Writer, error) {
	w := &Writer{
		dataDir:   dataDir,
		jobType:   jobType,
		runID:     runID,
		total:     total,
		startedAt: nowTS(),
	}
	if err := ClearCancel(dataDir); err != nil {
		return nil, err
	}
	if err := w.flush(StatusRunning, ""); err != nil {
		return nil, err
	}
	return w, nil
}

// Init writes a bare running record before the worker goroutine starts, so
// an observer sees the job immediately. The worker's own Writer overwrites
// it with richer data.
func Init(dataDir, jobType, runID string) error {
	if err := ClearCancel(dataDir); err != nil {
		return err
	}
	now := nowTS()
	rec := Record{
		JobType:     jobType,
		Status:      StatusRunning,
		RunID:       runID,
		PID:         os.Getpid(),
		StartedAt:   now,
		LastFlushTS: now,
		ElapsedFmt:  "0s",
		ETAFmt:      "—",
		CurrentItem: "Demarrage...",
		Phase:       "Initialisation",
	}
	return writeRecord(dataDir, rec)
}

// SetTotal replaces the expected item count. The new value reaches the
// file on the next flush.
func (w *Writer) SetTotal(n int) {
	w.mu.Lock()
	w.total = n
	w.mu.Unlock()
}

// Processed returns how many items have been ticked so far.
func (w *Writer) Processed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.processed
}

// Total returns the currently expected item count.
func (w *Writer) Total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// SetPhase updates the phase triple and flushes.
func (w *Writer) SetPhase(label string, number, total int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.phase = label
	w.phaseNumber = number
	w.phaseTotal = total
	return w.flushLocked(StatusRunning, "")
}

// Tick records one processed item and bumps the counter selected by kind.
// Ticks after a terminal transition are ignored.
func (w *Writer) Tick(kind TickKind, currentItem string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.processed++
	switch kind {
	case TickUpdated:
		w.updated++
	case TickError:
		w.errCount++
	case TickNotFound:
		w.notFound++
	}
	if currentItem != "" {
		w.currentItem = currentItem
	}
	return w.flushLocked(StatusRunning, "")
}

// Finish marks the job finished. Terminal and sticky.
func (w *Writer) Finish() error { return w.terminal(StatusFinished, "") }

// Cancel marks the job cancelled. Terminal and sticky.
func (w *Writer) Cancel() error { return w.terminal(StatusCancelled, "") }

// Abort marks the job failed with a message. Terminal and sticky.
func (w *Writer) Abort(reason string) error { return w.terminal(StatusError, reason) }

func (w *Writer) terminal(status, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return nil
	}
	w.done = true
	return w.flushLocked(status, message)
}

// CancelRequested reports whether an observer has asked this job to stop.
func (w *Writer) CancelRequested() bool {
	return CancelRequested(w.dataDir)
}

func (w *Writer) flush(status, message string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(status, message)
}

func (w *Writer) flushLocked(status, message string) error {
	now := nowTS()
	elapsed := now - w.startedAt
	remaining := w.total - w.processed
	speed := 0.0
	if elapsed > 0 {
		speed = float64(w.processed) / elapsed
	}
	eta := 0.0
	if speed > 0 {
		eta = float64(remaining) / speed
	}
	pct := 0.0
	if w.total > 0 {
		pct = float64(w.processed) / float64(w.total) * 100
	}

	rec := Record{
		JobType:        w.jobType,
		Status:         status,
		RunID:          w.runID,
		PID:            os.Getpid(),
		StartedAt:      w.startedAt,
		LastFlushTS:    now,
		ElapsedSeconds: elapsed,
		ElapsedFmt:     fmtDuration(elapsed),
		Total:          w.total,
		Processed:      w.processed,
		Updated:        w.updated,
		Errors:         w.errCount,
		NotFound:       w.notFound,
		Remaining:      remaining,
		ProgressPct:    pct,
		SpeedPerMin:    speed * 60,
		ETASeconds:     eta,
		ETAFmt:         fmtDuration(eta),
		CurrentItem:    w.currentItem,
		Phase:          w.phase,
		PhaseNumber:    w.phaseNumber,
		PhaseTotal:     w.phaseTotal,
		ErrorMessage:   message,
	}
	return writeRecord(w.dataDir, rec)
}

// writeRecord writes the snapshot to a temp file and renames it over the
// progress file, so readers never see a torn write.
func writeRecord(dataDir string, rec Record) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	tmp := filepath.Join(dataDir, progressTmp)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dataDir, progressFile)); err != nil {
		return fmt.Errorf("replace progress: %w", err)
	}
	return nil
}

// Read returns the current progress record, or nil if none exists or the
// file is unreadable. For a running job the elapsed time, speed and ETA
// are recomputed against the wall clock.
func Read(dataDir string) *Record {
	data, err := os.ReadFile(filepath.Join(dataDir, progressFile))
	if err != nil {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil
	}
	if rec.Status == StatusRunning {
		rec.ElapsedSeconds = nowTS() - rec.StartedAt
		rec.ElapsedFmt = fmtDuration(rec.ElapsedSeconds)
		speed := 0.0
		if rec.ElapsedSeconds > 0 {
			speed = float64(rec.Processed) / rec.ElapsedSeconds
		}
		remaining := rec.Total - rec.Processed
		rec.ETASeconds = 0
		if speed > 0 {
			rec.ETASeconds = float64(remaining) / speed
		}
		rec.ETAFmt = fmtDuration(rec.ETASeconds)
		rec.SpeedPerMin = speed * 60
	}
	return &rec
}

// IsJobRunning reports whether a live worker exists: status running and a
// flush within the staleness window. A crashed worker stops flushing and
// ages out instead of appearing live forever.
func IsJobRunning(dataDir string) bool {
	rec := Read(dataDir)
	if rec == nil || rec.Status != StatusRunning {
		return false
	}
	if rec.LastFlushTS > 0 && nowTS()-rec.LastFlushTS > staleTimeout.Seconds() {
		return false
	}
	return true
}

// MarkError flips a running record to error. Meant for observers that
// detect a dead worker; a non-running record is left alone.
func MarkError(dataDir, message string) error {
	rec := Read(dataDir)
	if rec == nil || rec.Status != StatusRunning {
		return nil
	}
	if message == "" {
		message = "worker died unexpectedly"
	}
	rec.Status = StatusError
	rec.ErrorMessage = message
	rec.LastFlushTS = nowTS()
	return writeRecord(dataDir, *rec)
}

// RequestCancel signals the running worker to stop at its next loop head.
func RequestCancel(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return os.WriteFile(filepath.Join(dataDir, cancelFile), []byte("cancel"), 0o644)
}

// CancelRequested reports whether the cancel flag file exists.
func CancelRequested(dataDir string) bool {
	_, err := os.Stat(filepath.Join(dataDir, cancelFile))
	return err == nil
}

// ClearCancel removes the cancel flag if present.
func ClearCancel(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, cancelFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes both the progress file and the cancel flag.
func Clear(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, progressFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return ClearCancel(dataDir)
}
