package progress

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriterLifecycle(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWriter(dir, "history", "run-1", 10)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	rec := Read(dir)
	if rec == nil {
		t.Fatal("no record after NewWriter")
	}
	if rec.Status != StatusRunning || rec.JobType != "history" || rec.Total != 10 {
		t.Fatalf("initial record = %+v", rec)
	}
	if rec.RunID != "run-1" {
		t.Errorf("run id = %q", rec.RunID)
	}
	if rec.PID != os.Getpid() {
		t.Errorf("pid = %d, want %d", rec.PID, os.Getpid())
	}

	if err := w.Tick(TickUpdated, "tj-paris"); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if err := w.Tick(TickError, "tj-lyon"); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if err := w.Tick(TickNotFound, ""); err != nil {
		t.Fatalf("tick: %v", err)
	}

	rec = Read(dir)
	if rec.Processed != 3 || rec.Updated != 1 || rec.Errors != 1 || rec.NotFound != 1 {
		t.Fatalf("counters = %+v", rec)
	}
	if rec.CurrentItem != "tj-lyon" {
		t.Errorf("current item = %q, want tj-lyon (empty tick keeps previous)", rec.CurrentItem)
	}
	if rec.Remaining != 7 {
		t.Errorf("remaining = %d, want 7", rec.Remaining)
	}
	if rec.ProgressPct < 29.9 || rec.ProgressPct > 30.1 {
		t.Errorf("progress pct = %f, want 30", rec.ProgressPct)
	}

	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	rec = Read(dir)
	if rec.Status != StatusFinished {
		t.Fatalf("status = %q, want finished", rec.Status)
	}

	// Terminal states are sticky.
	if err := w.Tick(TickUpdated, "late"); err != nil {
		t.Fatalf("tick after finish: %v", err)
	}
	if err := w.Abort("too late"); err != nil {
		t.Fatalf("abort after finish: %v", err)
	}
	rec = Read(dir)
	if rec.Status != StatusFinished || rec.Processed != 3 || rec.CurrentItem != "tj-lyon" {
		t.Fatalf("record mutated after finish: %+v", rec)
	}
}

func TestSetPhase(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "full", "run-2", 1)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.SetPhase("Encheres a venir", 2, 5); err != nil {
		t.Fatalf("set phase: %v", err)
	}
	rec := Read(dir)
	if rec.Phase != "Encheres a venir" || rec.PhaseNumber != 2 || rec.PhaseTotal != 5 {
		t.Fatalf("phase = %+v", rec)
	}
}

func TestSetTotalVisibleOnNextFlush(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "incremental", "run-3", 1)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	w.SetTotal(42)
	if rec := Read(dir); rec.Total != 1 {
		t.Fatalf("total flushed early: %d", rec.Total)
	}
	if err := w.Tick(TickUpdated, ""); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rec := Read(dir); rec.Total != 42 {
		t.Fatalf("total = %d after tick, want 42", rec.Total)
	}
	if got := w.Processed(); got != 1 {
		t.Fatalf("processed = %d, want 1", got)
	}
}

func TestInitWritesObservableRecord(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir, "history", "run-4"); err != nil {
		t.Fatalf("init: %v", err)
	}
	rec := Read(dir)
	if rec == nil {
		t.Fatal("no record after Init")
	}
	if rec.Status != StatusRunning || rec.Phase != "Initialisation" {
		t.Fatalf("init record = %+v", rec)
	}
	if rec.CurrentItem != "Demarrage..." {
		t.Errorf("current item = %q", rec.CurrentItem)
	}
	if !IsJobRunning(dir) {
		t.Error("job not reported running right after Init")
	}
}

func TestCancelFlagRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "history", "run-5", 5)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if w.CancelRequested() {
		t.Fatal("cancel requested before flag written")
	}
	if err := RequestCancel(dir); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if !w.CancelRequested() {
		t.Fatal("cancel flag not observed")
	}
	if err := w.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := ClearCancel(dir); err != nil {
		t.Fatalf("clear cancel: %v", err)
	}
	if CancelRequested(dir) {
		t.Fatal("cancel flag survived clear")
	}
	if rec := Read(dir); rec.Status != StatusCancelled {
		t.Fatalf("status = %q, want cancelled", rec.Status)
	}
}

func TestNewWriterClearsStaleCancelFlag(t *testing.T) {
	dir := t.TempDir()
	if err := RequestCancel(dir); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	w, err := NewWriter(dir, "incremental", "run-6", 1)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if w.CancelRequested() {
		t.Fatal("leftover cancel flag not cleared by NewWriter")
	}
}

func TestIsJobRunningStaleness(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewWriter(dir, "history", "run-7", 1); err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if !IsJobRunning(dir) {
		t.Fatal("fresh record not reported running")
	}

	// Age the record past the staleness window by rewriting its flush
	// timestamp directly.
	rec := Read(dir)
	rec.LastFlushTS = nowTS() - 300
	if err := writeRecord(dir, *rec); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if IsJobRunning(dir) {
		t.Fatal("stale record reported running")
	}

	if err := MarkError(dir, "worker died"); err != nil {
		t.Fatalf("mark error: %v", err)
	}
	got := Read(dir)
	if got.Status != StatusError || got.ErrorMessage != "worker died" {
		t.Fatalf("after mark error: %+v", got)
	}

	// MarkError on a terminal record is a no-op.
	if err := MarkError(dir, "again"); err != nil {
		t.Fatalf("second mark error: %v", err)
	}
	if got := Read(dir); got.ErrorMessage != "worker died" {
		t.Fatalf("terminal record mutated: %+v", got)
	}
}

func TestClearRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewWriter(dir, "history", "run-8", 1); err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := RequestCancel(dir); err != nil {
		t.Fatalf("request cancel: %v", err)
	}
	if err := Clear(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if Read(dir) != nil {
		t.Fatal("progress file survived clear")
	}
	if CancelRequested(dir) {
		t.Fatal("cancel flag survived clear")
	}
	// Clearing an empty dir is fine.
	if err := Clear(dir); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}

func TestRecordJSONFieldNames(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewWriter(dir, "map_backfill", "run-9", 3); err != nil {
		t.Fatalf("new writer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "scrape_progress.json"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"job_type", "status", "pid", "started_at", "last_flush_ts",
		"elapsed_seconds", "elapsed_fmt", "total", "processed", "updated",
		"errors", "not_found", "remaining", "progress_pct", "speed_per_min",
		"eta_seconds", "eta_fmt", "current_item", "phase", "phase_number",
		"phase_total", "error_message",
	} {
		if _, ok := raw[key]; !ok {
			t.Errorf("progress file missing key %q", key)
		}
	}
}

func TestFmtDuration(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{59.4, "59s"},
		{185, "3m 05s"},
		{3723, "1h 02m 03s"},
	}
	for _, c := range cases {
		if got := fmtDuration(c.in); got != c.want {
			t.Errorf("fmtDuration(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
