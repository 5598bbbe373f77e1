// Package console renders job progress for interactive runs: a terminal
// bar fed by orchestrator events and a one-shot status printout built
// from the shared progress record.
package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"enchimmo/internal/progress"
)

// Interactive reports whether stderr is a terminal. The bar is only
// worth drawing when it is.
func Interactive() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}

// Bar adapts a terminal progress bar to the orchestrator's observer
// events. One Bar serves one job run.
type Bar struct {
	bar *progressbar.ProgressBar
}

// NewBar builds a bar for one job. The max grows as the workflow learns
// its real totals.
func NewBar(jobName string) *Bar {
	return &Bar{bar: progressbar.NewOptions(1,
		progressbar.OptionSetDescription(jobName),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)}
}

// SetTotal resizes the bar.
func (b *Bar) SetTotal(total int) {
	b.bar.ChangeMax(total)
}

// SetPhase relabels the bar for multi-phase jobs.
func (b *Bar) SetPhase(label string, number, total int) {
	b.bar.Describe(fmt.Sprintf("[%d/%d] %s", number, total, label))
}

// Tick advances the bar to the workflow's processed count.
func (b *Bar) Tick(processed, total int, currentItem string) {
	if total != b.bar.GetMax() {
		b.bar.ChangeMax(total)
	}
	_ = b.bar.Set(processed)
}

// Done closes out the bar. A finished job fills it; a cancelled or
// failed one stops where it is.
func (b *Bar) Done(status string) {
	if status == progress.StatusFinished {
		_ = b.bar.Finish()
		return
	}
	_ = b.bar.Exit()
}

// PrintStatus writes a human-readable view of the current progress
// record to w. Reports when no job has ever run, and flags a running
// record whose worker has stopped flushing.
func PrintStatus(w io.Writer, dataDir string) {
	rec := progress.Read(dataDir)
	if rec == nil {
		fmt.Fprintln(w, "no scrape job has run yet")
		return
	}

	status := rec.Status
	if rec.Status == progress.StatusRunning && !progress.IsJobRunning(dataDir) {
		status += " (stale, worker presumed dead)"
	}

	fmt.Fprintf(w, "job:       %s (run %s, pid %d)\n", rec.JobType, rec.RunID, rec.PID)
	fmt.Fprintf(w, "status:    %s\n", status)
	if rec.Phase != "" {
		if rec.PhaseTotal > 0 {
			fmt.Fprintf(w, "phase:     [%d/%d] %s\n", rec.PhaseNumber, rec.PhaseTotal, rec.Phase)
		} else {
			fmt.Fprintf(w, "phase:     %s\n", rec.Phase)
		}
	}
	fmt.Fprintf(w, "progress:  %d/%d (%.1f%%)\n", rec.Processed, rec.Total, rec.ProgressPct)
	fmt.Fprintf(w, "counts:    updated=%d not_found=%d errors=%d\n", rec.Updated, rec.NotFound, rec.Errors)
	if rec.CurrentItem != "" {
		fmt.Fprintf(w, "current:   %s\n", rec.CurrentItem)
	}
	started := time.Unix(int64(rec.StartedAt), 0)
	fmt.Fprintf(w, "started:   %s\n", started.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "elapsed:   %s\n", rec.ElapsedFmt)
	if rec.Status == progress.StatusRunning {
		fmt.Fprintf(w, "speed:     %.1f/min, eta %s\n", rec.SpeedPerMin, rec.ETAFmt)
	}
	if rec.ErrorMessage != "" {
		fmt.Fprintf(w, "error:     %s\n", rec.ErrorMessage)
	}
	if progress.CancelRequested(dataDir) {
		fmt.Fprintln(w, "cancel:    requested")
	}
}
