// Package status defines the data shared between a running task, the
// collectors that watch it, and the dispatcher that assembles and
// renders progress snapshots: Phase, TaskStatus and FullStatusReport.
package status

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Phase is a task's position in the per-task state machine of a
// driver run: Idle -> Init -> Thermalising -> ThermalisingDone ->
// LiveSampling -> Finalised.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInit
	PhaseThermalising
	PhaseThermalisingDone
	PhaseLiveSampling
	PhaseFinalised
)

// String renders the phase name for reports and logs.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInit:
		return "init"
	case PhaseThermalising:
		return "thermalising"
	case PhaseThermalisingDone:
		return "thermalising_done"
	case PhaseLiveSampling:
		return "live_sampling"
	case PhaseFinalised:
		return "finalised"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TaskStatus is a single worker's progress snapshot, assembled on
// demand when that worker observes a status-report request.
type TaskStatus struct {
	TaskIndex       int
	Phase           Phase
	SweepsDone      int64
	SweepsTotal     int64
	FractionDone    float64
	AcceptanceRatio float64
	Message         string
}

// String renders the "k: <task-message>" line the fixed report format
// uses per active worker.
func (s TaskStatus) String() string {
	if s.Message != "" {
		return fmt.Sprintf("%d: %s", s.TaskIndex, s.Message)
	}

	return fmt.Sprintf("%d: %s %.1f%% done (sweep %s/%s), accept=%.3f",
		s.TaskIndex, s.Phase, s.FractionDone*100,
		humanize.Comma(s.SweepsDone), humanize.Comma(s.SweepsTotal), s.AcceptanceRatio)
}

// FullStatusReport is the coordinator-assembled snapshot a status
// report callback receives: one entry per worker currently running,
// plus overall completion counters.
type FullStatusReport struct {
	NumCompleted   int
	NumTotal       int
	WorkersRunning []bool
	WorkersReports []TaskStatus
	ElapsedSeconds float64
}

// PercentDone computes X.XX% = (C + sum of active workers' fraction_done) / N * 100,
// per the fixed rendering format.
func (r FullStatusReport) PercentDone() float64 {
	if r.NumTotal == 0 {
		return 0
	}

	sum := float64(r.NumCompleted)
	for i, running := range r.WorkersRunning {
		if running && i < len(r.WorkersReports) {
			sum += r.WorkersReports[i].FractionDone
		}
	}

	return sum / float64(r.NumTotal) * 100
}

// Render produces the fixed human-readable format: a header, one line
// per active worker, and a summary line.
func (r FullStatusReport) Render(elapsed string) string {
	var b strings.Builder

	b.WriteString("=== Intermediate Progress Report ===\n")

	for i, running := range r.WorkersRunning {
		if running && i < len(r.WorkersReports) {
			fmt.Fprintf(&b, "=== %s\n", r.WorkersReports[i])
		}
	}

	fmt.Fprintf(&b, "%ss elapsed - %d/%d runs completed - %.2f%% total done\n",
		elapsed, r.NumCompleted, r.NumTotal, r.PercentDone())

	return b.String()
}
