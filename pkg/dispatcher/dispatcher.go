// Package dispatcher schedules N independent MHRW tasks on a worker
// pool, aggregates their result histograms into one averaged
// histogram, and supports on-demand/periodic status reporting plus
// cooperative interruption, per spec.md §4.8/§5.
package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sampleforge/mhrw/pkg/histogram"
	"github.com/sampleforge/mhrw/pkg/mhrw"
	"github.com/sampleforge/mhrw/pkg/status"
	"github.com/sampleforge/mhrw/pkg/task"
)

// ErrTasksInterrupted is surfaced when RequestInterrupt was called and
// at least one task terminated early because of it.
var ErrTasksInterrupted = errors.New("dispatcher: tasks interrupted")

// TaskError pairs a task index with the error that task returned, for
// the "originating task index" detail spec.md §7 asks user-visible
// failures to carry.
type TaskError struct {
	Index int
	Err   error
}

// Error implements error.
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d: %v", e.Index, e.Err)
}

// Unwrap supports errors.Is/As against the wrapped task error.
func (e *TaskError) Unwrap() error { return e.Err }

// round is the in-flight state of one status-report request: how many
// workers were active when it was requested, how many are still
// outstanding, and what each has reported back so far. remaining is
// decremented both by an actual report (recordReport) and by a task
// finishing without ever producing one for this round (workerDone),
// so a task that errors out before its first raw_move can never wedge
// the round open forever.
type round struct {
	expected  int
	remaining int
	received  map[int]status.TaskStatus
}

// Dispatcher runs numTasks independent walks across numWorkers
// goroutines sharing one CData template.
type Dispatcher[P any, WP mhrw.StepSizer[WP]] struct {
	cdata      *task.CData[P, WP]
	numWorkers int

	masterEventCounter atomic.Uint64
	interruptFlag      atomic.Bool
	activeWorkers      atomic.Int32

	mu           sync.Mutex
	currentRound *round

	startedAt time.Time
}

// New builds a Dispatcher over cdata with the given worker count.
// numWorkers must be >= 1.
func New[P any, WP mhrw.StepSizer[WP]](cdata *task.CData[P, WP], numWorkers int) (*Dispatcher[P, WP], error) {
	if numWorkers < 1 {
		return nil, fmt.Errorf("%w: num_workers (%d) must be >= 1", mhrw.ErrInvalidParameters, numWorkers)
	}

	return &Dispatcher[P, WP]{cdata: cdata, numWorkers: numWorkers}, nil
}

// RequestStatusReport asks every currently active worker to produce a
// TaskStatus on its next poll; once all of them have, onReport (passed
// to Run) fires once with the assembled FullStatusReport. A request
// made while one is still in flight is dropped rather than queued.
func (d *Dispatcher[P, WP]) RequestStatusReport() {
	d.mu.Lock()

	if d.currentRound != nil {
		d.mu.Unlock()

		return
	}

	expected := int(d.activeWorkers.Load())
	if expected == 0 {
		d.mu.Unlock()

		return
	}

	d.currentRound = &round{expected: expected, remaining: expected, received: make(map[int]status.TaskStatus, expected)}
	d.mu.Unlock()

	d.masterEventCounter.Add(1)
}

// RequestInterrupt flags every task to terminate at its next status
// poll. Idempotent.
func (d *Dispatcher[P, WP]) RequestInterrupt() {
	d.interruptFlag.Store(true)
}

// requestPeriodicStatusReport runs a ticker that calls
// RequestStatusReport every interval while any worker is active, until
// stop is closed. Run starts it in a goroutine when
// Options.PeriodicInterval is positive and closes stop once every task
// has finished.
func (d *Dispatcher[P, WP]) requestPeriodicStatusReport(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if d.activeWorkers.Load() > 0 {
				d.RequestStatusReport()
			}
		}
	}
}

// recordReport is a worker's submit callback: it stores the worker's
// snapshot and, once every active worker has reported for the current
// round, hands the assembled report to the coordinator goroutine.
func (d *Dispatcher[P, WP]) recordReport(coordinate chan<- status.FullStatusReport, numTotal int, s status.TaskStatus) {
	d.mu.Lock()

	r := d.currentRound
	if r == nil {
		d.mu.Unlock()

		return
	}

	if _, already := r.received[s.TaskIndex]; already {
		d.mu.Unlock()

		return
	}

	r.received[s.TaskIndex] = s
	r.remaining--

	if r.remaining > 0 {
		d.mu.Unlock()

		return
	}

	d.currentRound = nil
	d.mu.Unlock()

	coordinate <- d.assemble(r, numTotal)
}

// workerDone is called once a task finishes (successfully, with an
// error, or interrupted), whether or not it ever contributed a status
// report. If a round is in flight and this task's index hasn't
// reported into it, it never will (the task is no longer running), so
// its slot is accounted for here instead of leaving remaining stuck
// above zero forever.
func (d *Dispatcher[P, WP]) workerDone(coordinate chan<- status.FullStatusReport, numTotal, index int) {
	d.mu.Lock()

	r := d.currentRound
	if r == nil {
		d.mu.Unlock()

		return
	}

	if _, reported := r.received[index]; reported {
		d.mu.Unlock()

		return
	}

	r.remaining--

	if r.remaining > 0 {
		d.mu.Unlock()

		return
	}

	d.currentRound = nil
	d.mu.Unlock()

	coordinate <- d.assemble(r, numTotal)
}

// assemble builds a FullStatusReport from a completed round.
func (d *Dispatcher[P, WP]) assemble(r *round, numTotal int) status.FullStatusReport {
	running := make([]bool, numTotal)
	reports := make([]status.TaskStatus, numTotal)

	for idx, st := range r.received {
		running[idx] = true
		reports[idx] = st
	}

	numCompleted := numTotal - int(d.activeWorkers.Load())

	return status.FullStatusReport{
		NumCompleted:   numCompleted,
		NumTotal:       numTotal,
		WorkersRunning: running,
		WorkersReports: reports,
		ElapsedSeconds: time.Since(d.startedAt).Seconds(),
	}
}

// Options configures one Run call.
type Options struct {
	// OnReport, if non-nil, is invoked exclusively from the
	// coordinator goroutine every time a status-report round
	// completes; invocations never overlap.
	OnReport func(status.FullStatusReport)
	// PeriodicInterval, if positive, requests a status report on this
	// cadence for the duration of the run.
	PeriodicInterval time.Duration
}

// Run schedules numTasks tasks across the dispatcher's worker pool,
// aggregates every task's final histogram into an AveragedHistogram,
// and returns it together with the per-task results (in task-index
// order) and any error.
func (d *Dispatcher[P, WP]) Run(numTasks int, opts Options) (*histogram.Averaged, []task.Result, error) {
	d.startedAt = time.Now()

	results := make([]task.Result, numTasks)

	workCh := make(chan int, numTasks)
	for i := 0; i < numTasks; i++ {
		workCh <- i
	}

	close(workCh)

	coordinateCh := make(chan status.FullStatusReport, d.numWorkers)
	coordinatorDone := make(chan struct{})

	go func() {
		defer close(coordinatorDone)

		for report := range coordinateCh {
			if opts.OnReport != nil {
				opts.OnReport(report)
			}
		}
	}()

	stopPeriodic := make(chan struct{})

	if opts.PeriodicInterval > 0 {
		go d.requestPeriodicStatusReport(opts.PeriodicInterval, stopPeriodic)
	}

	var wg sync.WaitGroup

	wg.Add(d.numWorkers)

	for w := 0; w < d.numWorkers; w++ {
		go func() {
			defer wg.Done()

			for idx := range workCh {
				d.activeWorkers.Add(1)

				localCounter := uint64(0)

				hooks := task.Hooks{
					StatusReportRequested: func() bool {
						cur := d.masterEventCounter.Load()
						if cur != localCounter {
							localCounter = cur

							return true
						}

						return false
					},
					Interrupted: func() bool { return d.interruptFlag.Load() },
					SubmitStatus: func(s status.TaskStatus) {
						d.recordReport(coordinateCh, numTasks, s)
					},
				}

				results[idx] = task.New(idx, d.cdata, hooks).Run()

				d.activeWorkers.Add(-1)
				d.workerDone(coordinateCh, numTasks, idx)
			}
		}()
	}

	wg.Wait()
	close(stopPeriodic)
	close(coordinateCh)
	<-coordinatorDone

	interrupted := false

	return d.aggregate(results, &interrupted)
}

// aggregate folds every task's final histogram into an
// AveragedHistogram, finalising it, and determines the first fatal
// error (or TasksInterrupted) to surface.
func (d *Dispatcher[P, WP]) aggregate(results []task.Result, interrupted *bool) (*histogram.Averaged, []task.Result, error) {
	var avg *histogram.Averaged

	var firstErr error

	for i, r := range results {
		if r.Err != nil {
			if errors.Is(r.Err, mhrw.ErrInterrupted) {
				*interrupted = true
			} else if firstErr == nil {
				firstErr = &TaskError{Index: i, Err: r.Err}
			}

			continue
		}

		if avg == nil {
			a, err := histogram.NewAveraged(r.Histogram.Params)
			if err != nil {
				return nil, results, err
			}

			avg = a
		}

		if err := avg.AddHistogramWithErrorBars(r.Histogram); err != nil {
			if firstErr == nil {
				firstErr = &TaskError{Index: i, Err: err}
			}
		}
	}

	if avg != nil {
		if err := avg.Finalize(); err != nil {
			return avg, results, err
		}
	}

	if *interrupted {
		return avg, results, ErrTasksInterrupted
	}

	return avg, results, firstErr
}
