package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/torosent/soapfire/internal/outcome"
)

var (
	// ErrResourceExhausted is reported when a tick cannot obtain an execution
	// slot. The tick is skipped and the loop carries on.
	ErrResourceExhausted = errors.New("dispatcher: no execution slot available")

	// ErrAlreadyStarted is returned by Run on a dispatcher that has already
	// been run. A Dispatcher runs once.
	ErrAlreadyStarted = errors.New("dispatcher: already started")
	// ErrNoExecutor is returned by Run when Options.Executor is nil.
	ErrNoExecutor = errors.New("dispatcher: executor is required")
)

// State is the dispatcher lifecycle phase.
type State int32

const (
	// StateIdle is the state before Run is called.
	StateIdle State = iota
	// StateRunning covers the issuance window.
	StateRunning
	// StateDraining waits for outstanding units after issuance stops.
	StateDraining
	// StateStopped is final; the Result has been assembled.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Result captures one run.
type Result struct {
	Issued    int64 // units launched
	Skipped   int64 // ticks that could not launch a unit
	Abandoned int64 // units that missed their drain timeout
	Start     time.Time
	End       time.Time
	Outcomes  []outcome.Record
}

// Duration is the wall-clock time from run start to the end of the drain.
func (r Result) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Dispatcher issues one unit of work per tick for a fixed window and then
// drains the outstanding units.
type Dispatcher struct {
	opt     Options
	arrival arrivalController
	slots   *semaphore.Weighted
	results *ResultSet

	state    atomic.Int32
	sequence atomic.Int64
	issued   atomic.Int64
	skipped  atomic.Int64

	lastExhaustLog time.Time
}

// unit tracks one launched execution. state moves from pending to either
// done (outcome kept) or abandoned (outcome dropped), exactly once.
type unit struct {
	task  RequestTask
	done  chan struct{}
	state atomic.Int32
}

const (
	unitPending int32 = iota
	unitDone
	unitAbandoned
)

// compactEvery controls how often finished units are pruned from the
// outstanding list during issuance.
const compactEvery = 1024

func New(opt Options) *Dispatcher {
	opt.normalize()
	d := &Dispatcher{
		opt:     opt,
		arrival: newArrivalController(opt),
		results: NewResultSet(expectedIssues(opt)),
	}
	if opt.MaxInFlight > 0 {
		d.slots = semaphore.NewWeighted(int64(opt.MaxInFlight))
	}
	return d
}

// State returns the current lifecycle phase.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Issued returns the number of units launched so far.
func (d *Dispatcher) Issued() int64 {
	return d.issued.Load()
}

// Completed returns the number of outcomes collected so far.
func (d *Dispatcher) Completed() int {
	return d.results.Len()
}

// Run executes the issuance window and the drain. Cancelling ctx ends
// issuance early; in-flight units are still drained.
func (d *Dispatcher) Run(ctx context.Context) (Result, error) {
	if d.opt.Executor == nil {
		return Result{}, ErrNoExecutor
	}
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Result{}, ErrAlreadyStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	d.sequence.Store(0)

	// Units outlive the issuance window; they keep ctx values but not its
	// cancellation.
	unitCtx := context.WithoutCancel(ctx)

	var outstanding []*unit

	for time.Since(start) < d.opt.Duration && ctx.Err() == nil {
		seq := d.sequence.Add(1)
		tickStart := time.Now()
		task := RequestTask{
			Sequence:  seq,
			Worker:    d.opt.Identities.Next(),
			CreatedAt: tickStart,
		}

		u, err := d.launch(unitCtx, task)
		if err != nil {
			d.skipped.Add(1)
			d.opt.Observer.OnSkip(task, err)
			d.logExhaustion(task, err)
		} else {
			outstanding = append(outstanding, u)
			if len(outstanding)%compactEvery == 0 {
				outstanding = compact(outstanding)
			}
		}

		if err := d.arrival.Wait(ctx, tickStart); err != nil {
			break
		}
	}

	d.state.Store(int32(StateDraining))
	abandoned := d.drain(outstanding)

	end := time.Now()
	res := Result{
		Issued:    d.issued.Load(),
		Skipped:   d.skipped.Load(),
		Abandoned: abandoned,
		Start:     start,
		End:       end,
		Outcomes:  d.results.Drain(),
	}
	d.state.Store(int32(StateStopped))
	return res, nil
}

func (d *Dispatcher) launch(ctx context.Context, task RequestTask) (*unit, error) {
	if d.slots != nil && !d.slots.TryAcquire(1) {
		return nil, ErrResourceExhausted
	}

	// Counted before the goroutine starts so Issued never trails Completed.
	d.issued.Add(1)
	d.opt.Observer.OnIssue(task)

	u := &unit{task: task, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		if d.slots != nil {
			defer d.slots.Release(1)
		}
		rec := d.execute(ctx, task)
		if u.state.CompareAndSwap(unitPending, unitDone) {
			d.results.Add(rec)
			d.opt.Observer.OnOutcome(rec)
		}
	}()
	return u, nil
}

// execute runs the executor and converts a panic into a transport failure so
// one broken unit cannot take the run down.
func (d *Dispatcher) execute(ctx context.Context, task RequestTask) (rec outcome.Record) {
	defer func() {
		if r := recover(); r != nil {
			now := time.Now()
			rec = outcome.Record{
				RequestID: task.ID(),
				Sequence:  task.Sequence,
				Status:    outcome.TransportError(fmt.Sprintf("panic: %v", r)),
				Elapsed:   now.Sub(task.CreatedAt),
				Completed: now,
			}
			d.opt.Logger.Error("request unit panicked", "request_id", task.ID(), "panic", r)
		}
	}()
	rec = d.opt.Executor.Execute(ctx, task)
	if rec.RequestID == "" {
		rec.RequestID = task.ID()
	}
	if rec.Sequence == 0 {
		rec.Sequence = task.Sequence
	}
	return rec
}

// drain waits for each outstanding unit in launch order, giving each at most
// DrainTimeout. It returns how many units were abandoned.
func (d *Dispatcher) drain(units []*unit) int64 {
	var abandoned int64
	timer := time.NewTimer(d.opt.DrainTimeout)
	defer timer.Stop()

	for _, u := range units {
		select {
		case <-u.done:
			continue
		default:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.opt.DrainTimeout)

		select {
		case <-u.done:
		case <-timer.C:
			if u.state.CompareAndSwap(unitPending, unitAbandoned) {
				abandoned++
				d.opt.Observer.OnAbandon(u.task)
			}
		}
	}
	if abandoned > 0 {
		d.opt.Logger.Warn("abandoned units after drain timeout",
			"abandoned", abandoned,
			"drain_timeout", d.opt.DrainTimeout)
	}
	return abandoned
}

func (d *Dispatcher) logExhaustion(task RequestTask, err error) {
	now := time.Now()
	if now.Sub(d.lastExhaustLog) < time.Second {
		return
	}
	d.lastExhaustLog = now
	d.opt.Logger.Warn("tick skipped",
		"sequence", task.Sequence,
		"max_in_flight", d.opt.MaxInFlight,
		"skipped_total", d.skipped.Load(),
		"error", err)
}

func compact(units []*unit) []*unit {
	kept := units[:0]
	for _, u := range units {
		select {
		case <-u.done:
		default:
			kept = append(kept, u)
		}
	}
	for i := len(kept); i < len(units); i++ {
		units[i] = nil
	}
	return kept
}

func expectedIssues(opt Options) int {
	if opt.RatePerSecond <= 0 || opt.Duration <= 0 {
		return 0
	}
	n := opt.RatePerSecond * opt.Duration.Seconds()
	const maxPrealloc = 1 << 20
	if n > maxPrealloc {
		return maxPrealloc
	}
	return int(n) + 1
}
