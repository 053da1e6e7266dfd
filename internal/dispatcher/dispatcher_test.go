package dispatcher_test

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/soapfire/internal/dispatcher"
	"github.com/torosent/soapfire/internal/outcome"
)

// fakeExecutor simulates a request with fixed latency.
type fakeExecutor struct {
	latency time.Duration
	calls   atomic.Int64
	status  outcome.Status
}

func (f *fakeExecutor) Execute(ctx context.Context, task dispatcher.RequestTask) outcome.Record {
	f.calls.Add(1)
	start := time.Now()
	if f.latency > 0 {
		time.Sleep(f.latency)
	}
	status := f.status
	if status == (outcome.Status{}) {
		status = outcome.Success(200)
	}
	return outcome.Record{
		RequestID: task.ID(),
		Sequence:  task.Sequence,
		Status:    status,
		Elapsed:   time.Since(start),
		Completed: time.Now(),
	}
}

func TestIssuedApproximatesDurationTimesRate(t *testing.T) {
	exec := &fakeExecutor{latency: time.Millisecond}
	d := dispatcher.New(dispatcher.Options{
		Duration:      500 * time.Millisecond,
		RatePerSecond: 100,
		Executor:      exec,
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	expected := 50.0
	if diff := float64(res.Issued) - expected; diff > expected*0.2 || diff < -expected*0.2 {
		t.Fatalf("issued = %d, want %v ±20%%", res.Issued, expected)
	}
	if int64(len(res.Outcomes)) != res.Issued {
		t.Fatalf("outcomes = %d, issued = %d", len(res.Outcomes), res.Issued)
	}
	if exec.calls.Load() != res.Issued {
		t.Fatalf("executor calls = %d, issued = %d", exec.calls.Load(), res.Issued)
	}
	if res.Duration() < 500*time.Millisecond {
		t.Fatalf("duration = %s, want >= 500ms", res.Duration())
	}
}

func TestRequestIdentifiersNeverCollide(t *testing.T) {
	exec := &fakeExecutor{latency: 20 * time.Millisecond}
	d := dispatcher.New(dispatcher.Options{
		Duration:      200 * time.Millisecond,
		RatePerSecond: 500,
		Executor:      exec,
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Outcomes) < 10 {
		t.Fatalf("expected overlapping units, got %d outcomes", len(res.Outcomes))
	}

	ids := make(map[string]struct{}, len(res.Outcomes))
	seqs := make(map[int64]struct{}, len(res.Outcomes))
	for _, rec := range res.Outcomes {
		if _, dup := ids[rec.RequestID]; dup {
			t.Fatalf("duplicate request id %q", rec.RequestID)
		}
		ids[rec.RequestID] = struct{}{}
		if _, dup := seqs[rec.Sequence]; dup {
			t.Fatalf("duplicate sequence %d", rec.Sequence)
		}
		seqs[rec.Sequence] = struct{}{}
	}
	for i := int64(1); i <= res.Issued; i++ {
		if _, ok := seqs[i]; !ok {
			t.Fatalf("sequence %d missing; sequences must be 1..issued", i)
		}
	}
}

func TestIssuedNeverTrailsCompleted(t *testing.T) {
	var issues, outcomes atomic.Int64
	var observerViolations atomic.Int64
	obs := &orderingObserver{issues: &issues, outcomes: &outcomes, violations: &observerViolations}
	d := dispatcher.New(dispatcher.Options{
		Duration:      200 * time.Millisecond,
		RatePerSecond: 2000,
		Executor:      &fakeExecutor{},
		Observer:      obs,
	})

	done := make(chan struct{})
	var polled, violations int64
	go func() {
		defer close(done)
		for d.State() != dispatcher.StateStopped {
			// Completed is read first; Issued can only grow in between.
			completed := int64(d.Completed())
			if issued := d.Issued(); issued < completed {
				violations++
			}
			polled++
			runtime.Gosched()
		}
	}()

	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	<-done
	if violations > 0 {
		t.Fatalf("Issued() < Completed() observed %d times in %d polls", violations, polled)
	}
	if n := observerViolations.Load(); n > 0 {
		t.Fatalf("OnOutcome ran before its OnIssue %d times", n)
	}
}

// orderingObserver flags any outcome that arrives while fewer issues than
// outcomes have been observed.
type orderingObserver struct {
	issues, outcomes, violations *atomic.Int64
}

func (o *orderingObserver) OnIssue(dispatcher.RequestTask)       { o.issues.Add(1) }
func (o *orderingObserver) OnSkip(dispatcher.RequestTask, error) {}
func (o *orderingObserver) OnAbandon(dispatcher.RequestTask)     {}
func (o *orderingObserver) OnOutcome(outcome.Record) {
	if o.outcomes.Add(1) > o.issues.Load() {
		o.violations.Add(1)
	}
}

func TestDrainAbandonsSlowUnits(t *testing.T) {
	release := make(chan struct{})
	var slow atomic.Int64
	exec := dispatcher.ExecutorFunc(func(ctx context.Context, task dispatcher.RequestTask) outcome.Record {
		if task.Sequence%2 == 0 {
			slow.Add(1)
			<-release
		}
		return outcome.Record{RequestID: task.ID(), Status: outcome.Success(200), Completed: time.Now()}
	})

	var abandoned atomic.Int64
	d := dispatcher.New(dispatcher.Options{
		Duration:      50 * time.Millisecond,
		RatePerSecond: 200,
		DrainTimeout:  10 * time.Millisecond,
		Executor:      exec,
		Observer:      &countingObserver{abandoned: &abandoned},
	})
	res, err := d.Run(context.Background())
	close(release)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if res.Abandoned == 0 {
		t.Fatalf("expected abandoned units")
	}
	if abandoned.Load() != res.Abandoned {
		t.Fatalf("observed abandons = %d, result = %d", abandoned.Load(), res.Abandoned)
	}
	if res.Abandoned != slow.Load() {
		t.Fatalf("abandoned = %d, slow units = %d", res.Abandoned, slow.Load())
	}
	if int64(len(res.Outcomes))+res.Abandoned != res.Issued {
		t.Fatalf("outcomes(%d) + abandoned(%d) != issued(%d)", len(res.Outcomes), res.Abandoned, res.Issued)
	}
	for _, rec := range res.Outcomes {
		if rec.Sequence%2 == 0 {
			t.Fatalf("abandoned unit %d leaked into outcomes", rec.Sequence)
		}
	}
	if d.State() != dispatcher.StateStopped {
		t.Fatalf("state = %s, want stopped", d.State())
	}
}

func TestResourceExhaustionSkipsTicksAndContinues(t *testing.T) {
	release := make(chan struct{})
	exec := dispatcher.ExecutorFunc(func(ctx context.Context, task dispatcher.RequestTask) outcome.Record {
		<-release
		return outcome.Record{RequestID: task.ID(), Status: outcome.Success(200)}
	})

	var skips atomic.Int64
	obs := &countingObserver{skips: &skips}
	d := dispatcher.New(dispatcher.Options{
		Duration:      100 * time.Millisecond,
		RatePerSecond: 100,
		MaxInFlight:   1,
		DrainTimeout:  time.Second,
		Executor:      exec,
		Observer:      obs,
	})

	go func() {
		time.Sleep(150 * time.Millisecond)
		close(release)
	}()
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Issued != 1 {
		t.Fatalf("issued = %d, want 1 with a single slot held", res.Issued)
	}
	if res.Skipped < 5 {
		t.Fatalf("skipped = %d, want the loop to keep ticking", res.Skipped)
	}
	if skips.Load() != res.Skipped {
		t.Fatalf("observer skips = %d, result skipped = %d", skips.Load(), res.Skipped)
	}
	if len(res.Outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(res.Outcomes))
	}
}

func TestFailuresNeverAbortTheRun(t *testing.T) {
	exec := &fakeExecutor{status: outcome.HTTPError(500, "boom")}
	d := dispatcher.New(dispatcher.Options{
		Duration:      200 * time.Millisecond,
		RatePerSecond: 50,
		Executor:      exec,
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Issued < 8 || res.Issued > 12 {
		t.Fatalf("issued = %d, want about 10", res.Issued)
	}
	for _, rec := range res.Outcomes {
		if rec.Status.Kind != outcome.KindHTTPError || rec.Status.Code != 500 {
			t.Fatalf("status = %v, want HTTP 500", rec.Status)
		}
	}
}

func TestPanickingExecutorBecomesTransportError(t *testing.T) {
	exec := dispatcher.ExecutorFunc(func(ctx context.Context, task dispatcher.RequestTask) outcome.Record {
		panic("boom")
	})
	d := dispatcher.New(dispatcher.Options{
		Duration:      30 * time.Millisecond,
		RatePerSecond: 100,
		Executor:      exec,
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Outcomes) == 0 {
		t.Fatalf("expected outcomes")
	}
	for _, rec := range res.Outcomes {
		if rec.Status.Kind != outcome.KindTransportError {
			t.Fatalf("status = %v, want transport error", rec.Status)
		}
		if rec.RequestID == "" {
			t.Fatalf("request id missing on panic outcome")
		}
	}
}

func TestLifecycleStates(t *testing.T) {
	var seen sync.Map
	var d *dispatcher.Dispatcher
	exec := dispatcher.ExecutorFunc(func(ctx context.Context, task dispatcher.RequestTask) outcome.Record {
		seen.Store(d.State(), true)
		return outcome.Record{Status: outcome.Success(200)}
	})
	d = dispatcher.New(dispatcher.Options{
		Duration:      20 * time.Millisecond,
		RatePerSecond: 100,
		Executor:      exec,
	})
	if d.State() != dispatcher.StateIdle {
		t.Fatalf("initial state = %s, want idle", d.State())
	}
	if _, err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, ok := seen.Load(dispatcher.StateRunning); !ok {
		t.Fatalf("executor never observed the running state")
	}
	if d.State() != dispatcher.StateStopped {
		t.Fatalf("final state = %s, want stopped", d.State())
	}
	if _, err := d.Run(context.Background()); !errors.Is(err, dispatcher.ErrAlreadyStarted) {
		t.Fatalf("second Run() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestRunRequiresExecutor(t *testing.T) {
	_, err := dispatcher.New(dispatcher.Options{Duration: time.Millisecond}).Run(context.Background())
	if !errors.Is(err, dispatcher.ErrNoExecutor) {
		t.Fatalf("Run() error = %v, want ErrNoExecutor", err)
	}
}

func TestDegenerateWindows(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		want     int64
	}{
		{"zero duration issues nothing", 0, 0},
		{"window shorter than interval issues once", 5 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dispatcher.New(dispatcher.Options{
				Duration:      tt.duration,
				RatePerSecond: 1,
				Executor:      &fakeExecutor{},
			})
			res, err := d.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if res.Issued != tt.want {
				t.Fatalf("issued = %d, want %d", res.Issued, tt.want)
			}
		})
	}
}

func TestCancelEndsIssuanceEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	d := dispatcher.New(dispatcher.Options{
		Duration:      5 * time.Second,
		RatePerSecond: 100,
		Executor:      &fakeExecutor{},
	})
	start := time.Now()
	res, err := d.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("run took %s after cancel", elapsed)
	}
	if res.Issued == 0 || int64(len(res.Outcomes)) != res.Issued {
		t.Fatalf("issued = %d, outcomes = %d", res.Issued, len(res.Outcomes))
	}
}

func TestUniformArrivalCapsThroughput(t *testing.T) {
	exec := &fakeExecutor{}
	duration := 100 * time.Millisecond
	d := dispatcher.New(dispatcher.Options{
		Duration:       duration,
		RatePerSecond:  100,
		ArrivalModel:   dispatcher.ArrivalModelUniform,
		Executor:       exec,
		LimiterFactory: func(rps float64) *rate.Limiter { return rate.NewLimiter(rate.Limit(rps), 1) },
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	maxExpected := int64(100*duration.Seconds()*1.2) + 1
	if res.Issued > maxExpected {
		t.Fatalf("issued = %d, max = %d", res.Issued, maxExpected)
	}
	if res.Issued == 0 {
		t.Fatalf("expected issued requests")
	}
}

func TestPoissonArrivalUsesSampler(t *testing.T) {
	exec := &fakeExecutor{}
	d := dispatcher.New(dispatcher.Options{
		Duration:       100 * time.Millisecond,
		RatePerSecond:  100,
		ArrivalModel:   dispatcher.ArrivalModelPoisson,
		PoissonSampler: func() float64 { return 2 }, // every gap is 2/rate = 20ms
		Executor:       exec,
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Issued < 3 || res.Issued > 7 {
		t.Fatalf("issued = %d, want about 5", res.Issued)
	}
}

func TestObserverSeesIssuesAndOutcomes(t *testing.T) {
	var issues, outcomes atomic.Int64
	obs := dispatcher.MultiObserver(&countingObserver{issues: &issues}, nil, &countingObserver{outcomes: &outcomes})
	d := dispatcher.New(dispatcher.Options{
		Duration:      50 * time.Millisecond,
		RatePerSecond: 100,
		Executor:      &fakeExecutor{},
		Observer:      obs,
	})
	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if issues.Load() != res.Issued {
		t.Fatalf("observed issues = %d, issued = %d", issues.Load(), res.Issued)
	}
	if outcomes.Load() != int64(len(res.Outcomes)) {
		t.Fatalf("observed outcomes = %d, collected = %d", outcomes.Load(), len(res.Outcomes))
	}
}

type countingObserver struct {
	issues    *atomic.Int64
	skips     *atomic.Int64
	outcomes  *atomic.Int64
	abandoned *atomic.Int64
}

func (c *countingObserver) OnAbandon(dispatcher.RequestTask) {
	if c.abandoned != nil {
		c.abandoned.Add(1)
	}
}

func (c *countingObserver) OnIssue(dispatcher.RequestTask) {
	if c.issues != nil {
		c.issues.Add(1)
	}
}

func (c *countingObserver) OnSkip(dispatcher.RequestTask, error) {
	if c.skips != nil {
		c.skips.Add(1)
	}
}

func (c *countingObserver) OnOutcome(outcome.Record) {
	if c.outcomes != nil {
		c.outcomes.Add(1)
	}
}
