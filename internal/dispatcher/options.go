package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/soapfire/internal/outcome"
)

// DefaultDrainTimeout bounds how long the drain phase waits for each
// outstanding unit.
const DefaultDrainTimeout = 10 * time.Second

// ArrivalModel selects how ticks are spaced.
type ArrivalModel string

const (
	// ArrivalModelCadence sleeps interval minus the time spent launching the
	// tick. Overruns are not caught up.
	ArrivalModelCadence ArrivalModel = "cadence"
	// ArrivalModelUniform paces ticks with a token bucket of burst one.
	ArrivalModelUniform ArrivalModel = "uniform"
	// ArrivalModelPoisson samples exponential inter-arrival gaps.
	ArrivalModelPoisson ArrivalModel = "poisson"
)

// Executor performs one request for a task and reports its outcome.
// Implementations must fold every failure into the returned record.
type Executor interface {
	Execute(ctx context.Context, task RequestTask) outcome.Record
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task RequestTask) outcome.Record

func (f ExecutorFunc) Execute(ctx context.Context, task RequestTask) outcome.Record {
	return f(ctx, task)
}

// Options configure a Dispatcher.
type Options struct {
	Duration      time.Duration // issuance window
	RatePerSecond float64       // target ticks per second (<= 0 means unpaced)
	ArrivalModel  ArrivalModel
	DrainTimeout  time.Duration // per-unit wait during drain (0 means DefaultDrainTimeout)
	MaxInFlight   int           // cap on concurrently running units (0 means unbounded)
	Executor      Executor      // required
	Identities    IdentitySource
	Observer      Observer
	Logger        *slog.Logger

	LimiterFactory func(rps float64) *rate.Limiter // optional injection for tests
	PoissonSampler func() float64                  // optional injection for tests
	RandomSeed     int64
}

func (o *Options) normalize() {
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelCadence
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = DefaultDrainTimeout
	}
	if o.MaxInFlight < 0 {
		o.MaxInFlight = 0
	}
	if o.Identities == nil {
		o.Identities = ULIDIdentities{}
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps float64) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// Interval returns the target gap between ticks for rps, or 0 when unpaced.
func Interval(rps float64) time.Duration {
	if rps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rps)
}
