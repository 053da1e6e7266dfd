package dispatcher

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// arrivalController blocks the control loop between ticks. tickStart is the
// moment the tick that just launched began.
type arrivalController interface {
	Wait(ctx context.Context, tickStart time.Time) error
}

func newArrivalController(opt Options) arrivalController {
	switch opt.ArrivalModel {
	case ArrivalModelPoisson:
		sampler := opt.PoissonSampler
		if sampler == nil {
			seeded := rand.New(rand.NewSource(opt.RandomSeed))
			sampler = seeded.ExpFloat64
		}
		return &poissonArrival{rate: opt.RatePerSecond, sample: sampler}
	case ArrivalModelUniform:
		limiter := opt.LimiterFactory(opt.RatePerSecond)
		// The first tick fires without consulting the limiter; spend its token.
		limiter.Allow()
		return &uniformArrival{limiter: limiter}
	default:
		return cadenceArrival{interval: Interval(opt.RatePerSecond)}
	}
}

// cadenceArrival sleeps whatever is left of the interval after launching.
type cadenceArrival struct {
	interval time.Duration
}

func (c cadenceArrival) Wait(ctx context.Context, tickStart time.Time) error {
	if c.interval <= 0 {
		return ctx.Err()
	}
	return sleepCtx(ctx, c.interval-time.Since(tickStart))
}

// uniformArrival delegates pacing to a rate.Limiter.
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context, _ time.Time) error {
	if u == nil || u.limiter == nil {
		return nil
	}
	return u.limiter.Wait(ctx)
}

// poissonArrival samples exponential inter-arrival times to approximate a Poisson process.
type poissonArrival struct {
	mu     sync.Mutex
	rate   float64
	sample func() float64
}

func (p *poissonArrival) Wait(ctx context.Context, tickStart time.Time) error {
	return sleepCtx(ctx, p.nextDelay()-time.Since(tickStart))
}

func (p *poissonArrival) nextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rate <= 0 || p.sample == nil {
		return 0
	}

	value := p.sample()
	delay := float64(time.Second) * value / p.rate
	if delay > math.MaxInt64 {
		delay = math.MaxInt64
	}
	return time.Duration(delay)
}

// sleepCtx never sleeps a negative amount.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
