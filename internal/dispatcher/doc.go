// Package dispatcher is the rate-controlled request engine behind soapfire.
//
// A [Dispatcher] runs a single control loop for a fixed window. Every tick it
// takes the next sequence number, mints a worker identity, and launches one
// goroutine that runs the configured [Executor]. Outcomes land in a shared
// [ResultSet]. When the window closes the dispatcher drains: each outstanding
// unit gets a bounded wait, and units that miss it are abandoned.
//
// # Basic Usage
//
//	d := dispatcher.New(dispatcher.Options{
//		Duration:      10 * time.Second,
//		RatePerSecond: 1000,
//		Executor:      myExecutor,
//	})
//	res, err := d.Run(ctx)
//
// # Lifecycle
//
// A dispatcher moves through [StateIdle], [StateRunning], [StateDraining] and
// [StateStopped]. It is single use.
//
// # Pacing
//
// The default [ArrivalModelCadence] sleeps the target interval minus the time
// spent launching the tick and never sleeps a negative amount, so an overrun
// tick is followed immediately by the next one without catch-up bursts.
// [ArrivalModelUniform] uses a golang.org/x/time/rate limiter and
// [ArrivalModelPoisson] samples exponential gaps.
//
// # Identity
//
// Request identifiers combine the worker identity and the sequence number.
// The default [ULIDIdentities] mints a fresh ULID for every unit, so two units
// in flight never share an identifier even though the sequence counter is
// shared.
//
// # Failures
//
// Executors fold request failures into their [outcome.Record]; the loop never
// stops because of them. When [Options.MaxInFlight] is set and no slot is free,
// the tick is skipped, reported as [ErrResourceExhausted], and the loop
// continues.
package dispatcher
