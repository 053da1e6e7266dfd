package dispatcher

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/soapfire/internal/envelope"
	"github.com/torosent/soapfire/internal/outcome"
)

// RequestTask is the immutable unit of work handed to an Executor.
type RequestTask struct {
	Sequence  int64
	Worker    string
	CreatedAt time.Time
}

// ID returns the request identifier correlating the task with its outcome.
func (t RequestTask) ID() string {
	return envelope.RequestID(t.Worker, t.Sequence)
}

// IdentitySource mints worker identities. Identities must be unique among
// units that are in flight at the same time.
type IdentitySource interface {
	Next() string
}

// ULIDIdentities mints a fresh ULID per unit, so identities are unique for the
// whole run and sortable by launch time.
type ULIDIdentities struct{}

func (ULIDIdentities) Next() string {
	return "W" + ulid.Make().String()
}

// Observer receives live dispatcher events. Methods may be called from many
// goroutines concurrently.
type Observer interface {
	OnIssue(task RequestTask)
	OnSkip(task RequestTask, err error)
	OnOutcome(rec outcome.Record)
	// OnAbandon fires once for a unit that missed its drain timeout. No
	// OnOutcome follows for that unit.
	OnAbandon(task RequestTask)
}

type nopObserver struct{}

func (nopObserver) OnIssue(RequestTask)       {}
func (nopObserver) OnSkip(RequestTask, error) {}
func (nopObserver) OnOutcome(outcome.Record)  {}
func (nopObserver) OnAbandon(RequestTask)     {}

// MultiObserver fans events out to every non-nil observer.
func MultiObserver(observers ...Observer) Observer {
	list := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multiObserver []Observer

func (m multiObserver) OnIssue(task RequestTask) {
	for _, o := range m {
		o.OnIssue(task)
	}
}

func (m multiObserver) OnSkip(task RequestTask, err error) {
	for _, o := range m {
		o.OnSkip(task, err)
	}
}

func (m multiObserver) OnOutcome(rec outcome.Record) {
	for _, o := range m {
		o.OnOutcome(rec)
	}
}

func (m multiObserver) OnAbandon(task RequestTask) {
	for _, o := range m {
		o.OnAbandon(task)
	}
}
