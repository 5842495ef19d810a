// Package filter decides, for every key event the hook delivers, whether the
// event passes through untouched or is replaced by its mapped key code.
package filter

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/goKeySwap/keymaps"
)

// Kind classifies an intercepted event
type Kind uint8

const (
	KindOther Kind = iota
	KindKeyDown
	KindKeyUp
)

func (k Kind) String() string {
	switch k {
	case KindKeyDown:
		return "down"
	case KindKeyUp:
		return "up"
	default:
		return "other"
	}
}

// Event is a platform key event reduced to what the filter needs.
// Flags holds the platform's modifier state and is opaque to the filter.
type Event struct {
	Kind   Kind
	Code   uint16
	Flags  uint64
	Repeat bool
}

// Injector posts a synthesized event into the global event stream
type Injector interface {
	Inject(Event) error
}

// Logger is the subset of charmbracelet/log used on the event path
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}

// ErrNoInjector is reported when a substitution has nowhere to go
var ErrNoInjector = errors.New("filter: no injector")

// Stats counts what the filter did since it was created
type Stats struct {
	Seen        uint64
	Substituted uint64
	Failed      uint64
}

// Filter substitutes mapped key codes. It keeps no per-event state, so a
// single Filter can serve any number of hook generations.
type Filter struct {
	table *keymaps.Table
	log   Logger

	seen        atomic.Uint64
	substituted atomic.Uint64
	failed      atomic.Uint64
}

// New creates a filter reading from table. A nil logger discards output.
func New(table *keymaps.Table, log Logger) *Filter {
	if log == nil {
		log = nopLogger{}
	}
	return &Filter{table: table, log: log}
}

// Handle processes one event. It returns the event to forward and whether
// the hook should forward it at all. When the code is mapped, a replacement
// event is injected and the original is suppressed. Any failure along the way
// falls back to forwarding the original.
func (f *Filter) Handle(ev Event, inj Injector) (out Event, forward bool) {
	if ev.Kind != KindKeyDown && ev.Kind != KindKeyUp {
		return ev, true
	}
	f.seen.Add(1)

	to, ok := f.table.Lookup(ev.Code)
	if !ok {
		return ev, true
	}

	defer func() {
		if r := recover(); r != nil {
			f.failed.Add(1)
			f.log.Debug("substitution panicked", "code", ev.Code, "panic", fmt.Sprint(r))
			out, forward = ev, true
		}
	}()

	if inj == nil {
		f.failed.Add(1)
		f.log.Debug("substitution skipped", "code", ev.Code, "err", ErrNoInjector)
		return ev, true
	}

	synth := Event{Kind: ev.Kind, Code: to, Flags: ev.Flags, Repeat: ev.Repeat}
	if err := inj.Inject(synth); err != nil {
		f.failed.Add(1)
		f.log.Debug("substitution failed", "from", ev.Code, "to", to, "err", err)
		return ev, true
	}

	f.substituted.Add(1)
	f.log.Debug("remapped", "kind", ev.Kind, "from", ev.Code, "to", to)
	return Event{}, false
}

// Stats returns a copy of the filter's counters
func (f *Filter) Stats() Stats {
	return Stats{
		Seen:        f.seen.Load(),
		Substituted: f.substituted.Load(),
		Failed:      f.failed.Load(),
	}
}
