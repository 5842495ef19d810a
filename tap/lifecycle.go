// Package tap owns the system event hook and the Start/Stop/Reload state
// machine around it.
package tap

import (
	"errors"
	"sync"

	"github.com/goKeySwap/filter"
	"github.com/goKeySwap/keymaps"
)

var (
	// ErrPermissionDenied means the process lacks the trust needed to hook input
	ErrPermissionDenied = errors.New("permission denied")
	// ErrResourceCreation means the OS refused to create the hook for another reason
	ErrResourceCreation = errors.New("could not create event tap")
)

// Callback is invoked by a hook for every intercepted event. It returns the
// event to deliver and whether to deliver it.
type Callback func(ev filter.Event, inj filter.Injector) (filter.Event, bool)

// Hook installs the OS-level interception
type Hook interface {
	Install(cb Callback) (Handle, error)
}

// Handle is a live hook. Close must release every OS resource the hook holds.
type Handle interface {
	Close() error
}

// Logger is the logging sink the lifecycle writes to
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(interface{}, ...interface{})  {}
func (nopLogger) Error(interface{}, ...interface{}) {}

// State is the lifecycle's run state
type State int

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Source supplies the configuration the lifecycle is built from
type Source interface {
	Mappings() []keymaps.KeyMapping
	Enabled() bool
}

// Option configures a Lifecycle
type Option func(*Lifecycle)

// WithLogger sets the logging sink
func WithLogger(log Logger) Option {
	return func(l *Lifecycle) {
		if log != nil {
			l.log = log
		}
	}
}

// WithFilter replaces the filter built from the table
func WithFilter(f *filter.Filter) Option {
	return func(l *Lifecycle) {
		if f != nil {
			l.filter = f
		}
	}
}

// Lifecycle owns at most one live Handle and the table its filter reads.
// Start, Stop and Reload are serialized; the event path never takes the lock.
type Lifecycle struct {
	mu     sync.Mutex
	hook   Hook
	table  *keymaps.Table
	filter *filter.Filter
	log    Logger
	handle Handle
	state  State

	listenMu  sync.Mutex
	listeners []func(State)
}

// New creates a stopped lifecycle
func New(hook Hook, table *keymaps.Table, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		hook:  hook,
		table: table,
		log:   nopLogger{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.filter == nil {
		l.filter = filter.New(table, l.log)
	}
	return l
}

// Open builds a lifecycle from src and starts it when src is enabled. The
// lifecycle is returned even when starting fails so the caller can retry.
func Open(src Source, hook Hook, opts ...Option) (*Lifecycle, error) {
	l := New(hook, keymaps.NewTable(src.Mappings()), opts...)
	if !src.Enabled() {
		l.log.Info("remapping disabled by configuration")
		return l, nil
	}
	return l, l.Start()
}

// Table returns the table the filter reads
func (l *Lifecycle) Table() *keymaps.Table {
	return l.table
}

// Filter returns the filter bound to the hook
func (l *Lifecycle) Filter() *filter.Filter {
	return l.filter
}

// OnStateChange registers fn to be called after every transition
func (l *Lifecycle) OnStateChange(fn func(State)) {
	l.listenMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenMu.Unlock()
}

func (l *Lifecycle) notify(states []State) {
	if len(states) == 0 {
		return
	}
	l.listenMu.Lock()
	listeners := append([]func(State){}, l.listeners...)
	l.listenMu.Unlock()
	for _, s := range states {
		for _, fn := range listeners {
			fn(s)
		}
	}
}

// Start installs the hook. It is a no-op returning nil while running.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	changed, err := l.start()
	l.mu.Unlock()
	if changed {
		l.notify([]State{Running})
	}
	return err
}

func (l *Lifecycle) start() (bool, error) {
	if l.state == Running {
		return false, nil
	}
	l.log.Debug("creating event tap")
	f := l.filter
	h, err := l.hook.Install(func(ev filter.Event, inj filter.Injector) (filter.Event, bool) {
		return f.Handle(ev, inj)
	})
	if err != nil {
		l.log.Error("failed to create event tap", "err", err)
		return false, err
	}
	l.handle = h
	l.state = Running
	l.log.Info("event tap started", "mappings", l.table.Len())
	return true, nil
}

// Stop releases the hook. It is a no-op while stopped.
func (l *Lifecycle) Stop() {
	l.mu.Lock()
	changed := l.stop()
	l.mu.Unlock()
	if changed {
		l.notify([]State{Stopped})
	}
}

func (l *Lifecycle) stop() bool {
	if l.state != Running {
		return false
	}
	l.log.Debug("stopping event tap")
	if err := l.handle.Close(); err != nil {
		l.log.Error("failed to release event tap", "err", err)
	}
	l.handle = nil
	l.state = Stopped
	l.log.Info("event tap stopped")
	return true
}

// Reload replaces the mappings. A running hook is stopped and started
// around the replacement; if it cannot be started again the lifecycle stays
// stopped and the error is returned.
func (l *Lifecycle) Reload(pairs []keymaps.KeyMapping) error {
	l.mu.Lock()
	var states []State
	wasRunning := l.state == Running
	if wasRunning && l.stop() {
		states = append(states, Stopped)
	}
	l.table.Load(pairs)
	l.log.Info("mappings reloaded", "mappings", l.table.Len())
	var err error
	if wasRunning {
		var changed bool
		changed, err = l.start()
		if changed {
			states = append(states, Running)
		}
	}
	l.mu.Unlock()
	l.notify(states)
	return err
}

// SetHook replaces the hook used by the next Start or Reload. A live handle
// keeps running on the old hook until then.
func (l *Lifecycle) SetHook(hook Hook) {
	l.mu.Lock()
	l.hook = hook
	l.mu.Unlock()
}

// IsRunning reports whether the hook is installed
func (l *Lifecycle) IsRunning() bool {
	return l.State() == Running
}

// State returns the current run state
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
