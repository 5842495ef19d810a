package tap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bendahl/uinput"
	evdev "github.com/gvalkov/golang-evdev"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/goKeySwap/filter"
)

// Modifier bits reported in filter.Event.Flags on linux
const (
	ModLeftShift uint64 = 1 << iota
	ModRightShift
	ModLeftCtrl
	ModRightCtrl
	ModLeftAlt
	ModRightAlt
	ModLeftMeta
	ModRightMeta
)

var modifierBits = map[uint16]uint64{
	evdev.KEY_LEFTSHIFT:  ModLeftShift,
	evdev.KEY_RIGHTSHIFT: ModRightShift,
	evdev.KEY_LEFTCTRL:   ModLeftCtrl,
	evdev.KEY_RIGHTCTRL:  ModRightCtrl,
	evdev.KEY_LEFTALT:    ModLeftAlt,
	evdev.KEY_RIGHTALT:   ModRightAlt,
	evdev.KEY_LEFTMETA:   ModLeftMeta,
	evdev.KEY_RIGHTMETA:  ModRightMeta,
}

// evdev key event values
const (
	keyReleased = 0
	keyPressed  = 1
	keyRepeated = 2
)

type evdevHook struct {
	cfg HookConfig
	log Logger
}

// NewSystemHook returns the linux hook: physical keyboards are grabbed
// through evdev and everything they produce is re-emitted, possibly
// remapped, through a uinput virtual keyboard.
func NewSystemHook(cfg HookConfig, log Logger) Hook {
	if log == nil {
		log = nopLogger{}
	}
	return &evdevHook{cfg: cfg.withDefaults(), log: log}
}

func (h *evdevHook) Install(cb Callback) (Handle, error) {
	if err := unix.Access(h.cfg.UinputPath, unix.W_OK); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %s: %v", ErrPermissionDenied, h.cfg.UinputPath, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrResourceCreation, h.cfg.UinputPath, err)
	}

	kb, err := uinput.CreateKeyboard(h.cfg.UinputPath, []byte(h.cfg.VirtualName))
	if err != nil {
		return nil, fmt.Errorf("%w: create virtual keyboard: %v", ErrResourceCreation, err)
	}

	devices, err := openKeyboards(h.cfg)
	if err != nil {
		kb.Close()
		return nil, err
	}

	for i, dev := range devices {
		if err := dev.Grab(); err != nil {
			for _, d := range devices[:i] {
				d.Release()
			}
			for _, d := range devices {
				d.File.Close()
			}
			kb.Close()
			return nil, fmt.Errorf("%w: grab %s (%s): %v", ErrResourceCreation, dev.Name, dev.Fn, err)
		}
		h.log.Debug("grabbed keyboard", "name", dev.Name, "path", dev.Fn)
	}
	for _, dev := range devices {
		if err := pollable(dev); err != nil {
			for _, d := range devices {
				setGrab(d.File, false)
				d.File.Close()
			}
			kb.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrResourceCreation, dev.Fn, err)
		}
	}

	handle := &evdevHandle{
		devices: devices,
		out:     virtualKeyboard{kb: kb},
		kb:      kb,
		cb:      cb,
		log:     h.log,
		events:  make(chan evdev.InputEvent, 64),
		stop:    make(chan struct{}),
	}
	handle.run()
	return handle, nil
}

// EVIOCGRAB, _IOW('E', 0x90, int)
const eviocgrab = 0x40044590

// pollable moves dev onto a non-blocking duplicate of its descriptor, so
// closing dev.File wakes a reader parked in ReadOne. golang-evdev calls
// File.Fd for every ioctl, which leaves the file in blocking mode where a
// pending read survives Close. The grab belongs to the open file
// description and carries over to the duplicate.
func pollable(dev *evdev.InputDevice) error {
	fd, err := unix.Dup(int(dev.File.Fd()))
	if err != nil {
		return fmt.Errorf("dup: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set non-blocking: %w", err)
	}
	old := dev.File
	dev.File = os.NewFile(uintptr(fd), dev.Fn)
	return old.Close()
}

// setGrab issues EVIOCGRAB without File.Fd, so f stays in non-blocking mode
func setGrab(f *os.File, on bool) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	arg := 0
	if on {
		arg = 1
	}
	var ioErr error
	if err := rc.Control(func(fd uintptr) {
		ioErr = unix.IoctlSetInt(int(fd), eviocgrab, arg)
	}); err != nil {
		return err
	}
	return ioErr
}

// keyEmitter is the part of uinput.Keyboard the hook writes through
type keyEmitter interface {
	KeyDown(key int) error
	KeyUp(key int) error
}

type virtualKeyboard struct {
	kb keyEmitter
}

func (v virtualKeyboard) Inject(ev filter.Event) error {
	switch ev.Kind {
	case filter.KindKeyDown:
		return v.kb.KeyDown(int(ev.Code))
	case filter.KindKeyUp:
		return v.kb.KeyUp(int(ev.Code))
	}
	return nil
}

type evdevHandle struct {
	devices []*evdev.InputDevice
	out     virtualKeyboard
	kb      io.Closer
	cb      Callback
	log     Logger

	events chan evdev.InputEvent
	stop   chan struct{}
	group  errgroup.Group
	once   sync.Once
	err    error

	// only touched by the dispatch goroutine
	mods uint64
}

func (h *evdevHandle) run() {
	for _, dev := range h.devices {
		h.group.Go(func() error { return h.read(dev) })
	}
	h.group.Go(h.dispatch)
}

func (h *evdevHandle) read(dev *evdev.InputDevice) error {
	for {
		ev, err := dev.ReadOne()
		if err != nil {
			select {
			case <-h.stop:
				return nil
			default:
			}
			h.log.Error("keyboard read failed", "name", dev.Name, "err", err)
			return fmt.Errorf("read %s: %w", dev.Fn, err)
		}
		select {
		case h.events <- *ev:
		case <-h.stop:
			return nil
		}
	}
}

// dispatch is the only goroutine that runs the callback, so callbacks for
// one handle never overlap.
func (h *evdevHandle) dispatch() error {
	for {
		select {
		case <-h.stop:
			return nil
		case raw := <-h.events:
			h.deliver(raw)
		}
	}
}

func (h *evdevHandle) deliver(raw evdev.InputEvent) {
	ev := h.convert(raw)
	out, forward := h.cb(ev, h.out)
	if !forward {
		return
	}
	if err := h.out.Inject(out); err != nil {
		h.log.Debug("pass-through failed", "code", out.Code, "err", err)
	}
}

func (h *evdevHandle) convert(raw evdev.InputEvent) filter.Event {
	if raw.Type != evdev.EV_KEY {
		return filter.Event{Kind: filter.KindOther, Code: raw.Code}
	}
	ev := filter.Event{Code: raw.Code}
	switch raw.Value {
	case keyPressed:
		ev.Kind = filter.KindKeyDown
	case keyRepeated:
		ev.Kind = filter.KindKeyDown
		ev.Repeat = true
	case keyReleased:
		ev.Kind = filter.KindKeyUp
	default:
		ev.Kind = filter.KindOther
	}
	if bit, ok := modifierBits[raw.Code]; ok {
		if ev.Kind == filter.KindKeyUp {
			h.mods &^= bit
		} else {
			h.mods |= bit
		}
	}
	ev.Flags = h.mods
	return ev
}

// Close ungrabs the keyboards, waits for the goroutines and destroys the
// virtual keyboard. Calling it again returns the first result.
func (h *evdevHandle) Close() error {
	h.once.Do(func() {
		close(h.stop)
		var errs []error
		for _, dev := range h.devices {
			if err := setGrab(dev.File, false); err != nil {
				errs = append(errs, fmt.Errorf("release %s: %w", dev.Fn, err))
			}
			dev.File.Close()
		}
		if err := h.group.Wait(); err != nil {
			h.log.Debug("reader exited with error", "err", err)
		}
		if err := h.kb.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close virtual keyboard: %w", err))
		}
		h.err = errors.Join(errs...)
	})
	return h.err
}
