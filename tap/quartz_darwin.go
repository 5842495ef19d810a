//go:build cgo

package tap

/*
#cgo LDFLAGS: -framework CoreGraphics -framework ApplicationServices -framework CoreFoundation
#include <stdint.h>
#include <ApplicationServices/ApplicationServices.h>

// marks events this process posts so the tap lets them through
#define GOKEYSWAP_TAG 0x676b7377

extern CGEventRef goKeySwapTapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

static CFMachPortRef createKeyTap(uintptr_t ctx) {
	CGEventMask mask = CGEventMaskBit(kCGEventKeyDown) | CGEventMaskBit(kCGEventKeyUp);
	return CGEventTapCreate(kCGSessionEventTap,
		kCGHeadInsertEventTap,
		kCGEventTapOptionDefault,
		mask,
		goKeySwapTapCallback,
		(void *)ctx);
}

static int isTagged(CGEventRef event) {
	return CGEventGetIntegerValueField(event, kCGEventSourceUserData) == GOKEYSWAP_TAG;
}

static int postKey(CGKeyCode code, int down, CGEventFlags flags, int repeat) {
	CGEventRef ev = CGEventCreateKeyboardEvent(NULL, code, down ? true : false);
	if (ev == NULL) {
		return 0;
	}
	CGEventSetFlags(ev, flags);
	CGEventSetIntegerValueField(ev, kCGKeyboardEventAutorepeat, repeat);
	CGEventSetIntegerValueField(ev, kCGEventSourceUserData, GOKEYSWAP_TAG);
	CGEventPost(kCGHIDEventTap, ev);
	CFRelease(ev);
	return 1;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/cgo"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/goKeySwap/filter"
)

var errPostFailed = errors.New("CGEventCreateKeyboardEvent returned NULL")

type quartzHook struct {
	log Logger
}

// NewSystemHook returns the macOS hook, a session-level Quartz event tap.
// The process needs Accessibility trust before Install can succeed.
func NewSystemHook(_ HookConfig, log Logger) Hook {
	if log == nil {
		log = nopLogger{}
	}
	return &quartzHook{log: log}
}

type quartzInjector struct{}

func (quartzInjector) Inject(ev filter.Event) error {
	down := 0
	switch ev.Kind {
	case filter.KindKeyDown:
		down = 1
	case filter.KindKeyUp:
	default:
		return nil
	}
	repeat := 0
	if ev.Repeat {
		repeat = 1
	}
	if C.postKey(C.CGKeyCode(ev.Code), C.int(down), C.CGEventFlags(ev.Flags), C.int(repeat)) == 0 {
		return errPostFailed
	}
	return nil
}

type quartzHandle struct {
	cb     Callback
	ctx    cgo.Handle
	tap    C.CFMachPortRef
	source C.CFRunLoopSourceRef
	loop   C.CFRunLoopRef
	done   chan struct{}
	once   sync.Once

	// checked between run loop slices; a CFRunLoopStop sent before the loop
	// is running is lost
	stopping atomic.Bool
}

// upper bound on how long Close waits for the run loop to notice stopping
const runSlice = 0.25

func (h *quartzHook) Install(cb Callback) (Handle, error) {
	if C.AXIsProcessTrusted() == 0 {
		return nil, fmt.Errorf("%w: accessibility access has not been granted", ErrPermissionDenied)
	}

	handle := &quartzHandle{cb: cb, done: make(chan struct{})}
	handle.ctx = cgo.NewHandle(handle)

	handle.tap = C.createKeyTap(C.uintptr_t(handle.ctx))
	if handle.tap == 0 {
		handle.ctx.Delete()
		return nil, fmt.Errorf("%w: CGEventTapCreate failed", ErrResourceCreation)
	}
	handle.source = C.CFMachPortCreateRunLoopSource(C.kCFAllocatorDefault, handle.tap, 0)
	if handle.source == 0 {
		C.CFMachPortInvalidate(handle.tap)
		C.CFRelease(C.CFTypeRef(handle.tap))
		handle.ctx.Delete()
		return nil, fmt.Errorf("%w: CFMachPortCreateRunLoopSource failed", ErrResourceCreation)
	}

	ready := make(chan C.CFRunLoopRef)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(handle.done)

		loop := C.CFRunLoopGetCurrent()
		C.CFRunLoopAddSource(loop, handle.source, C.kCFRunLoopCommonModes)
		C.CGEventTapEnable(handle.tap, true)
		ready <- loop
		for !handle.stopping.Load() {
			C.CFRunLoopRunInMode(C.kCFRunLoopDefaultMode, C.CFTimeInterval(runSlice), C.Boolean(0))
		}
	}()
	handle.loop = <-ready
	h.log.Debug("event tap attached to run loop")
	return handle, nil
}

func (h *quartzHandle) Close() error {
	h.once.Do(func() {
		C.CGEventTapEnable(h.tap, false)
		h.stopping.Store(true)
		C.CFRunLoopStop(h.loop)
		<-h.done
		C.CFMachPortInvalidate(h.tap)
		C.CFRelease(C.CFTypeRef(h.source))
		C.CFRelease(C.CFTypeRef(h.tap))
		h.ctx.Delete()
	})
	return nil
}

//export goKeySwapTapCallback
func goKeySwapTapCallback(proxy C.CGEventTapProxy, etype C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	// tap-disabled notifications and our own synthesized events pass as-is
	if etype != C.kCGEventKeyDown && etype != C.kCGEventKeyUp {
		return event
	}
	if C.isTagged(event) != 0 {
		return event
	}
	h, ok := cgo.Handle(uintptr(refcon)).Value().(*quartzHandle)
	if !ok {
		return event
	}

	ev := filter.Event{
		Kind:   filter.KindKeyUp,
		Code:   uint16(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode)),
		Flags:  uint64(C.CGEventGetFlags(event)),
		Repeat: C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventAutorepeat) != 0,
	}
	if etype == C.kCGEventKeyDown {
		ev.Kind = filter.KindKeyDown
	}
	if _, forward := h.cb(ev, quartzInjector{}); !forward {
		return nil
	}
	return event
}

// ListKeyboards is only implemented on linux; a Quartz tap sees every keyboard
func ListKeyboards(HookConfig) ([]Keyboard, error) {
	return nil, fmt.Errorf("%w: device listing is not supported on darwin", ErrResourceCreation)
}
