package tap

import (
	"errors"
	"os"
	"testing"
	"time"

	evdev "github.com/gvalkov/golang-evdev"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/goKeySwap/filter"
	"github.com/goKeySwap/keymaps"
)

type emitted struct {
	code int
	down bool
}

type fakeEmitter struct {
	out []emitted
	err error
}

func (f *fakeEmitter) KeyDown(key int) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, emitted{code: key, down: true})
	return nil
}

func (f *fakeEmitter) KeyUp(key int) error {
	if f.err != nil {
		return f.err
	}
	f.out = append(f.out, emitted{code: key})
	return nil
}

func newTestHandle(pairs ...keymaps.KeyMapping) (*evdevHandle, *fakeEmitter) {
	em := &fakeEmitter{}
	f := filter.New(keymaps.NewTable(pairs), nil)
	return &evdevHandle{
		out: virtualKeyboard{kb: em},
		cb:  f.Handle,
		log: nopLogger{},
	}, em
}

func key(code uint16, value int32) evdev.InputEvent {
	return evdev.InputEvent{Type: evdev.EV_KEY, Code: code, Value: value}
}

func TestDeliverRemapsAndPassesThrough(t *testing.T) {
	h, em := newTestHandle(keymaps.KeyMapping{From: evdev.KEY_A, To: evdev.KEY_B})

	h.deliver(key(evdev.KEY_A, keyPressed))
	h.deliver(key(evdev.KEY_A, keyReleased))
	h.deliver(key(evdev.KEY_C, keyPressed))
	h.deliver(key(evdev.KEY_C, keyReleased))
	h.deliver(evdev.InputEvent{Type: evdev.EV_SYN})

	require.Equal(t, []emitted{
		{code: evdev.KEY_B, down: true},
		{code: evdev.KEY_B},
		{code: evdev.KEY_C, down: true},
		{code: evdev.KEY_C},
	}, em.out)
}

func TestDeliverRepeatAsKeyDown(t *testing.T) {
	h, em := newTestHandle(keymaps.KeyMapping{From: evdev.KEY_A, To: evdev.KEY_B})

	h.deliver(key(evdev.KEY_A, keyRepeated))
	require.Equal(t, []emitted{{code: evdev.KEY_B, down: true}}, em.out)
}

func TestDeliverInjectionFailureFallsBack(t *testing.T) {
	h, em := newTestHandle(keymaps.KeyMapping{From: evdev.KEY_A, To: evdev.KEY_B})
	em.err = errors.New("code out of range")

	// neither the substitute nor the original can be written; nothing panics
	h.deliver(key(evdev.KEY_A, keyPressed))
	require.Empty(t, em.out)
}

func TestConvertTracksModifiers(t *testing.T) {
	h, _ := newTestHandle()

	ev := h.convert(key(evdev.KEY_LEFTSHIFT, keyPressed))
	require.Equal(t, filter.KindKeyDown, ev.Kind)
	require.Equal(t, ModLeftShift, ev.Flags)

	ev = h.convert(key(evdev.KEY_RIGHTCTRL, keyPressed))
	require.Equal(t, ModLeftShift|ModRightCtrl, ev.Flags)

	ev = h.convert(key(evdev.KEY_A, keyPressed))
	require.Equal(t, ModLeftShift|ModRightCtrl, ev.Flags)
	require.False(t, ev.Repeat)

	ev = h.convert(key(evdev.KEY_LEFTSHIFT, keyReleased))
	require.Equal(t, filter.KindKeyUp, ev.Kind)
	require.Equal(t, ModRightCtrl, ev.Flags)

	ev = h.convert(evdev.InputEvent{Type: evdev.EV_MSC, Code: 4, Value: 30})
	require.Equal(t, filter.KindOther, ev.Kind)
}

func TestWantedNames(t *testing.T) {
	require.True(t, wanted("AT Translated Set 2 keyboard", nil))
	require.True(t, wanted("AT Translated Set 2 keyboard", []string{"mtk-kpd", "AT Translated Set 2 keyboard"}))
	require.False(t, wanted("matrix-keypad", []string{"mtk-kpd"}))
}

func TestHookConfigDefaults(t *testing.T) {
	cfg := HookConfig{DeviceNames: []string{"mtk-kpd"}}.withDefaults()
	require.Equal(t, "/dev/uinput", cfg.UinputPath)
	require.Equal(t, "/dev/input/event*", cfg.DeviceGlob)
	require.Equal(t, "goKeySwap", cfg.VirtualName)
	require.Equal(t, []string{"mtk-kpd"}, cfg.DeviceNames)
}

func TestInstallWithoutUinputFails(t *testing.T) {
	hook := NewSystemHook(HookConfig{UinputPath: t.TempDir() + "/missing"}, nil)
	_, err := hook.Install(func(ev filter.Event, _ filter.Injector) (filter.Event, bool) { return ev, true })
	require.ErrorIs(t, err, ErrResourceCreation)
}

func TestOpenKeyboardsNoDevices(t *testing.T) {
	_, err := openKeyboards(HookConfig{DeviceGlob: t.TempDir() + "/event*"}.withDefaults())
	require.ErrorIs(t, err, ErrResourceCreation)
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

// idleDevice returns a device whose descriptor is in blocking mode and never
// produces data, the state golang-evdev leaves a keyboard in after Open.
func idleDevice(t *testing.T) *evdev.InputDevice {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	w := os.NewFile(uintptr(fds[1]), "idle-w")
	t.Cleanup(func() { w.Close() })
	return &evdev.InputDevice{Fn: "idle", Name: "idle keyboard", File: os.NewFile(uintptr(fds[0]), "idle")}
}

func TestCloseWakesIdleReaders(t *testing.T) {
	h, _ := newTestHandle()
	kb := &closeCounter{}
	h.kb = kb
	h.events = make(chan evdev.InputEvent, 1)
	h.stop = make(chan struct{})
	for i := 0; i < 2; i++ {
		dev := idleDevice(t)
		require.NoError(t, pollable(dev))
		h.devices = append(h.devices, dev)
	}
	h.run()

	closed := make(chan struct{})
	go func() {
		h.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on readers with no pending input")
	}
	require.Equal(t, 1, kb.n)

	// second call returns the stored result without closing again
	h.Close()
	require.Equal(t, 1, kb.n)
}

func TestPollableKeepsReading(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	w := os.NewFile(uintptr(fds[1]), "w")
	defer w.Close()
	dev := &evdev.InputDevice{Fn: "pipe", File: os.NewFile(uintptr(fds[0]), "pipe")}
	require.NoError(t, pollable(dev))
	defer dev.File.Close()

	_, err := w.Write([]byte("ab"))
	require.NoError(t, err)
	buf := make([]byte, 2)
	n, err := dev.File.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ab", string(buf[:n]))
}
