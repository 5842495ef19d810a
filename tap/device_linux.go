package tap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	evdev "github.com/gvalkov/golang-evdev"
)

// keys every real keyboard reports; mice and power buttons lack them
var requiredKeys = []int{evdev.KEY_A, evdev.KEY_Z, evdev.KEY_SPACE, evdev.KEY_ENTER, evdev.KEY_LEFTSHIFT}

func isKeyboard(dev *evdev.InputDevice) bool {
	codes, ok := dev.CapabilitiesFlat[evdev.EV_KEY]
	if !ok {
		return false
	}
	have := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		have[c] = struct{}{}
	}
	for _, c := range requiredKeys {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

func wanted(name string, names []string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// openKeyboards opens every keyboard matching cfg. The caller owns the
// returned devices and must close their files.
func openKeyboards(cfg HookConfig) ([]*evdev.InputDevice, error) {
	paths, err := filepath.Glob(cfg.DeviceGlob)
	if err != nil {
		return nil, fmt.Errorf("%w: list input devices: %v", ErrResourceCreation, err)
	}
	sort.Strings(paths)

	var devices []*evdev.InputDevice
	var lastErr error
	denied := false
	for _, path := range paths {
		dev, err := evdev.Open(path)
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				denied = true
			}
			lastErr = err
			continue
		}
		if dev.Name == cfg.VirtualName || !isKeyboard(dev) || !wanted(dev.Name, cfg.DeviceNames) {
			dev.File.Close()
			continue
		}
		devices = append(devices, dev)
	}

	if len(devices) == 0 {
		switch {
		case denied:
			return nil, fmt.Errorf("%w: cannot read %s: %v", ErrPermissionDenied, cfg.DeviceGlob, lastErr)
		case len(paths) == 0:
			return nil, fmt.Errorf("%w: no input devices match %s", ErrResourceCreation, cfg.DeviceGlob)
		default:
			return nil, fmt.Errorf("%w: no suitable keyboard found", ErrResourceCreation)
		}
	}
	return devices, nil
}

// ListKeyboards returns the keyboards the hook would grab
func ListKeyboards(cfg HookConfig) ([]Keyboard, error) {
	devices, err := openKeyboards(cfg.withDefaults())
	if err != nil {
		return nil, err
	}
	out := make([]Keyboard, 0, len(devices))
	for _, dev := range devices {
		out = append(out, Keyboard{Path: dev.Fn, Name: dev.Name})
		dev.File.Close()
	}
	return out, nil
}
