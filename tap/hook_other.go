//go:build !linux && !(darwin && cgo)

package tap

import (
	"fmt"
	"runtime"
)

type unsupportedHook struct{}

// NewSystemHook returns a hook that always fails on this platform
func NewSystemHook(HookConfig, Logger) Hook {
	return unsupportedHook{}
}

func (unsupportedHook) Install(Callback) (Handle, error) {
	return nil, fmt.Errorf("%w: unsupported platform %s", ErrResourceCreation, runtime.GOOS)
}

// ListKeyboards is only implemented on linux
func ListKeyboards(HookConfig) ([]Keyboard, error) {
	return nil, fmt.Errorf("%w: device listing is not supported on %s", ErrResourceCreation, runtime.GOOS)
}
