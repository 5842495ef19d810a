//go:build cgo

package tap

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goKeySwap/filter"
)

func TestQuartzCloseRightAfterInstall(t *testing.T) {
	hook := NewSystemHook(HookConfig{}, nil)
	for i := 0; i < 20; i++ {
		h, err := hook.Install(func(ev filter.Event, _ filter.Injector) (filter.Event, bool) { return ev, true })
		if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrResourceCreation) {
			t.Skipf("event tap unavailable: %v", err)
		}
		require.NoError(t, err)

		closed := make(chan struct{})
		go func() {
			h.Close()
			close(closed)
		}()
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("Close did not stop the run loop")
		}
	}
}
