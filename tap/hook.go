package tap

import "slices"

// HookConfig holds the platform hook settings. Fields a platform does not
// use are ignored.
type HookConfig struct {
	// UinputPath is the uinput control node (linux)
	UinputPath string
	// DeviceGlob selects the evdev nodes to scan (linux)
	DeviceGlob string
	// DeviceNames limits grabbing to keyboards with these names (linux)
	DeviceNames []string
	// VirtualName names the virtual keyboard created by the hook (linux)
	VirtualName string
}

// DefaultHookConfig returns the settings used when nothing is configured
func DefaultHookConfig() HookConfig {
	return HookConfig{
		UinputPath:  "/dev/uinput",
		DeviceGlob:  "/dev/input/event*",
		VirtualName: "goKeySwap",
	}
}

func (c HookConfig) withDefaults() HookConfig {
	d := DefaultHookConfig()
	if c.UinputPath == "" {
		c.UinputPath = d.UinputPath
	}
	if c.DeviceGlob == "" {
		c.DeviceGlob = d.DeviceGlob
	}
	if c.VirtualName == "" {
		c.VirtualName = d.VirtualName
	}
	return c
}

// Keyboard describes an input device the hook would grab
type Keyboard struct {
	Path string
	Name string
}

// Equal reports whether c and o select the same devices
func (c HookConfig) Equal(o HookConfig) bool {
	a, b := c.withDefaults(), o.withDefaults()
	return a.UinputPath == b.UinputPath &&
		a.DeviceGlob == b.DeviceGlob &&
		a.VirtualName == b.VirtualName &&
		slices.Equal(a.DeviceNames, b.DeviceNames)
}
