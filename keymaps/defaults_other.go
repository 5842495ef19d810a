//go:build !linux && !darwin

package keymaps

// No native hook exists here; reuse the Linux codes so configs stay portable.
const (
	keyBackspace = 14
	keyBackslash = 43
)
