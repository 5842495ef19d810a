package keymaps

// Virtual key codes from HIToolbox Events.h (kVK_ANSI_Backslash, kVK_Delete)
const (
	keyBackslash = 42
	keyBackspace = 51
)
