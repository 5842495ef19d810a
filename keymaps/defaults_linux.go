package keymaps

// Event codes from linux/input-event-codes.h
const (
	keyBackspace = 14
	keyBackslash = 43
)
