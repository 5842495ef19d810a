package keymaps

// Defaults returns the mappings written into a fresh configuration.
// It swaps backslash and backspace on the current platform.
func Defaults() map[string]KeyMapping {
	return map[string]KeyMapping{
		"backslash2backspace": {From: keyBackslash, To: keyBackspace},
		"backspace2backslash": {From: keyBackspace, To: keyBackslash},
	}
}

// DefaultPairs returns Defaults as a list ordered by name
func DefaultPairs() []KeyMapping {
	d := Defaults()
	return []KeyMapping{d["backslash2backspace"], d["backspace2backslash"]}
}
