package sim

const (
	scancodeLeftShift = 0x2a
	scancodeRelease   = 0x80
)

// Scan code set 1 make codes for the US 104-key layout, indexed by the unshifted and shifted
// character each key produces
var (
	unshiftedKeys = map[rune]uint8{}
	shiftedKeys   = map[rune]uint8{}
)

func init() {
	rows := []struct {
		first     uint8
		unshifted string
		shifted   string
	}{
		{0x02, "1234567890-=", "!@#$%^&*()_+"},
		{0x10, "qwertyuiop[]", "QWERTYUIOP{}"},
		{0x1e, "asdfghjkl;'`", "ASDFGHJKL:\"~"},
		{0x2b, "\\zxcvbnm,./", "|ZXCVBNM<>?"},
	}

	for _, row := range rows {
		for i, r := range []rune(row.unshifted) {
			unshiftedKeys[r] = row.first + uint8(i)
		}
		for i, r := range []rune(row.shifted) {
			shiftedKeys[r] = row.first + uint8(i)
		}
	}

	unshiftedKeys['\b'] = 0x0e
	unshiftedKeys[0x7f] = 0x0e
	unshiftedKeys['\t'] = 0x0f
	unshiftedKeys['\n'] = 0x1c
	unshiftedKeys['\r'] = 0x1c
	unshiftedKeys[' '] = 0x39
	unshiftedKeys[0x1b] = 0x01
}

// Scancodes returns the set 1 scancodes a keyboard sends when r is typed: a make code and a break
// code for the key, wrapped in a shift press and release when needed. It returns false for
// characters the layout cannot produce.
func Scancodes(r rune) ([]uint8, bool) {
	if code, ok := unshiftedKeys[r]; ok {
		return []uint8{code, code | scancodeRelease}, true
	}

	if code, ok := shiftedKeys[r]; ok {
		return []uint8{scancodeLeftShift, code, code | scancodeRelease, scancodeLeftShift | scancodeRelease}, true
	}

	return nil, false
}

// Type presses the keys that produce r. It returns false if r cannot be typed or an interrupt was
// not delivered.
func (k *Keyboard) Type(r rune) bool {
	scancodes, ok := Scancodes(r)
	if !ok {
		return false
	}

	delivered := true
	for _, scancode := range scancodes {
		delivered = k.Press(scancode) && delivered
	}
	return delivered
}
