package keyboard

import (
	"fmt"
	"unicode"
)

// Key is a key decoded from scan code set 1
type Key struct {
	// Rune is the character the key produces, or zero for keys that produce none
	Rune rune
	// Name identifies keys that do not produce a character
	Name string
}

func (k Key) String() string {
	if k.Rune != 0 {
		return string(k.Rune)
	}
	return k.Name
}

const (
	extendedPrefix = 0xe0
	releaseBit     = 0x80

	leftShift  = 0x2a
	rightShift = 0x36
	capsLock   = 0x3a
)

type keyMapping struct {
	normal  rune
	shifted rune
	name    string
}

// US 104-key layout, make codes of scan code set 1
var set1 = map[uint8]keyMapping{
	0x01: {name: "Escape"},
	0x02: {'1', '!', ""}, 0x03: {'2', '@', ""}, 0x04: {'3', '#', ""}, 0x05: {'4', '$', ""},
	0x06: {'5', '%', ""}, 0x07: {'6', '^', ""}, 0x08: {'7', '&', ""}, 0x09: {'8', '*', ""},
	0x0a: {'9', '(', ""}, 0x0b: {'0', ')', ""}, 0x0c: {'-', '_', ""}, 0x0d: {'=', '+', ""},
	0x0e: {'\b', '\b', ""}, 0x0f: {'\t', '\t', ""},
	0x10: {'q', 'Q', ""}, 0x11: {'w', 'W', ""}, 0x12: {'e', 'E', ""}, 0x13: {'r', 'R', ""},
	0x14: {'t', 'T', ""}, 0x15: {'y', 'Y', ""}, 0x16: {'u', 'U', ""}, 0x17: {'i', 'I', ""},
	0x18: {'o', 'O', ""}, 0x19: {'p', 'P', ""}, 0x1a: {'[', '{', ""}, 0x1b: {']', '}', ""},
	0x1c: {'\n', '\n', ""},
	0x1d: {name: "LControl"},
	0x1e: {'a', 'A', ""}, 0x1f: {'s', 'S', ""}, 0x20: {'d', 'D', ""}, 0x21: {'f', 'F', ""},
	0x22: {'g', 'G', ""}, 0x23: {'h', 'H', ""}, 0x24: {'j', 'J', ""}, 0x25: {'k', 'K', ""},
	0x26: {'l', 'L', ""}, 0x27: {';', ':', ""}, 0x28: {'\'', '"', ""}, 0x29: {'`', '~', ""},
	0x2b: {'\\', '|', ""},
	0x2c: {'z', 'Z', ""}, 0x2d: {'x', 'X', ""}, 0x2e: {'c', 'C', ""}, 0x2f: {'v', 'V', ""},
	0x30: {'b', 'B', ""}, 0x31: {'n', 'N', ""}, 0x32: {'m', 'M', ""}, 0x33: {',', '<', ""},
	0x34: {'.', '>', ""}, 0x35: {'/', '?', ""},
	0x37: {'*', '*', ""},
	0x38: {name: "LAlt"},
	0x39: {' ', ' ', ""},
	0x3b: {name: "F1"}, 0x3c: {name: "F2"}, 0x3d: {name: "F3"}, 0x3e: {name: "F4"},
	0x3f: {name: "F5"}, 0x40: {name: "F6"}, 0x41: {name: "F7"}, 0x42: {name: "F8"},
	0x43: {name: "F9"}, 0x44: {name: "F10"}, 0x57: {name: "F11"}, 0x58: {name: "F12"},
	0x45: {name: "NumpadLock"}, 0x46: {name: "ScrollLock"},
}

var extendedSet1 = map[uint8]string{
	0x1c: "NumpadEnter",
	0x1d: "RControl",
	0x38: "RAltGr",
	0x47: "Home",
	0x48: "ArrowUp",
	0x49: "PageUp",
	0x4b: "ArrowLeft",
	0x4d: "ArrowRight",
	0x4f: "End",
	0x50: "ArrowDown",
	0x51: "PageDown",
	0x52: "Insert",
	0x53: "Delete",
	0x5b: "LWin",
	0x5c: "RWin",
	0x5d: "Apps",
}

// Decoder turns a stream of set 1 scancodes into keys, tracking the shift and caps lock state.
// Control keys are reported by name and do not modify other keys.
type Decoder struct {
	extended   bool
	leftShift  bool
	rightShift bool
	capsLock   bool
}

// Process consumes one scancode. It returns false for scancodes that do not complete a key press:
// releases, modifier presses and the first byte of an extended sequence.
func (d *Decoder) Process(scancode uint8) (Key, bool) {
	if scancode == extendedPrefix {
		d.extended = true
		return Key{}, false
	}

	extended := d.extended
	d.extended = false

	released := scancode&releaseBit != 0
	code := scancode &^ releaseBit

	if extended {
		if released {
			return Key{}, false
		}

		name, ok := extendedSet1[code]
		if !ok {
			name = fmt.Sprintf("Unknown(0xe0 0x%02x)", code)
		}
		return Key{Name: name}, true
	}

	switch code {
	case leftShift:
		d.leftShift = !released
		return Key{}, false
	case rightShift:
		d.rightShift = !released
		return Key{}, false
	case capsLock:
		if !released {
			d.capsLock = !d.capsLock
		}
		return Key{}, false
	}

	if released {
		return Key{}, false
	}

	mapping, ok := set1[code]
	if !ok {
		return Key{Name: fmt.Sprintf("Unknown(0x%02x)", code)}, true
	}

	if mapping.normal == 0 {
		return Key{Name: mapping.name}, true
	}

	shifted := d.leftShift || d.rightShift
	if unicode.IsLetter(mapping.normal) && d.capsLock {
		shifted = !shifted
	}

	if shifted {
		return Key{Rune: mapping.shifted}, true
	}
	return Key{Rune: mapping.normal}, true
}
