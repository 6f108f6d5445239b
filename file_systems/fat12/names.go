package fat12

import (
	"strings"
)

const (
	shortBaseLength      = 8
	shortExtensionLength = 3
)

// ShortName is an 8.3 file name as stored on disk: eight bytes of base name
// and three of extension, both upper case and padded with spaces.
type ShortName [shortBaseLength + shortExtensionLength]byte

// NormalizeName converts `name` to its on-disk 8.3 form. The extension is
// everything after the last '.'. Both parts are upper-cased, truncated and
// space-padded; a name with no '.' gets a blank extension. A leading 0xE5
// byte is stored as 0x05.
func NormalizeName(name string) ShortName {
	base, extension := name, ""
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		base, extension = name[:dot], name[dot+1:]
	}

	var short ShortName
	fillPadded(short[:shortBaseLength], base)
	fillPadded(short[shortBaseLength:], extension)
	if short[0] == direntDeleted {
		// A real leading 0xE5 would read as a deleted entry.
		short[0] = direntKanjiE5
	}
	return short
}

func fillPadded(field []byte, text string) {
	for i := range field {
		if i < len(text) {
			field[i] = upperASCII(text[i])
		} else {
			field[i] = ' '
		}
	}
}

func upperASCII(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - ('a' - 'A')
	}
	return b
}

// Base returns the name part without padding.
func (n ShortName) Base() string {
	base := strings.TrimRight(string(n[:shortBaseLength]), " ")
	if len(base) > 0 && base[0] == direntKanjiE5 {
		// 0x05 stands in for a real leading 0xE5 byte.
		base = "\xE5" + base[1:]
	}
	return base
}

// Extension returns the extension without padding.
func (n ShortName) Extension() string {
	return strings.TrimRight(string(n[shortBaseLength:]), " ")
}

// String gives the name in its usual "NAME.EXT" form.
func (n ShortName) String() string {
	if extension := n.Extension(); extension != "" {
		return n.Base() + "." + extension
	}
	return n.Base()
}
