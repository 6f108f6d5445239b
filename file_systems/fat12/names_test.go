package fat12_test

import (
	"testing"

	"github.com/andreitdr/MiniOS/file_systems/fat12"
	"github.com/stretchr/testify/assert"
)

func shortName(s string) fat12.ShortName {
	var name fat12.ShortName
	copy(name[:], s)
	return name
}

func TestNormalizeName(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"TEST.TXT", "TEST    TXT"},
		{"test.txt", "TEST    TXT"},
		{"TeSt.TxT", "TEST    TXT"},
		{"README", "README     "},
		{"averyverylongname.txt", "AVERYVERTXT"},
		{"archive.tar.gz", "ARCHIVE.GZ "},
		{"kernel.binary", "KERNEL  BIN"},
		{"a.b", "A       B  "},
		{".hidden", "        HID"},
		{"", "           "},
		{"\xE5scape.dat", "\x05SCAPE  DAT"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, shortName(tc.expected), fat12.NormalizeName(tc.input))
		})
	}
}

func TestNormalizeName__CaseInvariant(t *testing.T) {
	assert.Equal(t, fat12.NormalizeName("TEST.TXT"), fat12.NormalizeName("test.txt"))
	assert.Equal(t, fat12.NormalizeName("Config.Sys"), fat12.NormalizeName("CONFIG.SYS"))
}

func TestNormalizeName__LeadingE5RoundTrip(t *testing.T) {
	stored := shortName("\x05SCAPE  DAT")
	assert.Equal(t, stored, fat12.NormalizeName(stored.String()))
}

func TestShortName__String(t *testing.T) {
	assert.Equal(t, "TEST.TXT", shortName("TEST    TXT").String())
	assert.Equal(t, "README", shortName("README     ").String())
	assert.Equal(t, "\xE5SCAPE.DAT", shortName("\x05SCAPE  DAT").String())
	assert.Equal(t, "TEST", shortName("TEST    TXT").Base())
	assert.Equal(t, "TXT", shortName("TEST    TXT").Extension())
}
