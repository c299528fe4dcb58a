package core

// encoding.go normalizes the byte encoding of text exports before parsing.
//
// Spreadsheet tools on Windows emit either UTF-8 with a BOM or Windows-1252.
// Valid UTF-8 (with or without BOM, or UTF-16 with a BOM) is decoded as such;
// anything else is read as Windows-1252 so accented headers survive.

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// detectEncoding picks the decoder for data.
func detectEncoding(data []byte) encoding.Encoding {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return unicode.UTF8BOM
	case bytes.HasPrefix(data, bomUTF16LE):
		return unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case bytes.HasPrefix(data, bomUTF16BE):
		return unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)
	case utf8.Valid(data):
		return unicode.UTF8
	default:
		return charmap.Windows1252
	}
}

// decodeText converts data to UTF-8, dropping any BOM.
func decodeText(data []byte) []byte {
	enc := detectEncoding(data)
	out, _, err := transform.Bytes(unicode.BOMOverride(enc.NewDecoder()), data)
	if err != nil {
		// Windows-1252 maps every byte, so this only trips on broken UTF-16.
		out, _, _ = transform.Bytes(charmap.Windows1252.NewDecoder(), data)
	}
	return out
}
