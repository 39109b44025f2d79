package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// fallbackEncoding decodes single-byte text that is not valid UTF-8 when the
// config names no encoding. Central-European exports are the common case.
var fallbackEncoding encoding.Encoding = charmap.Windows1250

// DecodeText converts data to UTF-8. A UTF-8 BOM is dropped; enc == nil means
// UTF-8 with a windows-1250 fallback for invalid input. The returned name is
// the encoding that was applied.
func DecodeText(data []byte, enc encoding.Encoding) (string, string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if enc == nil {
		if utf8.Valid(data) {
			return string(data), "utf-8", nil
		}
		enc = fallbackEncoding
	}
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode text: %w", err)
	}
	return string(bytes.TrimPrefix(out, utf8BOM)), encodingName(enc), nil
}

func encodingName(enc encoding.Encoding) string {
	if cm, ok := enc.(*charmap.Charmap); ok {
		return strings.ReplaceAll(strings.ToLower(cm.String()), " ", "-")
	}
	return fmt.Sprint(enc)
}

// splitLines splits text into lines without trailing CR.
func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, "\r")
	}
	return lines
}
