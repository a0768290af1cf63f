// Package codec converts between the payload representations accepted at the
// API boundary (text, hex, base64) and raw bytes.
package codec

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Format selects the representation of a payload
type Format string

const (
	FormatText   Format = "text"
	FormatHex    Format = "hex"
	FormatBase64 Format = "base64"
)

// ErrInvalidEncoding is returned when a payload does not match its declared format
var ErrInvalidEncoding = errors.New("invalid encoding")

// ParseFormat maps a wire value to a Format. The empty string means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatHex:
		return FormatHex, nil
	case FormatBase64:
		return FormatBase64, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrInvalidEncoding, s)
	}
}

// Decode converts payload into bytes according to format
func Decode(payload string, format Format) ([]byte, error) {
	switch format {
	case "", FormatText:
		return []byte(payload), nil
	case FormatHex:
		return decodeHex(payload)
	case FormatBase64:
		data, err := base64.StdEncoding.Strict().DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrInvalidEncoding, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidEncoding, format)
	}
}

// Encode renders data in the requested format. Hex output is lowercase with no
// separators.
func Encode(data []byte, format Format) string {
	switch format {
	case FormatHex:
		return hex.EncodeToString(data)
	case FormatBase64:
		return base64.StdEncoding.EncodeToString(data)
	default:
		return string(data)
	}
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '\t', '\r', '\n', ':', '-', ',':
		return true
	}
	return false
}

func decodeHex(payload string) ([]byte, error) {
	tokens := strings.FieldsFunc(payload, isSeparator)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: hex: empty payload", ErrInvalidEncoding)
	}

	cleaned := strings.Join(tokens, "")
	if len(cleaned)%2 != 0 {
		return nil, fmt.Errorf("%w: hex: odd length %d", ErrInvalidEncoding, len(cleaned))
	}

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: hex: %v", ErrInvalidEncoding, err)
	}
	return data, nil
}

// HexDump renders data as space-separated uppercase hex pairs
func HexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	const digits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(data)*3 - 1)
	for i, c := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte(digits[c>>4])
		b.WriteByte(digits[c&0x0f])
	}
	return b.String()
}

// PrintableASCII renders data with every byte outside 0x20..0x7E replaced by '.'
func PrintableASCII(data []byte) string {
	out := make([]byte, len(data))
	for i, c := range data {
		if c >= 0x20 && c <= 0x7e {
			out[i] = c
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}
