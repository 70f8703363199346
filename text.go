package embedpy

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Guest strings are UTF-8. Text crossing the bridge in either direction is
// passed through the UTF-8 codec, which replaces ill-formed sequences with
// U+FFFD. The conversion is lossy for such input and never fails.

func encodeText(s string) string {
	out, err := unicode.UTF8.NewEncoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "�")
	}
	return out
}

func decodeText(s string) string {
	out, err := unicode.UTF8.NewDecoder().String(s)
	if err != nil {
		return strings.ToValidUTF8(s, "�")
	}
	return out
}
