package quota

import (
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/worldforge/internal/es"
)

// Fixed field widths in bytes.
const (
	SizeInt64     = 8
	SizeUUID      = 16
	SizeBool      = 1
	SizeTimestamp = 8
)

// TextSize is the byte length of s in NFC form, matching what the codec
// persists.
func TextSize(s string) int64 {
	return int64(len(norm.NFC.String(s)))
}

// NullableTextSize is TextSize of the value, or 0 when null.
func NullableTextSize(s es.Nullable[string]) int64 {
	if !s.Valid {
		return 0
	}
	return TextSize(s.Value)
}
