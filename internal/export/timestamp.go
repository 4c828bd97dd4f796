package export

import (
	"errors"
	"fmt"
	"math"
)

// TimestampStyle selects the textual layout produced by FormatTimestamp.
type TimestampStyle int

const (
	StyleDefault TimestampStyle = iota
	StyleSeconds
	StyleSRT
	StyleVTT
	StyleLRC
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// FormatTimestamp renders a second offset for the given style. Sub-second
// components are truncated, never rounded, so they cannot carry into the
// next unit.
func FormatTimestamp(seconds float64, style TimestampStyle) (string, error) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "", fmt.Errorf("%w: %v", ErrInvalidTimestamp, seconds)
	}
	if style == StyleSeconds {
		return fmt.Sprintf("%.3f", seconds), nil
	}

	hours := int(seconds / 3600)
	minutes := int(math.Mod(seconds, 3600) / 60)
	secs := math.Mod(seconds, 60)
	whole := int(secs)
	frac := secs - float64(whole)

	switch style {
	case StyleSRT:
		return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, whole, int(frac*1000)), nil
	case StyleVTT:
		return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, whole, int(frac*1000)), nil
	case StyleLRC:
		return fmt.Sprintf("%02d:%02d.%02d", int(seconds/60), whole, int(frac*100)), nil
	case StyleDefault:
		return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs), nil
	}
	return "", fmt.Errorf("%w: unknown style %d", ErrInvalidTimestamp, style)
}
