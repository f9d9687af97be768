package tagging

import (
	"fmt"
	"strings"

	"github.com/cesargomez89/dictation/internal/domain"
)

// FormatLRC renders segments as LRC lines, "[mm:ss.xx] text", which most
// players show as synced lyrics.
func FormatLRC(segments []domain.Segment) string {
	var result strings.Builder
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		result.WriteString(lrcTimestamp(seg.Start))
		result.WriteString(" ")
		result.WriteString(text)
		result.WriteString("\n")
	}
	return result.String()
}

func lrcTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int64(seconds*100 + 0.5)
	minutes := centis / 6000
	centis %= 6000
	return fmt.Sprintf("[%02d:%02d.%02d]", minutes, centis/100, centis%100)
}
