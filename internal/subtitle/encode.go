package subtitle

import (
	"fmt"
	"math"
	"strings"

	"github.com/cesargomez89/dictation/internal/constants"
)

// Cue is one caption to render as SRT
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Encode renders cues as SRT. Cues without text are dropped, and text is
// wrapped every constants.SubtitleLineWords words.
func Encode(cues []Cue) string {
	var b strings.Builder
	n := 0
	for _, c := range cues {
		words := strings.Fields(c.Text)
		if len(words) == 0 {
			continue
		}
		n++
		if n > 1 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n", n, FormatTimestamp(c.Start), FormatTimestamp(c.End))
		for i := 0; i < len(words); i += constants.SubtitleLineWords {
			end := i + constants.SubtitleLineWords
			if end > len(words) {
				end = len(words)
			}
			b.WriteString(strings.Join(words[i:end], " "))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatTimestamp renders seconds as "HH:MM:SS,mmm". Negative input clamps to zero.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	ms := total % 1000
	total /= 1000
	s := total % 60
	total /= 60
	m := total % 60
	h := total / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
