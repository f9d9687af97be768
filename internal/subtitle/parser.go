// Package subtitle converts SRT transcripts to ordered segments and back.
package subtitle

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/cesargomez89/dictation/internal/domain"
)

// timingPattern matches "HH:MM:SS,mmm --> HH:MM:SS,mmm" at the start of a line.
var timingPattern = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2}),(\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2}),(\d{3})`)

var timestampPattern = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2}),(\d{3})$`)

// Diagnostic reports a block that was skipped because its timing line is malformed.
type Diagnostic struct {
	Block  int    // zero-based position of the block in the input
	Reason string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("block %d: %s", d.Block, d.Reason)
}

// blockResult is the outcome of classifying one block: either a segment
// (without its final index) or a skip, with or without a diagnostic.
type blockResult struct {
	emitted    bool
	start, end float64
	text       string
	diagnostic *Diagnostic
}

// Parse converts raw SRT text into segments in input order. Blocks with
// fewer than three lines are skipped silently; blocks whose timing line is
// malformed are skipped and reported as diagnostics. Parse never fails.
func Parse(raw string) ([]domain.Segment, []Diagnostic) {
	segments := []domain.Segment{}
	var diagnostics []Diagnostic

	for i, block := range splitBlocks(raw) {
		res := classifyBlock(i, block)
		if res.diagnostic != nil {
			diagnostics = append(diagnostics, *res.diagnostic)
		}
		if !res.emitted {
			continue
		}
		segments = append(segments, domain.Segment{
			Index: len(segments),
			Start: res.start,
			End:   res.end,
			Text:  res.text,
		})
	}

	return segments, diagnostics
}

// Count returns the number of segments Parse would emit for raw.
func Count(raw string) int {
	n := 0
	for i, block := range splitBlocks(raw) {
		if classifyBlock(i, block).emitted {
			n++
		}
	}
	return n
}

// ParseFile reads an SRT artifact from disk and parses it.
func ParseFile(path string) ([]domain.Segment, []Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	segments, diagnostics := Parse(string(data))
	return segments, diagnostics, nil
}

// ParseTimestamp converts "HH:MM:SS,mmm" to seconds.
func ParseTimestamp(ts string) (float64, error) {
	m := timestampPattern.FindStringSubmatch(strings.TrimSpace(ts))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp format: %s", ts)
	}
	return toSeconds(m[1], m[2], m[3], m[4]), nil
}

func splitBlocks(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n\n")
}

func classifyBlock(pos int, block string) blockResult {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	if len(lines) < 3 {
		return blockResult{}
	}

	m := timingPattern.FindStringSubmatch(lines[1])
	if m == nil {
		return blockResult{diagnostic: &Diagnostic{Block: pos, Reason: "invalid timestamp format"}}
	}

	start := toSeconds(m[1], m[2], m[3], m[4])
	end := toSeconds(m[5], m[6], m[7], m[8])
	if end < start {
		return blockResult{diagnostic: &Diagnostic{Block: pos, Reason: "end time before start time"}}
	}

	return blockResult{
		emitted: true,
		start:   start,
		end:     end,
		text:    strings.Join(lines[2:], " "),
	}
}

// toSeconds sums the whole seconds as integers so the only rounding
// is the final millisecond fraction.
func toSeconds(h, m, s, ms string) float64 {
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	seconds, _ := strconv.Atoi(s)
	millis, _ := strconv.Atoi(ms)

	whole := hours*3600 + minutes*60 + seconds
	return float64(whole) + float64(millis)/1000
}
