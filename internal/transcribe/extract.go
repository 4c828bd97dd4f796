package transcribe

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/example/transcribe/api-go/internal/model"
)

// unterminatedWordSeconds is the per-word duration assumed when the token
// stream ends before a segment's closing timestamp.
const unterminatedWordSeconds = 0.3

type openSegment struct {
	start float64
	words []string
}

// ExtractSegments parses one chunk's raw recognizer output into segments in
// absolute recording time. Timestamp markers alternate between opening and
// closing a segment; text tokens outside an open segment are dropped.
func ExtractSegments(raw string, offset float64) ([]model.Segment, error) {
	var (
		out     []model.Segment
		current *openSegment
	)

	for _, tok := range strings.Fields(raw) {
		ts, isTime, err := parseTimestamp(tok)
		if err != nil {
			return nil, err
		}
		switch {
		case isTime && current == nil:
			current = &openSegment{start: ts + offset}
		case isTime:
			end := ts + offset
			if end < current.start {
				return nil, fmt.Errorf("%w: segment closes at %.3fs before it opens at %.3fs",
					model.ErrMalformedOutput, end, current.start)
			}
			out = appendSegment(out, current, end)
			current = nil
		case isControl(tok):
		case current != nil:
			current.words = append(current.words, tok)
		}
	}

	if current != nil {
		end := current.start + float64(len(current.words))*unterminatedWordSeconds
		out = appendSegment(out, current, end)
	}
	return out, nil
}

// ClampToChunk caps segment ends at limit (the chunk's end in recording
// time) so a synthetic trailing end cannot overlap the next chunk. A segment
// starting at or beyond limit is left untouched.
func ClampToChunk(segs []model.Segment, limit float64) []model.Segment {
	for i := range segs {
		if segs[i].End > limit && segs[i].Start < limit {
			segs[i].End = limit
		}
	}
	return segs
}

// appendSegment drops segments that have no text or no duration.
func appendSegment(out []model.Segment, seg *openSegment, end float64) []model.Segment {
	text := strings.Join(seg.words, " ")
	if text == "" || end <= seg.start {
		return out
	}
	return append(out, model.Segment{Start: seg.start, End: end, Text: text})
}

// parseTimestamp recognizes <|time_12.34|> and <|12.34|> markers.
func parseTimestamp(tok string) (float64, bool, error) {
	if !strings.HasPrefix(tok, "<|") || !strings.HasSuffix(tok, "|>") || len(tok) < 4 {
		return 0, false, nil
	}
	body := tok[2 : len(tok)-2]
	explicit := strings.HasPrefix(body, "time_")
	if explicit {
		body = strings.TrimPrefix(body, "time_")
	}
	v, err := strconv.ParseFloat(body, 64)
	if err != nil {
		if explicit {
			return 0, false, fmt.Errorf("%w: bad timestamp token %q", model.ErrMalformedOutput, tok)
		}
		return 0, false, nil
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: out of range timestamp token %q", model.ErrMalformedOutput, tok)
	}
	return v, true, nil
}

func isControl(tok string) bool {
	return strings.HasPrefix(tok, "<|") || strings.HasSuffix(tok, "|>")
}
