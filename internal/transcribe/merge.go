package transcribe

import (
	"strings"

	"github.com/example/transcribe/api-go/internal/model"
)

const (
	// mergeGapSeconds is the largest silence still treated as a mid-sentence
	// pause when stitching chunk outputs.
	mergeGapSeconds = 0.5
	sentenceEnders  = ".!?;"
)

// MergeSegments joins adjacent segments that look like fragments of one
// sentence split at a chunk boundary. The input slice is not modified.
func MergeSegments(segs []model.Segment) []model.Segment {
	if len(segs) == 0 {
		return []model.Segment{}
	}

	merged := make([]model.Segment, 0, len(segs))
	current := cloneSegment(segs[0])
	for _, seg := range segs[1:] {
		if shouldMerge(current, seg) {
			current.End = max(current.End, seg.End)
			current.Text += " " + seg.Text
			current.Words = append(current.Words, seg.Words...)
			continue
		}
		merged = append(merged, current)
		current = cloneSegment(seg)
	}
	return append(merged, current)
}

func shouldMerge(current, next model.Segment) bool {
	if next.Start-current.End >= mergeGapSeconds {
		return false
	}
	if current.Text == "" {
		return true
	}
	return !strings.ContainsRune(sentenceEnders, rune(current.Text[len(current.Text)-1]))
}

func cloneSegment(s model.Segment) model.Segment {
	if s.Words != nil {
		s.Words = append([]model.Word(nil), s.Words...)
	}
	return s
}
