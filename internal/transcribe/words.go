package transcribe

import (
	"strings"
	"unicode/utf8"

	"github.com/example/transcribe/api-go/internal/model"
)

const (
	minWordSeconds = 0.1
	maxWordSeconds = 1.0
	// averageWordRunes scales a word's share of the average duration by its length.
	averageWordRunes = 5
)

// EstimateWordTimings lays the words of text out consecutively from start,
// sizing each proportionally to its length. Only the last word's end is
// pinned to the segment end; earlier words may not fill the span. Words that
// would run past end are capped there, so short segments can end with
// zero-length words.
func EstimateWordTimings(text string, start, end float64) []model.Word {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return []model.Word{}
	}

	avg := (end - start) / float64(len(fields))
	words := make([]model.Word, 0, len(fields))
	cursor := start
	for _, f := range fields {
		d := float64(utf8.RuneCountInString(f)) * avg / averageWordRunes
		d = max(minWordSeconds, min(d, maxWordSeconds))
		words = append(words, model.Word{Word: f, Start: min(cursor, end), End: min(cursor+d, end)})
		cursor += d
	}
	words[len(words)-1].End = end
	return words
}

// BackfillWords estimates timings for every segment that has none.
func BackfillWords(segs []model.Segment) {
	for i := range segs {
		if len(segs[i].Words) == 0 {
			segs[i].Words = EstimateWordTimings(segs[i].Text, segs[i].Start, segs[i].End)
		}
	}
}
