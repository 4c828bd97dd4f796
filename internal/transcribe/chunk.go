package transcribe

import (
	"fmt"
	"math"
)

// Chunk is a contiguous [StartSample, EndSample) slice of the decoded audio
// fed to the recognizer in one call.
type Chunk struct {
	Index       int
	StartSample int
	EndSample   int
	// Offset re-aligns chunk-local timestamps to the recording timeline.
	Offset float64
}

func (c Chunk) Len() int { return c.EndSample - c.StartSample }

// End is the chunk's end position in recording seconds.
func (c Chunk) End(sampleRate int) float64 {
	return float64(c.EndSample) / float64(sampleRate)
}

func (c Chunk) String() string {
	return fmt.Sprintf("chunk %d: [%d,%d) +%.3fs", c.Index, c.StartSample, c.EndSample, c.Offset)
}

// PlanChunks splits total samples into consecutive ranges of at most
// maxChunkSeconds each. The ranges cover [0,total) exactly and none is empty.
func PlanChunks(total, sampleRate int, maxChunkSeconds float64) ([]Chunk, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("plan chunks: sample rate must be positive, got %d", sampleRate)
	}
	if maxChunkSeconds <= 0 || math.IsNaN(maxChunkSeconds) || math.IsInf(maxChunkSeconds, 0) {
		return nil, fmt.Errorf("plan chunks: max chunk duration must be positive, got %v", maxChunkSeconds)
	}
	if total <= 0 {
		return nil, nil
	}

	chunkSize := int(maxChunkSeconds * float64(sampleRate))
	if chunkSize < 1 {
		chunkSize = 1
	}
	if total <= chunkSize {
		return []Chunk{{Index: 0, StartSample: 0, EndSample: total, Offset: 0}}, nil
	}

	count := (total + chunkSize - 1) / chunkSize
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := i * chunkSize
		end := min(start+chunkSize, total)
		chunks = append(chunks, Chunk{
			Index:       i,
			StartSample: start,
			EndSample:   end,
			Offset:      float64(start) / float64(sampleRate),
		})
	}
	return chunks, nil
}
