package model

import (
	"errors"
	"time"
)

type JobStatus string

const (
	JobUploaded      JobStatus = "uploaded"
	JobPreprocessing JobStatus = "preprocessing"
	JobProcessing    JobStatus = "processing"
	JobCompleted     JobStatus = "completed"
	JobFailed        JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobUploaded, JobPreprocessing, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid job state")
	ErrInvalidFormat   = errors.New("invalid output format")
	ErrPreprocessing   = errors.New("preprocessing failed")
	ErrModelInference  = errors.New("model inference failed")
	ErrMalformedOutput = errors.New("malformed model output")
)

// Job represents a transcription job record in the job store.
//
// - FilePath is the uploaded source audio, set once by the upload handler.
// - ResultKey is the blob key of the persisted transcript, set on completion.
type Job struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Status    JobStatus `json:"status"`
	Progress  float64   `json:"progress"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"filePath"`
	ResultKey string    `json:"resultKey,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// JobPatch is used for partial updates.
type JobPatch struct {
	Status    *JobStatus
	Progress  *float64
	ResultKey *string
	Error     *string
}

// Word is one word of a segment with its (possibly estimated) timing.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one utterance in absolute recording time.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Transcript struct {
	Segments []Segment `json:"segments"`
	Duration float64   `json:"duration"`
}
