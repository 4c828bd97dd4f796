package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/example/transcribe/api-go/internal/blob"
	"github.com/example/transcribe/api-go/internal/export"
	"github.com/example/transcribe/api-go/internal/model"
)

const transcriptName = "results.json"

// Store persists finished transcripts and the export files rendered from
// them under jobs/<id>/ in the blob store.
type Store struct {
	Blobs blob.LocalFS
}

func JobDir(jobID string) string { return path.Join("jobs", jobID) }

// InputKey is where an uploaded file is stored. Uploads get their own
// directory so they cannot collide with results or exports.
func InputKey(jobID, filename string) string {
	return path.Join(JobDir(jobID), "input", filename)
}

func TranscriptKey(jobID string) string { return path.Join(JobDir(jobID), transcriptName) }

func ExportKey(jobID string, f export.Format) string {
	return path.Join(JobDir(jobID), f.Filename())
}

// SaveTranscript writes t and returns its blob key.
func (s Store) SaveTranscript(jobID string, t model.Transcript) (string, error) {
	raw, err := export.Encode(t, export.FormatJSON)
	if err != nil {
		return "", err
	}
	key, err := s.Blobs.PutBytes(TranscriptKey(jobID), raw)
	if err != nil {
		return "", fmt.Errorf("save transcript: %w", err)
	}
	return key, nil
}

func (s Store) LoadTranscript(jobID string) (model.Transcript, error) {
	raw, err := s.Blobs.ReadFile(TranscriptKey(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return model.Transcript{}, fmt.Errorf("transcript for job %s: %w", jobID, model.ErrNotFound)
		}
		return model.Transcript{}, err
	}
	var t model.Transcript
	if err := json.Unmarshal(raw, &t); err != nil {
		return model.Transcript{}, fmt.Errorf("decode transcript for job %s: %w", jobID, err)
	}
	return t, nil
}

// Render returns the blob key of the job's transcript in format f,
// encoding and caching it on first request.
func (s Store) Render(jobID string, f export.Format) (string, error) {
	key := ExportKey(jobID, f)
	if s.Blobs.Exists(key) {
		return key, nil
	}
	t, err := s.LoadTranscript(jobID)
	if err != nil {
		return "", err
	}
	raw, err := export.Encode(t, f)
	if err != nil {
		return "", err
	}
	return s.Blobs.PutBytes(key, raw)
}
