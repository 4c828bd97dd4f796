package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/example/transcribe/api-go/internal/audio"
	"github.com/example/transcribe/api-go/internal/logging"
	"github.com/example/transcribe/api-go/internal/model"
	"github.com/example/transcribe/api-go/internal/progress"
	"github.com/example/transcribe/api-go/internal/transcribe"
)

// Progress checkpoints.
const (
	progressModelLoading = 5.0
	progressModelReady   = 10.0
	progressChunksSpan   = 85.0
	progressDone         = 100.0
)

type Preprocessor interface {
	Preprocess(ctx context.Context, audioPath string) (string, error)
}

type Decoder interface {
	Decode(pcmPath string) (audio.PCM, error)
}

type Recognizer interface {
	Warmup(ctx context.Context) error
	InferChunk(ctx context.Context, samples []int, sampleRate int, prior string) (string, error)
}

// JobStore is the subset of the job store the orchestrator writes through.
type JobStore interface {
	GetJob(ctx context.Context, id string) (model.Job, error)
	UpdateJob(ctx context.Context, id string, patch model.JobPatch) error
	TransitionJob(ctx context.Context, id string, from model.JobStatus, patch model.JobPatch) error
}

type TranscriptStore interface {
	SaveTranscript(jobID string, t model.Transcript) (string, error)
}

// Orchestrator drives jobs from uploaded to completed or failed. It is the
// only writer of a job's status, progress and error once a run starts.
type Orchestrator struct {
	Jobs        JobStore
	Results     TranscriptStore
	Progress    *progress.Tracker
	Preprocess  Preprocessor
	Decode      Decoder
	Recognizer  Recognizer
	Log         *logging.Logger
	MaxChunkSec float64

	runs conc.WaitGroup
}

// Start moves an uploaded job to preprocessing and schedules its run in the
// background. Jobs in any other state are rejected untouched.
func (o *Orchestrator) Start(ctx context.Context, jobID string) error {
	job, err := o.Jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	next, err := model.NextStatus(job.Status, model.EventPreprocess)
	if err != nil {
		return err
	}
	if err := o.Jobs.TransitionJob(ctx, jobID, model.JobUploaded, model.JobPatch{Status: &next}); err != nil {
		return err
	}

	o.Progress.Set(jobID, 0)
	runCtx := context.WithoutCancel(ctx)
	o.runs.Go(func() { o.run(runCtx, job) })
	return nil
}

// Wait blocks until every scheduled run has returned.
func (o *Orchestrator) Wait() {
	o.runs.Wait()
}

func (o *Orchestrator) run(ctx context.Context, job model.Job) {
	log := o.log().With("job", job.ID)
	log.Infow("starting transcription", "file", job.FilePath)

	status := model.JobPreprocessing
	var (
		transcript model.Transcript
		err        error
	)
	var pc panics.Catcher
	pc.Try(func() {
		transcript, err = o.execute(ctx, job.ID, job.FilePath, &status, log)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}
	if err != nil {
		o.fail(ctx, job.ID, status, err, log)
		return
	}

	key, err := o.Results.SaveTranscript(job.ID, transcript)
	if err != nil {
		o.fail(ctx, job.ID, status, err, log)
		return
	}
	done, err := model.NextStatus(status, model.EventComplete)
	if err != nil {
		o.fail(ctx, job.ID, status, err, log)
		return
	}
	if err := o.Jobs.UpdateJob(ctx, job.ID, model.JobPatch{Status: &done, ResultKey: &key}); err != nil {
		o.fail(ctx, job.ID, status, fmt.Errorf("mark job completed: %w", err), log)
		return
	}
	log.Infow("transcription completed", "segments", len(transcript.Segments), "duration", transcript.Duration)
}

// execute runs preprocessing and processing, keeping *status current so a
// failure is recorded from the right state.
func (o *Orchestrator) execute(ctx context.Context, jobID, filePath string, status *model.JobStatus, log *logging.Logger) (model.Transcript, error) {
	log.Infow("preprocessing audio")
	pcmPath, err := o.Preprocess.Preprocess(ctx, filePath)
	if err != nil {
		return model.Transcript{}, err
	}

	next, err := model.NextStatus(*status, model.EventProcess)
	if err != nil {
		return model.Transcript{}, err
	}
	if err := o.Jobs.UpdateJob(ctx, jobID, model.JobPatch{Status: &next}); err != nil {
		return model.Transcript{}, err
	}
	*status = next

	if err := o.setProgress(ctx, jobID, progressModelLoading); err != nil {
		return model.Transcript{}, err
	}
	log.Infow("loading recognizer")
	if err := o.Recognizer.Warmup(ctx); err != nil {
		return model.Transcript{}, err
	}
	if err := o.setProgress(ctx, jobID, progressModelReady); err != nil {
		return model.Transcript{}, err
	}

	pcm, err := o.Decode.Decode(pcmPath)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("%w: decode %s: %v", model.ErrPreprocessing, pcmPath, err)
	}
	log.Infow("audio decoded", "duration", pcm.Duration(), "sampleRate", pcm.SampleRate)

	segments, err := o.transcribeChunks(ctx, jobID, pcm, log)
	if err != nil {
		return model.Transcript{}, err
	}
	transcribe.BackfillWords(segments)
	if err := o.setProgress(ctx, jobID, progressDone); err != nil {
		return model.Transcript{}, err
	}
	return model.Transcript{Segments: segments, Duration: pcm.Duration()}, nil
}

// transcribeChunks feeds chunks to the recognizer strictly in order; each
// call gets the previous chunk's trailing text as context.
func (o *Orchestrator) transcribeChunks(ctx context.Context, jobID string, pcm audio.PCM, log *logging.Logger) ([]model.Segment, error) {
	chunks, err := transcribe.PlanChunks(len(pcm.Samples), pcm.SampleRate, o.MaxChunkSec)
	if err != nil {
		return nil, err
	}

	var (
		all   []model.Segment
		prior string
	)
	for i, c := range chunks {
		pct := progressModelReady + float64(i)/float64(len(chunks))*progressChunksSpan
		if err := o.setProgress(ctx, jobID, pct); err != nil {
			return nil, err
		}
		log.Infow("processing chunk", "chunk", fmt.Sprintf("%d/%d", i+1, len(chunks)), "offset", c.Offset)

		raw, err := o.Recognizer.InferChunk(ctx, pcm.Samples[c.StartSample:c.EndSample], pcm.SampleRate, prior)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		segs, err := transcribe.ExtractSegments(raw, c.Offset)
		if err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		segs = transcribe.ClampToChunk(segs, c.End(pcm.SampleRate))
		all = append(all, segs...)
		if len(segs) > 0 {
			prior = segs[len(segs)-1].Text
		}
	}

	if len(chunks) > 1 {
		all = transcribe.MergeSegments(all)
	}
	if all == nil {
		all = []model.Segment{}
	}
	return all, nil
}

func (o *Orchestrator) setProgress(ctx context.Context, jobID string, pct float64) error {
	stored := o.Progress.Set(jobID, pct)
	return o.Jobs.UpdateJob(ctx, jobID, model.JobPatch{Progress: &stored})
}

func (o *Orchestrator) fail(ctx context.Context, jobID string, from model.JobStatus, cause error, log *logging.Logger) {
	log.Errorw("transcription failed", "status", from, "error", cause)
	o.Progress.Clear(jobID)

	failed, err := model.NextStatus(from, model.EventFail)
	if err != nil {
		log.Errorw("cannot fail job", "error", err)
		return
	}
	msg := strings.TrimSpace(cause.Error())
	if err := o.Jobs.UpdateJob(ctx, jobID, model.JobPatch{Status: &failed, Error: &msg}); err != nil {
		log.Errorw("record job failure", "error", errors.Join(cause, err))
	}
}

func (o *Orchestrator) log() *logging.Logger {
	if o.Log == nil {
		return logging.Nop()
	}
	return o.Log
}
