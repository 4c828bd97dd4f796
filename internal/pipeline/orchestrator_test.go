package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/example/transcribe/api-go/internal/audio"
	"github.com/example/transcribe/api-go/internal/blob"
	"github.com/example/transcribe/api-go/internal/model"
	"github.com/example/transcribe/api-go/internal/progress"
	"github.com/example/transcribe/api-go/internal/results"
	"github.com/example/transcribe/api-go/internal/store"
)

type fakePreprocessor struct {
	err error
}

func (f fakePreprocessor) Preprocess(_ context.Context, p string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return p + ".wav", nil
}

type fakeDecoder struct {
	pcm audio.PCM
}

func (f fakeDecoder) Decode(string) (audio.PCM, error) { return f.pcm, nil }

type chunkCall struct {
	samples int
	prior   string
}

type fakeRecognizer struct {
	mu      sync.Mutex
	outputs []string
	calls   []chunkCall
	err     error
	panics  bool
}

func (f *fakeRecognizer) Warmup(context.Context) error { return nil }

func (f *fakeRecognizer) InferChunk(_ context.Context, samples []int, _ int, prior string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("recognizer exploded")
	}
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, chunkCall{samples: len(samples), prior: prior})
	out := f.outputs[0]
	f.outputs = f.outputs[1:]
	return out, nil
}

// recordingStore remembers every progress value written to the job record.
// When rejectCompleted is set, marking a job completed fails.
type recordingStore struct {
	*store.SQLite
	mu              sync.Mutex
	progress        []float64
	rejectCompleted bool
}

func (r *recordingStore) UpdateJob(ctx context.Context, id string, patch model.JobPatch) error {
	if r.rejectCompleted && patch.Status != nil && *patch.Status == model.JobCompleted {
		return errors.New("database is locked")
	}
	if patch.Progress != nil {
		r.mu.Lock()
		r.progress = append(r.progress, *patch.Progress)
		r.mu.Unlock()
	}
	return r.SQLite.UpdateJob(ctx, id, patch)
}

type fixture struct {
	orch    *Orchestrator
	jobs    *recordingStore
	results results.Store
	rec     *fakeRecognizer
}

func newFixture(t *testing.T, seconds int, pre fakePreprocessor, rec *fakeRecognizer) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	jobs := &recordingStore{SQLite: db}
	res := results.Store{Blobs: blob.LocalFS{Root: dir}}
	orch := &Orchestrator{
		Jobs:        jobs,
		Results:     res,
		Progress:    progress.NewTracker(),
		Preprocess:  pre,
		Decode:      fakeDecoder{pcm: audio.PCM{Samples: make([]int, seconds*16000), SampleRate: 16000, BitDepth: 16}},
		Recognizer:  rec,
		MaxChunkSec: 30,
	}
	return &fixture{orch: orch, jobs: jobs, results: res, rec: rec}
}

func (f *fixture) createJob(t *testing.T, id string, status model.JobStatus) {
	t.Helper()
	now := time.Now().UTC()
	err := f.jobs.CreateJob(context.Background(), model.Job{
		ID: id, CreatedAt: now, UpdatedAt: now, Status: status,
		Filename: "talk.mp3", FilePath: "/uploads/" + id + "/talk.mp3",
	})
	if err != nil {
		t.Fatalf("CreateJob() error = %v", err)
	}
}

func (f *fixture) job(t *testing.T, id string) model.Job {
	t.Helper()
	job, err := f.jobs.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	return job
}

func TestOrchestratorTwoChunkRecording(t *testing.T) {
	rec := &fakeRecognizer{outputs: []string{
		"<|time_25.00|> the quick brown fox <|time_29.70|>",
		"<|time_0.00|> jumps over the dog. <|time_3.00|>",
	}}
	f := newFixture(t, 45, fakePreprocessor{}, rec)
	f.createJob(t, "job1", model.JobUploaded)

	if err := f.orch.Start(context.Background(), "job1"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.orch.Wait()

	job := f.job(t, "job1")
	if job.Status != model.JobCompleted || job.Error != "" {
		t.Fatalf("job = %+v", job)
	}
	if job.Progress != 100 || job.ResultKey != "jobs/job1/results.json" {
		t.Fatalf("job progress/result = %v %q", job.Progress, job.ResultKey)
	}
	if pct, ok := f.orch.Progress.Get("job1"); !ok || pct != 100 {
		t.Fatalf("tracker = %v, %v", pct, ok)
	}

	wantCalls := []chunkCall{{samples: 30 * 16000}, {samples: 15 * 16000, prior: "the quick brown fox"}}
	if diff := cmp.Diff(wantCalls, rec.calls, cmp.AllowUnexported(chunkCall{})); diff != "" {
		t.Fatalf("recognizer calls (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{5, 10, 10, 52.5, 100}, f.jobs.progress); diff != "" {
		t.Fatalf("progress checkpoints (-want +got):\n%s", diff)
	}

	tr, err := f.results.LoadTranscript("job1")
	if err != nil {
		t.Fatalf("LoadTranscript() error = %v", err)
	}
	if tr.Duration != 45 || len(tr.Segments) != 1 {
		t.Fatalf("transcript = %+v", tr)
	}
	seg := tr.Segments[0]
	want := model.Segment{Start: 25, End: 33, Text: "the quick brown fox jumps over the dog."}
	if diff := cmp.Diff(want, seg, cmpopts.EquateApprox(0, 1e-9), cmpopts.IgnoreFields(model.Segment{}, "Words")); diff != "" {
		t.Fatalf("segment (-want +got):\n%s", diff)
	}
	if len(seg.Words) != 8 || seg.Words[len(seg.Words)-1].End != seg.End {
		t.Fatalf("words = %+v", seg.Words)
	}
}

func TestOrchestratorSingleChunkSkipsMerge(t *testing.T) {
	rec := &fakeRecognizer{outputs: []string{"<|0.00|> hello <|0.40|> <|0.60|> world <|1.00|>"}}
	f := newFixture(t, 2, fakePreprocessor{}, rec)
	f.createJob(t, "job1", model.JobUploaded)

	if err := f.orch.Start(context.Background(), "job1"); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()

	tr, err := f.results.LoadTranscript("job1")
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("single chunk output was merged: %+v", tr.Segments)
	}
}

func TestOrchestratorPreprocessFailure(t *testing.T) {
	cause := errors.New("ffmpeg: unsupported codec")
	f := newFixture(t, 1, fakePreprocessor{err: cause}, &fakeRecognizer{})
	f.createJob(t, "job1", model.JobUploaded)

	if err := f.orch.Start(context.Background(), "job1"); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()

	job := f.job(t, "job1")
	if job.Status != model.JobFailed || job.Error != cause.Error() {
		t.Fatalf("job = %+v", job)
	}
	if _, ok := f.orch.Progress.Get("job1"); ok {
		t.Fatal("progress entry should be removed on failure")
	}
}

func TestOrchestratorInferenceFailure(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("model inference failed: CUDA out of memory")}
	f := newFixture(t, 45, fakePreprocessor{}, rec)
	f.createJob(t, "job1", model.JobUploaded)

	if err := f.orch.Start(context.Background(), "job1"); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()

	job := f.job(t, "job1")
	if job.Status != model.JobFailed || !strings.Contains(job.Error, "CUDA out of memory") {
		t.Fatalf("job = %+v", job)
	}
	if !strings.HasPrefix(job.Error, "chunk 1/2") {
		t.Fatalf("error lacks chunk context: %q", job.Error)
	}
	if _, ok := f.orch.Progress.Get("job1"); ok {
		t.Fatal("progress entry should be removed on failure")
	}
}

func TestOrchestratorFailsJobWhenCompletionNotRecorded(t *testing.T) {
	rec := &fakeRecognizer{outputs: []string{"<|time_0.00|> hello <|time_0.50|>"}}
	f := newFixture(t, 1, fakePreprocessor{}, rec)
	f.jobs.rejectCompleted = true
	f.createJob(t, "job1", model.JobUploaded)

	if err := f.orch.Start(context.Background(), "job1"); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()

	job := f.job(t, "job1")
	if job.Status != model.JobFailed || !strings.Contains(job.Error, "database is locked") {
		t.Fatalf("job = %+v", job)
	}
	if _, ok := f.orch.Progress.Get("job1"); ok {
		t.Fatal("progress entry should be removed on failure")
	}
}

func TestOrchestratorRecoversPanic(t *testing.T) {
	f := newFixture(t, 1, fakePreprocessor{}, &fakeRecognizer{panics: true})
	f.createJob(t, "job1", model.JobUploaded)

	if err := f.orch.Start(context.Background(), "job1"); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()

	job := f.job(t, "job1")
	if job.Status != model.JobFailed || !strings.Contains(job.Error, "recognizer exploded") {
		t.Fatalf("job = %+v", job)
	}
}

func TestOrchestratorMalformedOutputFails(t *testing.T) {
	rec := &fakeRecognizer{outputs: []string{"<|time_oops|> hi"}}
	f := newFixture(t, 1, fakePreprocessor{}, rec)
	f.createJob(t, "job1", model.JobUploaded)

	if err := f.orch.Start(context.Background(), "job1"); err != nil {
		t.Fatal(err)
	}
	f.orch.Wait()

	if job := f.job(t, "job1"); job.Status != model.JobFailed || !strings.Contains(job.Error, "malformed") {
		t.Fatalf("job = %+v", job)
	}
}

func TestStartRejectsJobsNotUploaded(t *testing.T) {
	for _, status := range []model.JobStatus{model.JobCompleted, model.JobFailed, model.JobProcessing} {
		t.Run(string(status), func(t *testing.T) {
			f := newFixture(t, 1, fakePreprocessor{}, &fakeRecognizer{})
			f.createJob(t, "job1", status)
			before := f.job(t, "job1")

			err := f.orch.Start(context.Background(), "job1")
			if !errors.Is(err, model.ErrInvalidState) {
				t.Fatalf("Start() err = %v, want ErrInvalidState", err)
			}
			f.orch.Wait()

			after := f.job(t, "job1")
			if diff := cmp.Diff(before, after); diff != "" {
				t.Fatalf("job mutated (-before +after):\n%s", diff)
			}
			if _, ok := f.orch.Progress.Get("job1"); ok {
				t.Fatal("rejected start created a progress entry")
			}
		})
	}
}

func TestStartUnknownJob(t *testing.T) {
	f := newFixture(t, 1, fakePreprocessor{}, &fakeRecognizer{})
	if err := f.orch.Start(context.Background(), "nope"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
