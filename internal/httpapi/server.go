package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/transcribe/api-go/internal/blob"
	"github.com/example/transcribe/api-go/internal/export"
	"github.com/example/transcribe/api-go/internal/logging"
	"github.com/example/transcribe/api-go/internal/model"
	"github.com/example/transcribe/api-go/internal/progress"
	"github.com/example/transcribe/api-go/internal/results"
	"github.com/example/transcribe/api-go/internal/store"
)

// Starter schedules transcription of an uploaded job.
type Starter interface {
	Start(ctx context.Context, jobID string) error
}

// Segmenter cuts [start, end] seconds out of src into dst.
type Segmenter interface {
	ExtractSegment(ctx context.Context, src, dst string, start, end float64) error
}

type Server struct {
	Blobs          blob.LocalFS
	Jobs           *store.SQLite
	Results        results.Store
	Runner         Starter
	Progress       *progress.Tracker
	Segments       Segmenter
	MaxUploadBytes int64
	BaseURL        string // optional, for generating absolute download URLs
	Log            *logging.Logger
}

func (s Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/transcribe/{id}", s.handleTranscribe)
		r.Get("/status/{id}", s.handleStatus)
		r.Get("/results/{id}", s.handleResults)
		r.Get("/download/{id}/{format}", s.handleDownload)
		r.Get("/segment_audio/{id}", s.handleSegmentAudio)
		r.Get("/jobs", s.handleListJobs)
	})

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("parse multipart: %w", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing 'file' upload: %w", err))
		return
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean("/" + header.Filename))
	// Dot-prefixed names are reserved for files derived from the upload.
	if name == "" || name == "/" || strings.HasPrefix(name, ".") {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid filename %q", header.Filename))
		return
	}

	id := uuid.NewString()
	inputKey := results.InputKey(id, name)
	if _, err := s.Blobs.Put(inputKey, file); err != nil {
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("store upload: %w", err))
		return
	}
	filePath, err := s.Blobs.Path(inputKey)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	now := time.Now().UTC()
	job := model.Job{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    model.JobUploaded,
		Filename:  name,
		FilePath:  filePath,
	}
	if err := s.Jobs.CreateJob(ctx, job); err != nil {
		_ = os.RemoveAll(filepath.Dir(filepath.Dir(filePath)))
		writeErr(w, http.StatusInternalServerError, fmt.Errorf("create job: %w", err))
		return
	}
	s.log().Infow("upload stored", "job", id, "file", name)

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "filename": name})
}

func (s Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	err := s.Runner.Start(ctx, id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": id, "status": model.JobPreprocessing})
	case errors.Is(err, model.ErrInvalidState):
		msg := err.Error()
		if job, getErr := s.Jobs.GetJob(ctx, id); getErr == nil {
			msg = fmt.Sprintf("Job is in %s state, cannot start transcription", job.Status)
		}
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": msg})
	default:
		writeErr(w, statusFor(err), err)
	}
}

func (s Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	pct := job.Progress
	if live, ok := s.Progress.Get(job.ID); ok {
		pct = live
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"progress":   pct,
		"error":      job.Error,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	})
}

func (s Server) handleResults(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != model.JobCompleted {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": fmt.Sprintf("Job is in %s state, results not available", job.Status),
		})
		return
	}
	t, err := s.Results.LoadTranscript(job.ID)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": job.ID, "results": t})
}

func (s Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != model.JobCompleted {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("job is in %s state, results not available", job.Status))
		return
	}
	format, err := export.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	key, err := s.Results.Render(job.ID, format)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return
	}
	f, err := s.Blobs.Open(key)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", attachment(downloadName(job.Filename, format)))
	_, _ = io.Copy(w, f)
}

func (s Server) handleSegmentAudio(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	start, err := queryFloat(r, "start_time")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	end, err := queryFloat(r, "end_time")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if start < 0 || end <= start {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid range %.3f-%.3f", start, end))
		return
	}

	name := fmt.Sprintf("segment_%.3f_%.3f.wav", start, end)
	key := path.Join(results.JobDir(job.ID), "segments", name)
	if !s.Blobs.Exists(key) {
		dst, err := s.Blobs.Path(key)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		if err := s.Segments.ExtractSegment(r.Context(), job.FilePath, dst, start, end); err != nil {
			writeErr(w, http.StatusInternalServerError, fmt.Errorf("extract audio segment: %w", err))
			return
		}
	}
	f, err := s.Blobs.Open(key)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", attachment(name))
	_, _ = io.Copy(w, f)
}

func (s Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var status *model.JobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed := model.JobStatus(raw)
		if !parsed.Valid() {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid status: %s", raw))
			return
		}
		status = &parsed
	}

	limit := 25
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %s", raw))
			return
		}
		limit = min(value, 100)
	}

	jobs, err := s.Jobs.ListJobs(ctx, status, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	resp := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobResponse(job, s.BaseURL))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s Server) loadJob(w http.ResponseWriter, r *http.Request) (model.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := s.Jobs.GetJob(r.Context(), id)
	if err != nil {
		writeErr(w, statusFor(err), err)
		return model.Job{}, false
	}
	return job, true
}

func (s Server) log() *logging.Logger {
	if s.Log == nil {
		return logging.Nop()
	}
	return s.Log
}

func jobResponse(job model.Job, baseURL string) map[string]any {
	resp := map[string]any{
		"job_id":     job.ID,
		"filename":   job.Filename,
		"status":     job.Status,
		"progress":   job.Progress,
		"error":      job.Error,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.Status == model.JobCompleted {
		base := strings.TrimRight(baseURL, "/")
		downloads := make(map[string]string, len(export.Formats()))
		for _, f := range export.Formats() {
			downloads[f.String()] = fmt.Sprintf("%s/api/download/%s/%s", base, job.ID, f)
		}
		resp["downloads"] = downloads
	}
	return resp
}

// downloadName keeps the upload's name up to its first dot.
func downloadName(filename string, f export.Format) string {
	stem, _, _ := strings.Cut(filename, ".")
	if stem == "" {
		stem = "transcription"
	}
	return stem + "." + f.String()
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func queryFloat(r *http.Request, key string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, fmt.Errorf("missing %s", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", key, raw)
	}
	return v, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]any{"error": err.Error()})
}
