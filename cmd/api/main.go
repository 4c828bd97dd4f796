package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/transcribe/api-go/internal/audio"
	"github.com/example/transcribe/api-go/internal/blob"
	"github.com/example/transcribe/api-go/internal/config"
	"github.com/example/transcribe/api-go/internal/httpapi"
	"github.com/example/transcribe/api-go/internal/inference"
	"github.com/example/transcribe/api-go/internal/logging"
	"github.com/example/transcribe/api-go/internal/pipeline"
	"github.com/example/transcribe/api-go/internal/progress"
	"github.com/example/transcribe/api-go/internal/results"
	"github.com/example/transcribe/api-go/internal/store"
)

func main() {
	loadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Debug)
	defer func() { _ = log.Sync() }()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalw("mkdir data dir", "error", err)
	}
	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		log.Fatalw("resolve data dir", "error", err)
	}

	dbPath := filepath.Join(dataDir, "jobs.db")
	jobStore, err := store.Open(dbPath)
	if err != nil {
		log.Fatalw("open job store", "error", err)
	}
	defer jobStore.Close()

	blobStore := blob.LocalFS{Root: dataDir}
	resultStore := results.Store{Blobs: blobStore}
	tracker := progress.NewTracker()
	ffmpeg := audio.NewFFmpeg(cfg.FFmpegPath)

	recognizer, err := inference.New(inference.Config{
		Backend:  cfg.ASR.Backend,
		URL:      cfg.ASR.URL,
		Model:    cfg.ASR.Model,
		Language: cfg.ASR.Language,
		APIKey:   cfg.ASR.APIKey,
		Timeout:  cfg.ASR.Timeout,
	})
	if err != nil {
		log.Fatalw("asr backend config error", "error", err)
	}
	if recognizer == nil {
		log.Fatalw("no asr backend configured; set TRANSCRIBE_ASR_URL or OPENAI_API_KEY")
	}

	orch := &pipeline.Orchestrator{
		Jobs:        jobStore,
		Results:     resultStore,
		Progress:    tracker,
		Preprocess:  ffmpeg,
		Decode:      audio.WAVDecoder{},
		Recognizer:  recognizer,
		Log:         log,
		MaxChunkSec: cfg.MaxChunkDuration,
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		addr := cfg.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		baseURL = fmt.Sprintf("http://%s", addr)
	}

	server := httpapi.Server{
		Blobs:          blobStore,
		Jobs:           jobStore,
		Results:        resultStore,
		Runner:         orch,
		Progress:       tracker,
		Segments:       ffmpeg,
		MaxUploadBytes: cfg.MaxUploadBytes,
		BaseURL:        baseURL,
		Log:            log,
	}
	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Infow("API listening", "addr", cfg.Addr, "baseURL", baseURL, "maxChunk", cfg.MaxChunkDuration)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalw("listen", "error", err)
	}
	log.Infow("waiting for running transcriptions")
	orch.Wait()
}

func loadDotEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}
