package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.MaxChunkDuration != 30 {
		t.Fatalf("MaxChunkDuration = %v", cfg.MaxChunkDuration)
	}
	if cfg.ASR.Model != "nvidia/parakeet-tdt-0.6b-v2" || cfg.ASR.Language != "en" {
		t.Fatalf("ASR = %+v", cfg.ASR)
	}
	if cfg.ASR.Timeout != 0 {
		t.Fatalf("Timeout = %v, want none", cfg.ASR.Timeout)
	}
	if cfg.MaxUploadBytes != 500<<20 {
		t.Fatalf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TRANSCRIBE_API_ADDR", ":9090")
	t.Setenv("TRANSCRIBE_MAX_CHUNK_DURATION", "12.5")
	t.Setenv("TRANSCRIBE_ASR_BACKEND", "http")
	t.Setenv("TRANSCRIBE_ASR_URL", "http://asr:9000")
	t.Setenv("TRANSCRIBE_ASR_TIMEOUT", "2m")
	t.Setenv("TRANSCRIBE_DEBUG", "true")
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9090" || cfg.MaxChunkDuration != 12.5 || !cfg.Debug {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.ASR.Backend != "http" || cfg.ASR.URL != "http://asr:9000" || cfg.ASR.Timeout != 2*time.Minute {
		t.Fatalf("ASR = %+v", cfg.ASR)
	}
	if cfg.ASR.APIKey != "sk-from-env" {
		t.Fatalf("APIKey = %q", cfg.ASR.APIKey)
	}
}

func TestLoadRejectsNonPositiveChunk(t *testing.T) {
	t.Setenv("TRANSCRIBE_MAX_CHUNK_DURATION", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}
