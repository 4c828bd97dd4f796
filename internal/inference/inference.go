package inference

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/example/transcribe/api-go/internal/audio"
)

// Recognizer turns a chunk of PCM samples into the model's raw token stream,
// with timestamps embedded as <|seconds|> markers.
type Recognizer interface {
	Warmup(ctx context.Context) error
	InferChunk(ctx context.Context, samples []int, sampleRate int, prior string) (string, error)
}

type Config struct {
	Backend  string // "http" or "openai"
	URL      string
	Model    string
	Language string
	APIKey   string
	// Timeout bounds one model call; zero means no limit.
	Timeout time.Duration
}

// New builds the configured recognizer. It returns nil, nil when no
// backend is configured so the caller can decide whether that is fatal.
func New(cfg Config) (Recognizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "":
		if cfg.URL != "" {
			return NewHTTP(cfg)
		}
		if cfg.APIKey != "" {
			return NewOpenAI(cfg)
		}
		return nil, nil
	case "http":
		return NewHTTP(cfg)
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown asr backend %q", cfg.Backend)
	}
}

// encodeChunk renders samples as 16-bit mono WAV bytes.
func encodeChunk(samples []int, sampleRate int) ([]byte, error) {
	f, err := os.CreateTemp("", "chunk-*.wav")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())
	if err := audio.EncodeWAV(f, samples, sampleRate, 16); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(f.Name())
}

// lastWords keeps the tail of prior context so prompts stay short.
func lastWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[len(fields)-n:]
	}
	return strings.Join(fields, " ")
}
