package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/example/transcribe/api-go/internal/model"
)

// HTTP posts each chunk as audio/wav to a self-hosted recognizer that
// answers with the raw token stream, either as text/plain or as JSON with a
// "tokens" (or "text") field.
type HTTP struct {
	endpoint   string
	model      string
	language   string
	httpClient *http.Client
}

func NewHTTP(cfg Config) (*HTTP, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("http asr backend requires a URL")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid asr url: %w", err)
	}
	return &HTTP{
		endpoint:   strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Warmup asks the server to load its model via GET /health.
func (h *HTTP) Warmup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: warmup: %v", model.ErrModelInference, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: warmup returned status %d", model.ErrModelInference, resp.StatusCode)
	}
	return nil
}

func (h *HTTP) InferChunk(ctx context.Context, samples []int, sampleRate int, prior string) (string, error) {
	wavData, err := encodeChunk(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrModelInference, err)
	}

	q := url.Values{}
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("timestamps", "true")
	if h.model != "" {
		q.Set("model", h.model)
	}
	if h.language != "" {
		q.Set("language", h.language)
	}
	if p := lastWords(prior, 32); p != "" {
		q.Set("prompt", p)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/transcribe?"+q.Encode(), bytes.NewReader(wavData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrModelInference, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", model.ErrModelInference, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: recognizer returned status %d: %s",
			model.ErrModelInference, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if !gjson.ValidBytes(body) {
			return "", fmt.Errorf("%w: invalid json response", model.ErrMalformedOutput)
		}
		if tokens := gjson.GetBytes(body, "tokens"); tokens.Exists() {
			return tokens.String(), nil
		}
		return gjson.GetBytes(body, "text").String(), nil
	}
	return string(body), nil
}
