package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/example/transcribe/api-go/internal/model"
)

const defaultOpenAIModel = "whisper-1"

// OpenAI calls the audio transcription endpoint with verbose_json output and
// renders its timed segments back into a marker-delimited token stream.
type OpenAI struct {
	client   openai.Client
	model    string
	language string
}

func NewOpenAI(cfg Config) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai asr backend requires an API key")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.URL != "" {
		opts = append(opts, option.WithBaseURL(cfg.URL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	m := cfg.Model
	if m == "" || strings.Contains(m, "/") {
		m = defaultOpenAIModel
	}
	return &OpenAI{
		client:   openai.NewClient(opts...),
		model:    m,
		language: cfg.Language,
	}, nil
}

// Warmup is a no-op; the hosted model needs no loading.
func (o *OpenAI) Warmup(context.Context) error { return nil }

func (o *OpenAI) InferChunk(ctx context.Context, samples []int, sampleRate int, prior string) (string, error) {
	wavData, err := encodeChunk(samples, sampleRate)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrModelInference, err)
	}

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(bytes.NewReader(wavData), "chunk.wav", "audio/wav"),
		Model:          openai.AudioModel(o.model),
		ResponseFormat: openai.AudioResponseFormatVerboseJSON,
	}
	if o.language != "" {
		params.Language = openai.String(o.language)
	}
	if p := lastWords(prior, 32); p != "" {
		params.Prompt = openai.String(p)
	}

	var raw []byte
	if _, err := o.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&raw)); err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrModelInference, err)
	}
	return renderVerboseJSON(raw)
}

// renderVerboseJSON converts {"segments":[{"start","end","text"}]} into
// "<|start|> words <|end|>" tokens.
func renderVerboseJSON(raw []byte) (string, error) {
	if !gjson.ValidBytes(raw) {
		return "", fmt.Errorf("%w: invalid transcription response", model.ErrMalformedOutput)
	}
	doc := gjson.ParseBytes(raw)

	var b strings.Builder
	segments := doc.Get("segments")
	if !segments.Exists() || len(segments.Array()) == 0 {
		text := strings.TrimSpace(doc.Get("text").String())
		if text == "" {
			return "", nil
		}
		writeSegment(&b, 0, doc.Get("duration").Float(), text)
		return b.String(), nil
	}
	segments.ForEach(func(_, seg gjson.Result) bool {
		writeSegment(&b, seg.Get("start").Float(), seg.Get("end").Float(), strings.TrimSpace(seg.Get("text").String()))
		return true
	})
	return b.String(), nil
}

func writeSegment(b *strings.Builder, start, end float64, text string) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString("<|" + strconv.FormatFloat(start, 'f', 2, 64) + "|> ")
	b.WriteString(text)
	b.WriteString(" <|" + strconv.FormatFloat(end, 'f', 2, 64) + "|>")
}
