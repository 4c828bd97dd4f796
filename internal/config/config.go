package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "TRANSCRIBE"

type Config struct {
	Addr             string
	DataDir          string
	BaseURL          string
	Debug            bool
	MaxUploadBytes   int64
	MaxChunkDuration float64
	FFmpegPath       string
	ASR              ASRConfig
}

type ASRConfig struct {
	Backend  string
	URL      string
	Model    string
	Language string
	APIKey   string
	Timeout  time.Duration
}

// Load reads TRANSCRIBE_* environment variables, falling back to defaults.
func Load() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	v.SetDefault("api_addr", ":8080")
	v.SetDefault("data_dir", filepath.Join(".", "uploads"))
	v.SetDefault("base_url", "")
	v.SetDefault("debug", false)
	v.SetDefault("max_upload_mb", 500)
	v.SetDefault("max_chunk_duration", 30)
	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("asr_backend", "")
	v.SetDefault("asr_url", "")
	v.SetDefault("asr_model", "nvidia/parakeet-tdt-0.6b-v2")
	v.SetDefault("asr_language", "en")
	v.SetDefault("asr_timeout", time.Duration(0))
	// OPENAI_API_KEY is honoured without the prefix, as every OpenAI tool does.
	_ = v.BindEnv("openai_api_key", envPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY")

	cfg := Config{
		Addr:             v.GetString("api_addr"),
		DataDir:          v.GetString("data_dir"),
		BaseURL:          v.GetString("base_url"),
		Debug:            v.GetBool("debug"),
		MaxUploadBytes:   v.GetInt64("max_upload_mb") << 20,
		MaxChunkDuration: v.GetFloat64("max_chunk_duration"),
		FFmpegPath:       v.GetString("ffmpeg_path"),
		ASR: ASRConfig{
			Backend:  v.GetString("asr_backend"),
			URL:      v.GetString("asr_url"),
			Model:    v.GetString("asr_model"),
			Language: v.GetString("asr_language"),
			APIKey:   v.GetString("openai_api_key"),
			Timeout:  v.GetDuration("asr_timeout"),
		},
	}
	if cfg.MaxChunkDuration <= 0 {
		return Config{}, fmt.Errorf("%s_MAX_CHUNK_DURATION must be positive, got %v", envPrefix, cfg.MaxChunkDuration)
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, fmt.Errorf("%s_MAX_UPLOAD_MB must be positive", envPrefix)
	}
	return cfg, nil
}
