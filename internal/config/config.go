// Package config handles loading and validating the medivoice configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the medivoice daemon.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Transports    TransportsConfig    `mapstructure:"transports"`
	Transcription TranscriptionConfig `mapstructure:"transcription"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Generation    GenerationConfig    `mapstructure:"generation"`
	TTS           TTSConfig           `mapstructure:"tts"`
	Conversations ConversationsConfig `mapstructure:"conversations"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ServerConfig holds the health, metrics and probe server settings.
type ServerConfig struct {
	HealthPort int  `mapstructure:"health_port"`
	GRPCPort   int  `mapstructure:"grpc_port"`
	GRPCHealth bool `mapstructure:"grpc_health"`
}

// TransportsConfig holds the configuration for each client-facing transport.
type TransportsConfig struct {
	HTTP HTTPConfig `mapstructure:"http"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Port         int      `mapstructure:"port"`
	PublicURL    string   `mapstructure:"public_url"`    // prefix for doctor_voice_url
	MaxUploadMB  int64    `mapstructure:"max_upload_mb"` // multipart body limit
	AllowOrigins []string `mapstructure:"allow_origins"` // CORS; "*" allows any origin
}

// TranscriptionConfig configures the speech-to-text engine.
type TranscriptionConfig struct {
	Backend string        `mapstructure:"backend"` // "openai" or "asr"
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	ASR     ASRConfig     `mapstructure:"asr"`
}

// ASRConfig configures a self-hosted whisper-asr-webservice instance
// (POST /asr with query parameters).
type ASRConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	VADFilter bool   `mapstructure:"vad_filter"`
}

// RetrievalConfig selects and configures the reference index.
type RetrievalConfig struct {
	Backend   string          `mapstructure:"backend"` // "none", "http" or "milvus"
	TopK      int             `mapstructure:"top_k"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	HTTP      HTTPIndexConfig `mapstructure:"http"`
	Milvus    MilvusConfig    `mapstructure:"milvus"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

// HTTPIndexConfig configures a JSON search endpoint.
type HTTPIndexConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
}

// MilvusConfig configures the Milvus vector collection holding reference passages.
type MilvusConfig struct {
	Address     string `mapstructure:"address"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	Collection  string `mapstructure:"collection"`
	VectorField string `mapstructure:"vector_field"`
	TextField   string `mapstructure:"text_field"`
	MetricType  string `mapstructure:"metric_type"` // "L2", "IP" or "COSINE"
}

// EmbeddingConfig configures the OpenAI-compatible embeddings endpoint used by vector retrieval.
type EmbeddingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// GenerationConfig configures the OpenAI-compatible chat completion endpoint.
type GenerationConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	VisionModel string        `mapstructure:"vision_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// TTSConfig selects and configures the text-to-speech backend.
type TTSConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Backend    string        `mapstructure:"backend"` // "piper" or "openai"
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
	VoiceTTL   time.Duration `mapstructure:"voice_ttl"` // undownloaded voice files older than this are swept
	Piper      PiperConfig   `mapstructure:"piper"`
	OpenAI     OpenAITTS     `mapstructure:"openai"`
}

// PiperConfig holds Piper TTS settings (Wyoming protocol).
//
// For a single Piper instance that serves all languages, set Endpoint.
// For per-language instances, set Endpoints which maps ISO-639-1 codes to
// individual Wyoming TCP endpoints. Endpoints takes precedence and Endpoint
// is the fallback.
type PiperConfig struct {
	Endpoint  string            `mapstructure:"endpoint"`
	Endpoints map[string]string `mapstructure:"endpoints"`
	Voices    map[string]string `mapstructure:"voices"`
}

// OpenAITTS configures an OpenAI-compatible /audio/speech endpoint.
type OpenAITTS struct {
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Model   string            `mapstructure:"model"`
	Voice   string            `mapstructure:"voice"`
	Voices  map[string]string `mapstructure:"voices"` // ISO-639-1 -> voice override
}

// ConversationsConfig controls the in-memory conversation store.
type ConversationsConfig struct {
	DefaultLanguage string        `mapstructure:"default_language"`
	SystemPrompt    string        `mapstructure:"system_prompt"` // text/template with {{.Language}}; empty uses the built-in prompt
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`      // 0 keeps conversations for the process lifetime
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
}

// StorageConfig holds file-system locations.
type StorageConfig struct {
	TempDir  string `mapstructure:"temp_dir"`
	VoiceDir string `mapstructure:"voice_dir"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./medivoice.yaml, ./configs/medivoice.yaml, /etc/medivoice/medivoice.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("medivoice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/medivoice")
	}

	// Environment variables: MEDIVOICE_TRANSPORTS_HTTP_PORT, MEDIVOICE_GENERATION_API_KEY, etc.
	v.SetEnvPrefix("MEDIVOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	// Resolve env var references in sensitive fields (e.g., "${GROQ_API_KEY}").
	cfg.Transcription.APIKey = resolveEnvRef(cfg.Transcription.APIKey)
	cfg.Generation.APIKey = resolveEnvRef(cfg.Generation.APIKey)
	cfg.Retrieval.HTTP.APIKey = resolveEnvRef(cfg.Retrieval.HTTP.APIKey)
	cfg.Retrieval.Embedding.APIKey = resolveEnvRef(cfg.Retrieval.Embedding.APIKey)
	cfg.Retrieval.Milvus.Password = resolveEnvRef(cfg.Retrieval.Milvus.Password)
	cfg.TTS.OpenAI.APIKey = resolveEnvRef(cfg.TTS.OpenAI.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.grpc_health", true)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8000)
	v.SetDefault("transports.http.public_url", "http://127.0.0.1:8000")
	v.SetDefault("transports.http.max_upload_mb", 25)
	v.SetDefault("transports.http.allow_origins", []string{"*"})
	v.SetDefault("transcription.backend", "openai")
	v.SetDefault("transcription.asr.endpoint", "http://localhost:9000/asr")
	v.SetDefault("transcription.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("transcription.api_key", "${GROQ_API_KEY}")
	v.SetDefault("transcription.model", "whisper-large-v3")
	v.SetDefault("transcription.timeout", 60*time.Second)
	v.SetDefault("retrieval.backend", "none")
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.timeout", 10*time.Second)
	v.SetDefault("retrieval.milvus.address", "localhost:19530")
	v.SetDefault("retrieval.milvus.collection", "medical_reference")
	v.SetDefault("retrieval.milvus.vector_field", "embedding")
	v.SetDefault("retrieval.milvus.text_field", "content")
	v.SetDefault("retrieval.milvus.metric_type", "L2")
	v.SetDefault("retrieval.embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("retrieval.embedding.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("retrieval.embedding.model", "text-embedding-3-small")
	v.SetDefault("generation.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("generation.api_key", "${GROQ_API_KEY}")
	v.SetDefault("generation.model", "meta-llama/llama-4-maverick-17b-128e-instruct")
	v.SetDefault("generation.vision_model", "meta-llama/llama-4-maverick-17b-128e-instruct")
	v.SetDefault("generation.timeout", 60*time.Second)
	v.SetDefault("tts.enabled", true)
	v.SetDefault("tts.backend", "piper")
	v.SetDefault("tts.retries", 3)
	v.SetDefault("tts.retry_delay", 2*time.Second)
	v.SetDefault("tts.timeout", 30*time.Second)
	v.SetDefault("tts.voice_ttl", time.Hour)
	v.SetDefault("tts.piper.endpoint", "localhost:10200")
	v.SetDefault("tts.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("tts.openai.api_key", "${OPENAI_API_KEY}")
	v.SetDefault("tts.openai.model", "gpt-4o-mini-tts")
	v.SetDefault("tts.openai.voice", "alloy")
	v.SetDefault("conversations.default_language", "en")
	v.SetDefault("conversations.idle_ttl", time.Duration(0))
	v.SetDefault("conversations.sweep_interval", time.Minute)
	v.SetDefault("storage.temp_dir", "temp")
	v.SetDefault("storage.voice_dir", "outputs/voices")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks the backend selectors and numeric bounds.
func (c *Config) Validate() error {
	var errs []error
	switch c.Transcription.Backend {
	case "openai", "asr":
	default:
		errs = append(errs, fmt.Errorf("unknown transcription backend %q", c.Transcription.Backend))
	}
	switch c.Retrieval.Backend {
	case "none", "http", "milvus":
	default:
		errs = append(errs, fmt.Errorf("unknown retrieval backend %q", c.Retrieval.Backend))
	}
	if c.Retrieval.Backend == "http" && c.Retrieval.HTTP.Endpoint == "" {
		errs = append(errs, errors.New("retrieval.http.endpoint is required for the http backend"))
	}
	if c.TTS.Enabled {
		switch c.TTS.Backend {
		case "piper", "openai":
		default:
			errs = append(errs, fmt.Errorf("unknown tts backend %q", c.TTS.Backend))
		}
		if c.TTS.Retries < 1 {
			errs = append(errs, fmt.Errorf("tts.retries must be at least 1, got %d", c.TTS.Retries))
		}
	}
	if c.Transports.HTTP.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("transports.http.max_upload_mb must be positive, got %d", c.Transports.HTTP.MaxUploadMB))
	}
	if c.Conversations.IdleTTL < 0 {
		errs = append(errs, errors.New("conversations.idle_ttl must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
// An unset variable resolves to the empty string.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		return os.Getenv(val[2 : len(val)-1])
	}
	return val
}

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
