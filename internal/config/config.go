package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/faultline/internal/model"
)

// Version is the faultline release version.
const Version = "0.3.0"

// Config holds all faultline configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Extract   ExtractConfig   `yaml:"extract"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Output    OutputConfig    `yaml:"output"`
	Log       LogConfig       `yaml:"log"`
}

// SourceConfig selects where executions, assertions and spans are read from.
type SourceConfig struct {
	Provider       string `yaml:"provider"` // "sqlite", "file"
	DBPath         string `yaml:"db_path"`
	ExecutionsPath string `yaml:"executions_path"`
	SpansPath      string `yaml:"spans_path"`
}

// ExtractConfig holds signature extraction settings.
type ExtractConfig struct {
	Workers   int `yaml:"workers"`
	FlowLimit int `yaml:"flow_limit"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Model          string  `yaml:"model"`
	ModelDir       string  `yaml:"model_dir"`
	OpenAIKey      string  `yaml:"-"`
	OpenAIEndpoint string  `yaml:"openai_endpoint"`
	GeminiKey      string  `yaml:"-"`
	OllamaEndpoint string  `yaml:"ollama_endpoint"`
	BatchSize      int     `yaml:"batch_size"`
	MaxRetries     int     `yaml:"max_retries"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second, 0 = unlimited
}

// ModelPath is the local ONNX model file.
func (e EmbeddingConfig) ModelPath() string {
	return filepath.Join(e.ModelDir, "model_quantized.onnx")
}

// VocabPath is the WordPiece vocabulary for the ONNX model.
func (e EmbeddingConfig) VocabPath() string {
	return filepath.Join(e.ModelDir, "vocab.txt")
}

// ProjectionPath is the dense projection layer applied after pooling.
func (e EmbeddingConfig) ProjectionPath() string {
	return filepath.Join(e.ModelDir, "2_Dense", "model.safetensors")
}

// ClusterConfig holds density clustering settings.
type ClusterConfig struct {
	MinClusterSize int `yaml:"min_cluster_size"`
	MinSamples     int `yaml:"min_samples"` // 0 = same as MinClusterSize
	MaxShapes      int `yaml:"max_shapes"`
}

// OutputConfig holds artifact destination settings.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Verbosity  string `yaml:"verbosity"` // "minimal", "standard", "full"
	WebhookURL string `yaml:"webhook_url"`
	History    int    `yaml:"history"` // rotated copies kept on overwrite
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Source: SourceConfig{
			Provider: "sqlite",
			DBPath:   "merit.db",
		},
		Extract: ExtractConfig{
			Workers:   4,
			FlowLimit: 10,
		},
		Embedding: EmbeddingConfig{
			Model:          "hash",
			ModelDir:       "models",
			OpenAIEndpoint: "https://api.openai.com/v1/embeddings",
			OllamaEndpoint: "http://localhost:11434/api/embed",
			BatchSize:      100,
			MaxRetries:     3,
		},
		Cluster: ClusterConfig{
			MinClusterSize: 5,
			MaxShapes:      3,
		},
		Output: OutputConfig{
			Dir:       "failure_analysis",
			Verbosity: "standard",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence. An empty path falls
// back to FAULTLINE_CONFIG; no file at all is fine.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("FAULTLINE_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Source.Provider = getenv("FAULTLINE_SOURCE", c.Source.Provider)
	c.Source.DBPath = getenv("FAULTLINE_DB_PATH", c.Source.DBPath)
	c.Source.ExecutionsPath = getenv("FAULTLINE_EXECUTIONS_PATH", c.Source.ExecutionsPath)
	c.Source.SpansPath = getenv("FAULTLINE_SPANS_PATH", c.Source.SpansPath)

	c.Extract.Workers = getenvInt("FAULTLINE_WORKERS", c.Extract.Workers)
	c.Extract.FlowLimit = getenvInt("FAULTLINE_FLOW_LIMIT", c.Extract.FlowLimit)

	c.Embedding.Model = getenv("FAULTLINE_MODEL", c.Embedding.Model)
	c.Embedding.ModelDir = getenv("FAULTLINE_MODEL_DIR", c.Embedding.ModelDir)
	c.Embedding.OpenAIKey = getenv("OPENAI_API_KEY", c.Embedding.OpenAIKey)
	c.Embedding.OpenAIEndpoint = getenv("FAULTLINE_OPENAI_ENDPOINT", c.Embedding.OpenAIEndpoint)
	c.Embedding.GeminiKey = getenv("GEMINI_API_KEY", c.Embedding.GeminiKey)
	c.Embedding.OllamaEndpoint = getenv("FAULTLINE_OLLAMA_ENDPOINT", c.Embedding.OllamaEndpoint)
	c.Embedding.BatchSize = getenvInt("FAULTLINE_BATCH_SIZE", c.Embedding.BatchSize)
	c.Embedding.MaxRetries = getenvInt("FAULTLINE_MAX_RETRIES", c.Embedding.MaxRetries)
	c.Embedding.RateLimit = getenvFloat("FAULTLINE_RATE_LIMIT", c.Embedding.RateLimit)

	c.Cluster.MinClusterSize = getenvInt("FAULTLINE_MIN_CLUSTER_SIZE", c.Cluster.MinClusterSize)
	c.Cluster.MinSamples = getenvInt("FAULTLINE_MIN_SAMPLES", c.Cluster.MinSamples)
	c.Cluster.MaxShapes = getenvInt("FAULTLINE_MAX_SHAPES", c.Cluster.MaxShapes)

	c.Output.Dir = getenv("FAULTLINE_OUTPUT_DIR", c.Output.Dir)
	c.Output.Verbosity = getenv("FAULTLINE_VERBOSITY", c.Output.Verbosity)
	c.Output.WebhookURL = getenv("FAULTLINE_WEBHOOK_URL", c.Output.WebhookURL)
	c.Output.History = getenvInt("FAULTLINE_HISTORY", c.Output.History)

	c.Log.Level = getenv("FAULTLINE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("FAULTLINE_LOG_FORMAT", c.Log.Format)
}

// Validate checks the configuration for invalid values. It returns all
// problems joined; cluster parameter problems are *model.ClusterConfigError.
func (c Config) Validate() error {
	var errs []error

	switch c.Source.Provider {
	case "sqlite":
		if c.Source.DBPath == "" {
			errs = append(errs, errors.New("source: FAULTLINE_DB_PATH is required for provider sqlite"))
		}
	case "file":
		if c.Source.ExecutionsPath == "" {
			errs = append(errs, errors.New("source: FAULTLINE_EXECUTIONS_PATH is required for provider file"))
		}
	default:
		errs = append(errs, fmt.Errorf("source: unknown provider %q", c.Source.Provider))
	}

	if c.Extract.Workers < 1 {
		errs = append(errs, fmt.Errorf("extract: workers must be >= 1, got %d", c.Extract.Workers))
	}
	if c.Extract.FlowLimit < 1 {
		errs = append(errs, fmt.Errorf("extract: flow limit must be >= 1, got %d", c.Extract.FlowLimit))
	}

	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding: model is required"))
	}
	if c.Embedding.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("embedding: batch size must be >= 1, got %d", c.Embedding.BatchSize))
	}
	if c.Embedding.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("embedding: max retries must be >= 0, got %d", c.Embedding.MaxRetries))
	}
	if c.Embedding.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("embedding: rate limit must be >= 0, got %g", c.Embedding.RateLimit))
	}

	if c.Cluster.MinClusterSize < 2 {
		errs = append(errs, &model.ClusterConfigError{Field: "min_cluster_size", Value: c.Cluster.MinClusterSize, Reason: "must be >= 2"})
	}
	if c.Cluster.MinSamples < 0 {
		errs = append(errs, &model.ClusterConfigError{Field: "min_samples", Value: c.Cluster.MinSamples, Reason: "must be >= 0"})
	}
	if c.Cluster.MaxShapes < 1 {
		errs = append(errs, &model.ClusterConfigError{Field: "max_shapes", Value: c.Cluster.MaxShapes, Reason: "must be >= 1"})
	}

	switch c.Output.Verbosity {
	case "minimal", "standard", "full":
	default:
		errs = append(errs, fmt.Errorf("output: verbosity must be minimal, standard or full, got %q", c.Output.Verbosity))
	}
	if c.Output.History < 0 {
		errs = append(errs, fmt.Errorf("output: history must be >= 0, got %d", c.Output.History))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
