package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. Values are layered: defaults,
// then the optional YAML file, then environment variables (.env included).
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Extract   ExtractConfig   `yaml:"extract"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Queue     QueueConfig     `yaml:"queue"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logger    LoggerConfig    `yaml:"logger"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowOrigins    []string      `yaml:"allow_origins"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig picks the blob backend. Type is one of local, minio, s3 or gcs.
type StorageConfig struct {
	Type      string      `yaml:"type"`
	LocalRoot string      `yaml:"local_root"`
	Minio     MinioConfig `yaml:"minio"`
	S3        S3Config    `yaml:"s3"`
	GCS       GCSConfig   `yaml:"gcs"`
}

type FetchConfig struct {
	MaxBytes  int64         `yaml:"max_bytes"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// ExtractConfig configures text extraction. OCREngine is tesseract,
// textract or none.
type ExtractConfig struct {
	Workers      int            `yaml:"workers"`
	OCREngine    string         `yaml:"ocr_engine"`
	OCRLanguages []string       `yaml:"ocr_languages"`
	Textract     TextractConfig `yaml:"textract"`
}

// QueueConfig selects how triggered executions reach a worker. Mode is
// local (in-process channel) or asynq (redis).
type QueueConfig struct {
	Mode          string `yaml:"mode"`
	Workers       int    `yaml:"workers"`
	Buffer        int    `yaml:"buffer"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	MaxRetry      int    `yaml:"max_retry"`
}

type SchedulerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type LoggerConfig struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
	ErrorPaths  []string `yaml:"error_paths"`
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 5 * time.Second,
			AllowOrigins:    []string{"*"},
		},
		Database: DatabaseConfig{Path: "data/monitor.db"},
		Storage: StorageConfig{
			Type:      "local",
			LocalRoot: "data/blobs",
			Minio:     MinioConfig{Region: "us-east-1"},
		},
		Fetch: FetchConfig{
			MaxBytes:  5 * 1024 * 1024,
			Timeout:   30 * time.Second,
			UserAgent: DefaultUserAgent,
		},
		Extract: ExtractConfig{
			Workers:      4,
			OCREngine:    "tesseract",
			OCRLanguages: []string{"eng"},
		},
		Embedding: EmbeddingConfig{
			Provider:       "local",
			Dimension:      384,
			BatchSize:      100,
			Pace:           time.Second,
			MaxRetries:     3,
			OllamaEndpoint: "http://localhost:11434",
		},
		Queue: QueueConfig{
			Mode:      "local",
			Workers:   1,
			Buffer:    64,
			RedisAddr: "localhost:6379",
			MaxRetry:  3,
		},
		Scheduler: SchedulerConfig{
			Enabled:   true,
			Heartbeat: time.Minute,
		},
		Logger: LoggerConfig{
			Level:       "info",
			Encoding:    "json",
			OutputPaths: []string{"stdout", "logs/monitor.log"},
			ErrorPaths:  []string{"logs/error.log"},
		},
	}
}

// Load builds the configuration. An empty path or a missing file skips the
// YAML layer.
func Load(path string) (*Config, error) {
	loadDotEnv()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString("SERVER_ADDR", &c.Server.Addr)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	envList("CORS_ALLOW_ORIGINS", &c.Server.AllowOrigins)

	envString("DATABASE_PATH", &c.Database.Path)

	envString("STORAGE_TYPE", &c.Storage.Type)
	envString("STORAGE_LOCAL_ROOT", &c.Storage.LocalRoot)
	c.Storage.Minio.applyEnv()
	c.Storage.S3.applyEnv()
	c.Storage.GCS.applyEnv()

	envInt64("FETCH_MAX_BYTES", &c.Fetch.MaxBytes)
	envDuration("FETCH_TIMEOUT", &c.Fetch.Timeout)
	envString("FETCH_USER_AGENT", &c.Fetch.UserAgent)

	envInt("EXTRACT_WORKERS", &c.Extract.Workers)
	envString("OCR_ENGINE", &c.Extract.OCREngine)
	envList("OCR_LANGUAGES", &c.Extract.OCRLanguages)
	c.Extract.Textract.applyEnv()

	c.Embedding.applyEnv()

	envString("QUEUE_MODE", &c.Queue.Mode)
	envInt("QUEUE_WORKERS", &c.Queue.Workers)
	envInt("QUEUE_BUFFER", &c.Queue.Buffer)
	envString("REDIS_ADDR", &c.Queue.RedisAddr)
	envString("REDIS_PASSWORD", &c.Queue.RedisPassword)
	envInt("REDIS_DB", &c.Queue.RedisDB)
	envInt("QUEUE_MAX_RETRY", &c.Queue.MaxRetry)

	envBool("SCHEDULER_ENABLED", &c.Scheduler.Enabled)
	envDuration("SCHEDULER_HEARTBEAT", &c.Scheduler.Heartbeat)

	envString("LOG_LEVEL", &c.Logger.Level)
	envString("LOG_ENCODING", &c.Logger.Encoding)
	envList("LOG_OUTPUTS", &c.Logger.OutputPaths)
	envList("LOG_ERROR_OUTPUTS", &c.Logger.ErrorPaths)
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Storage.Type) {
	case "local", "minio", "s3", "gcs":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	switch strings.ToLower(c.Queue.Mode) {
	case "local", "asynq":
	default:
		return fmt.Errorf("unsupported queue mode %q", c.Queue.Mode)
	}
	switch strings.ToLower(c.Embedding.Provider) {
	case "local", "google", "openai", "ollama":
	default:
		return fmt.Errorf("unsupported embedding provider %q", c.Embedding.Provider)
	}
	switch strings.ToLower(c.Extract.OCREngine) {
	case "tesseract", "textract", "none", "":
	default:
		return fmt.Errorf("unsupported ocr engine %q", c.Extract.OCREngine)
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch.max_bytes must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive")
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("embedding.batch_size must be in 1..100, got %d", c.Embedding.BatchSize)
	}
	if c.Extract.Workers <= 0 {
		c.Extract.Workers = 1
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 1
	}
	return nil
}
