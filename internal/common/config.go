package common

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. Values come from an optional
// YAML file and may be overridden by environment variables; every pipeline
// policy number (retry counts, deadlines, score bands) lives here so operators
// can tune them without a rebuild.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Vision     VisionConfig     `yaml:"vision"`
	OCR        OCRConfig        `yaml:"ocr"`
	Generation GenerationConfig `yaml:"generation"`
	Conversion ConversionConfig `yaml:"conversion"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Workers    WorkerConfig     `yaml:"workers"`
	Company    CompanyConfig    `yaml:"company"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	LogLevel string `yaml:"log_level"`
}

// DatabaseConfig holds database-related configuration. A postgres:// DSN uses
// the pgx pool; anything else is treated as a sqlite path for local mode.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// StorageConfig holds artifact object-storage configuration.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// VisionConfig holds the OpenRouter vision-classifier configuration.
type VisionConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	FallbackModel string        `yaml:"fallback_model"`
	Timeout       time.Duration `yaml:"timeout"`
}

// OCRConfig holds the OCR.space configuration.
type OCRConfig struct {
	APIKey   string        `yaml:"api_key"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GenerationConfig holds the generation-automation policy.
type GenerationConfig struct {
	BridgeURL    string        `yaml:"bridge_url"`
	Deadline     time.Duration `yaml:"deadline"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxRetries   int           `yaml:"max_retries"`
}

// ConversionConfig holds vector-conversion tool paths and retry policy.
type ConversionConfig struct {
	Potrace     string `yaml:"potrace"`
	Inkscape    string `yaml:"inkscape"`
	WorkDir     string `yaml:"work_dir"`
	MaxAttempts int    `yaml:"max_attempts"`
	EmitAI      bool   `yaml:"emit_ai"`
}

// AnalysisConfig holds the per-signal retry policy.
type AnalysisConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	BaseDelay    time.Duration `yaml:"base_delay"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	NeutralScore float64       `yaml:"neutral_score"`
	MaxReminders int           `yaml:"max_reminders"`
}

// ScoringConfig holds the producibility score bands and signal weights.
type ScoringConfig struct {
	ProducibleAt    float64 `yaml:"producible_at"`
	ClarificationAt float64 `yaml:"clarification_at"`
	GoodEnoughAt    float64 `yaml:"good_enough_at"`

	WeightResolution float64 `yaml:"weight_resolution"`
	WeightEdge       float64 `yaml:"weight_edge"`
	WeightColor      float64 `yaml:"weight_color"`
	WeightBackground float64 `yaml:"weight_background"`
	WeightComplexity float64 `yaml:"weight_complexity"`
	WeightAIJudgment float64 `yaml:"weight_ai_judgment"`
}

// WorkerConfig holds the order-processing queue configuration.
type WorkerConfig struct {
	Count          int           `yaml:"count"`
	QueueSize      int           `yaml:"queue_size"`
	ProcessTimeout time.Duration `yaml:"process_timeout"`
}

// CompanyConfig is interpolated into customer-facing notification payloads.
type CompanyConfig struct {
	Name         string `yaml:"name"`
	ContactEmail string `yaml:"contact_email"`
	Phone        string `yaml:"phone"`
}

// LoadConfig reads the YAML file at path (if non-empty), then applies
// environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, WrapError(err, "read config file")
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, WrapError(err, "parse config file")
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.LogLevel = getEnv("LOG_LEVEL", c.Server.LogLevel)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Storage.Endpoint = getEnv("STORAGE_ENDPOINT", c.Storage.Endpoint)
	c.Storage.AccessKey = getEnv("STORAGE_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getEnv("STORAGE_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	c.Vision.APIKey = getEnv("OPENROUTER_API_KEY", c.Vision.APIKey)
	c.Vision.Model = getEnv("OPENROUTER_MODEL", c.Vision.Model)
	c.OCR.APIKey = getEnv("OCR_SPACE_API_KEY", c.OCR.APIKey)
	c.Generation.BridgeURL = getEnv("GENERATION_BRIDGE_URL", c.Generation.BridgeURL)
	c.Workers.Count = getEnvAsInt("WORKER_COUNT", c.Workers.Count)
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":9090"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 20
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 5
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = 30 * time.Minute
	}
	if c.Database.MaxConnIdleTime == 0 {
		c.Database.MaxConnIdleTime = 5 * time.Minute
	}
	if c.Database.DialTimeout == 0 {
		c.Database.DialTimeout = 3 * time.Second
	}
	if c.Vision.BaseURL == "" {
		c.Vision.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Vision.Model == "" {
		c.Vision.Model = "x-ai/grok-4.1-fast"
	}
	if c.Vision.FallbackModel == "" {
		c.Vision.FallbackModel = "cerebras/llama-3.3-70b"
	}
	if c.Vision.Timeout == 0 {
		c.Vision.Timeout = 60 * time.Second
	}
	if c.OCR.Endpoint == "" {
		c.OCR.Endpoint = "https://api.ocr.space/parse/image"
	}
	if c.OCR.Timeout == 0 {
		c.OCR.Timeout = 30 * time.Second
	}
	if c.Generation.Deadline == 0 {
		c.Generation.Deadline = 2 * time.Minute
	}
	if c.Generation.PollInterval == 0 {
		c.Generation.PollInterval = 2 * time.Second
	}
	if c.Generation.MaxRetries == 0 {
		c.Generation.MaxRetries = 2
	}
	if c.Conversion.Potrace == "" {
		c.Conversion.Potrace = "potrace"
	}
	if c.Conversion.Inkscape == "" {
		c.Conversion.Inkscape = "inkscape"
	}
	if c.Conversion.WorkDir == "" {
		c.Conversion.WorkDir = os.TempDir()
	}
	if c.Conversion.MaxAttempts == 0 {
		c.Conversion.MaxAttempts = 2
	}
	if c.Analysis.MaxAttempts == 0 {
		c.Analysis.MaxAttempts = 3
	}
	if c.Analysis.BaseDelay == 0 {
		c.Analysis.BaseDelay = 500 * time.Millisecond
	}
	if c.Analysis.CallTimeout == 0 {
		c.Analysis.CallTimeout = 45 * time.Second
	}
	if c.Analysis.NeutralScore == 0 {
		c.Analysis.NeutralScore = 50
	}
	if c.Analysis.MaxReminders == 0 {
		c.Analysis.MaxReminders = 2
	}
	if c.Scoring.ProducibleAt == 0 {
		c.Scoring.ProducibleAt = 80
	}
	if c.Scoring.ClarificationAt == 0 {
		c.Scoring.ClarificationAt = 50
	}
	if c.Scoring.GoodEnoughAt == 0 {
		c.Scoring.GoodEnoughAt = 70
	}
	if c.Scoring.WeightResolution == 0 {
		c.Scoring.WeightResolution = 0.15
		c.Scoring.WeightEdge = 0.25
		c.Scoring.WeightColor = 0.20
		c.Scoring.WeightBackground = 0.15
		c.Scoring.WeightComplexity = 0.15
		c.Scoring.WeightAIJudgment = 0.10
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 4
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 256
	}
	if c.Workers.ProcessTimeout == 0 {
		c.Workers.ProcessTimeout = 10 * time.Minute
	}
	if c.Company.Name == "" {
		c.Company.Name = "GOOPICK"
	}
}

// ValidateConfig validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrValidation)
	}
	if c.Vision.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENROUTER_API_KEY is required", ErrValidation)
	}
	sum := c.Scoring.WeightResolution + c.Scoring.WeightEdge + c.Scoring.WeightColor +
		c.Scoring.WeightBackground + c.Scoring.WeightComplexity + c.Scoring.WeightAIJudgment
	if sum < 0.999 || sum > 1.001 {
		return NewAppError("CONFIG_ERROR", "scoring weights must sum to 1.0", ErrValidation)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
