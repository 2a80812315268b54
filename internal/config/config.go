package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	Log        LogConfig
	CORS       CORSConfig
	Processing ProcessingConfig
	Google     GoogleConfig
	LLM        LLMConfig
	Extraction ExtractionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds object storage settings for original bill images.
type S3Config struct {
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ProcessingConfig is the immutable tuning of one bill processor.
// It is passed by value; components keep their own copy.
type ProcessingConfig struct {
	ConversionTimeout    time.Duration `mapstructure:"conversion_timeout"`
	APITimeout           time.Duration `mapstructure:"api_timeout"`
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryDelay           time.Duration `mapstructure:"retry_delay"`
	MaxImageSizeMB       int64         `mapstructure:"max_image_size_mb"`
	MaxImageWidth        int           `mapstructure:"max_image_width"`
	MaxImageHeight       int           `mapstructure:"max_image_height"`
	ResizeThresholdBytes int64         `mapstructure:"resize_threshold_bytes"`
	JPEGQuality          int           `mapstructure:"jpeg_quality"`
}

// MaxImageBytes returns the upload ceiling in bytes.
func (p ProcessingConfig) MaxImageBytes() int64 {
	return p.MaxImageSizeMB * 1024 * 1024
}

// DefaultProcessingConfig returns the tuning used when nothing is configured.
func DefaultProcessingConfig() ProcessingConfig {
	return ProcessingConfig{
		ConversionTimeout:    30 * time.Second,
		APITimeout:           30 * time.Second,
		MaxRetries:           3,
		RetryDelay:           time.Second,
		MaxImageSizeMB:       10,
		MaxImageWidth:        2048,
		MaxImageHeight:       2048,
		ResizeThresholdBytes: 2 * 1024 * 1024,
		JPEGQuality:          85,
	}
}

// GoogleConfig holds the service-account credential and cloud OCR endpoints.
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	ClientEmail     string `mapstructure:"client_email"`
	PrivateKey      string `mapstructure:"private_key"`
	TokenURL        string `mapstructure:"token_url"`
	Scope           string `mapstructure:"scope"`
	VisionEndpoint  string `mapstructure:"vision_endpoint"`
	OCRBackend      string `mapstructure:"ocr_backend"`
}

// HasCredentials reports whether any service-account credential source is configured.
func (g *GoogleConfig) HasCredentials() bool {
	if g.CredentialsFile != "" || g.CredentialsJSON != "" {
		return true
	}
	return g.ClientEmail != "" && g.PrivateKey != ""
}

// LLMConfig holds settings for the language-model extraction path.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
}

// Enabled reports whether the LLM path can be used.
func (l *LLMConfig) Enabled() bool {
	return l.APIKey != ""
}

// ExtractionConfig selects the extraction strategy and parser tuning data.
type ExtractionConfig struct {
	Strategy      string   `mapstructure:"strategy"`
	RulesFile     string   `mapstructure:"rules_file"`
	CustomerHints []string `mapstructure:"customer_hints"`
}

// Load reads configuration from a local .env file (if any) and environment
// variables with the SOLARBILL_ prefix.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SOLARBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	proc := DefaultProcessingConfig()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "solarbill")
	v.SetDefault("db.password", "solarbill_secret")
	v.SetDefault("db.name", "solarbill_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "solarbill-bills")
	v.SetDefault("s3.endpoint", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Processing defaults
	v.SetDefault("processing.conversion_timeout", proc.ConversionTimeout.String())
	v.SetDefault("processing.api_timeout", proc.APITimeout.String())
	v.SetDefault("processing.max_retries", proc.MaxRetries)
	v.SetDefault("processing.retry_delay", proc.RetryDelay.String())
	v.SetDefault("processing.max_image_size_mb", proc.MaxImageSizeMB)
	v.SetDefault("processing.max_image_width", proc.MaxImageWidth)
	v.SetDefault("processing.max_image_height", proc.MaxImageHeight)
	v.SetDefault("processing.resize_threshold_bytes", proc.ResizeThresholdBytes)
	v.SetDefault("processing.jpeg_quality", proc.JPEGQuality)

	// Google defaults
	v.SetDefault("google.credentials_file", "")
	v.SetDefault("google.credentials_json", "")
	v.SetDefault("google.client_email", "")
	v.SetDefault("google.private_key", "")
	v.SetDefault("google.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("google.scope", "https://www.googleapis.com/auth/cloud-platform")
	v.SetDefault("google.vision_endpoint", "https://vision.googleapis.com/v1/images:annotate")
	v.SetDefault("google.ocr_backend", "rest")

	// LLM defaults
	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 2000)
	v.SetDefault("llm.timeout_secs", 60)

	// Extraction defaults
	v.SetDefault("extraction.strategy", "auto")
	v.SetDefault("extraction.rules_file", "")
	v.SetDefault("extraction.customer_hints", "")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                       "SOLARBILL_SERVER_PORT",
		"server.read_timeout":               "SOLARBILL_SERVER_READ_TIMEOUT",
		"server.write_timeout":              "SOLARBILL_SERVER_WRITE_TIMEOUT",
		"server.environment":                "SOLARBILL_SERVER_ENVIRONMENT",
		"db.host":                           "SOLARBILL_DB_HOST",
		"db.port":                           "SOLARBILL_DB_PORT",
		"db.user":                           "SOLARBILL_DB_USER",
		"db.password":                       "SOLARBILL_DB_PASSWORD",
		"db.name":                           "SOLARBILL_DB_NAME",
		"db.sslmode":                        "SOLARBILL_DB_SSLMODE",
		"db.max_open":                       "SOLARBILL_DB_MAX_OPEN",
		"db.max_idle":                       "SOLARBILL_DB_MAX_IDLE",
		"s3.region":                         "SOLARBILL_S3_REGION",
		"s3.bucket":                         "SOLARBILL_S3_BUCKET",
		"s3.endpoint":                       "SOLARBILL_S3_ENDPOINT",
		"s3.access_key":                     "SOLARBILL_S3_ACCESS_KEY",
		"s3.secret_key":                     "SOLARBILL_S3_SECRET_KEY",
		"log.level":                         "SOLARBILL_LOG_LEVEL",
		"log.format":                        "SOLARBILL_LOG_FORMAT",
		"log.output":                        "SOLARBILL_LOG_OUTPUT",
		"cors.allowed_origins":              "SOLARBILL_CORS_ALLOWED_ORIGINS",
		"processing.conversion_timeout":     "SOLARBILL_PROCESSING_CONVERSION_TIMEOUT",
		"processing.api_timeout":            "SOLARBILL_PROCESSING_API_TIMEOUT",
		"processing.max_retries":            "SOLARBILL_PROCESSING_MAX_RETRIES",
		"processing.retry_delay":            "SOLARBILL_PROCESSING_RETRY_DELAY",
		"processing.max_image_size_mb":      "SOLARBILL_PROCESSING_MAX_IMAGE_SIZE_MB",
		"processing.max_image_width":        "SOLARBILL_PROCESSING_MAX_IMAGE_WIDTH",
		"processing.max_image_height":       "SOLARBILL_PROCESSING_MAX_IMAGE_HEIGHT",
		"processing.resize_threshold_bytes": "SOLARBILL_PROCESSING_RESIZE_THRESHOLD_BYTES",
		"processing.jpeg_quality":           "SOLARBILL_PROCESSING_JPEG_QUALITY",
		"google.credentials_file":           "SOLARBILL_GOOGLE_CREDENTIALS_FILE",
		"google.credentials_json":           "SOLARBILL_GOOGLE_CREDENTIALS_JSON",
		"google.client_email":               "SOLARBILL_GOOGLE_CLIENT_EMAIL",
		"google.private_key":                "SOLARBILL_GOOGLE_PRIVATE_KEY",
		"google.token_url":                  "SOLARBILL_GOOGLE_TOKEN_URL",
		"google.scope":                      "SOLARBILL_GOOGLE_SCOPE",
		"google.vision_endpoint":            "SOLARBILL_GOOGLE_VISION_ENDPOINT",
		"google.ocr_backend":                "SOLARBILL_GOOGLE_OCR_BACKEND",
		"llm.provider":                      "SOLARBILL_LLM_PROVIDER",
		"llm.api_key":                       "SOLARBILL_LLM_API_KEY",
		"llm.model":                         "SOLARBILL_LLM_MODEL",
		"llm.base_url":                      "SOLARBILL_LLM_BASE_URL",
		"llm.temperature":                   "SOLARBILL_LLM_TEMPERATURE",
		"llm.max_tokens":                    "SOLARBILL_LLM_MAX_TOKENS",
		"llm.timeout_secs":                  "SOLARBILL_LLM_TIMEOUT_SECS",
		"extraction.strategy":               "SOLARBILL_EXTRACTION_STRATEGY",
		"extraction.rules_file":             "SOLARBILL_EXTRACTION_RULES_FILE",
		"extraction.customer_hints":         "SOLARBILL_EXTRACTION_CUSTOMER_HINTS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if SOLARBILL_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("SOLARBILL_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:    v.GetString("s3.region"),
		Bucket:    v.GetString("s3.bucket"),
		Endpoint:  v.GetString("s3.endpoint"),
		AccessKey: v.GetString("s3.access_key"),
		SecretKey: v.GetString("s3.secret_key"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
		Output: v.GetString("log.output"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}
	cfg.Processing = ProcessingConfig{
		ConversionTimeout:    v.GetDuration("processing.conversion_timeout"),
		APITimeout:           v.GetDuration("processing.api_timeout"),
		MaxRetries:           v.GetInt("processing.max_retries"),
		RetryDelay:           v.GetDuration("processing.retry_delay"),
		MaxImageSizeMB:       v.GetInt64("processing.max_image_size_mb"),
		MaxImageWidth:        v.GetInt("processing.max_image_width"),
		MaxImageHeight:       v.GetInt("processing.max_image_height"),
		ResizeThresholdBytes: v.GetInt64("processing.resize_threshold_bytes"),
		JPEGQuality:          v.GetInt("processing.jpeg_quality"),
	}
	cfg.Google = GoogleConfig{
		CredentialsFile: v.GetString("google.credentials_file"),
		CredentialsJSON: v.GetString("google.credentials_json"),
		ClientEmail:     v.GetString("google.client_email"),
		PrivateKey:      v.GetString("google.private_key"),
		TokenURL:        v.GetString("google.token_url"),
		Scope:           v.GetString("google.scope"),
		VisionEndpoint:  v.GetString("google.vision_endpoint"),
		OCRBackend:      v.GetString("google.ocr_backend"),
	}
	cfg.LLM = LLMConfig{
		Provider:    v.GetString("llm.provider"),
		APIKey:      v.GetString("llm.api_key"),
		Model:       v.GetString("llm.model"),
		BaseURL:     v.GetString("llm.base_url"),
		Temperature: float32(v.GetFloat64("llm.temperature")),
		MaxTokens:   v.GetInt("llm.max_tokens"),
		TimeoutSecs: v.GetInt("llm.timeout_secs"),
	}
	cfg.Extraction = ExtractionConfig{
		Strategy:      strings.ToLower(v.GetString("extraction.strategy")),
		RulesFile:     v.GetString("extraction.rules_file"),
		CustomerHints: splitList(v.GetString("extraction.customer_hints")),
	}

	return cfg, nil
}

// splitList parses a comma-separated string, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
