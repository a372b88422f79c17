package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, overridable with CONFIG_PATH.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                     string   `yaml:"port"`
	LogLevel                 string   `yaml:"logLevel"`
	DatabaseURL              string   `yaml:"databaseURL"`
	RedisAddr                string   `yaml:"redisAddr"`
	RedisPassword            string   `yaml:"redisPassword"`
	QueueStream              string   `yaml:"queueStream"`
	QueueGroup               string   `yaml:"queueGroup"`
	QueueMaxRetries          int      `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds   int      `yaml:"queueRetryDelaySeconds"`
	AMQPURL                  string   `yaml:"amqpURL"`
	AMQPExchange             string   `yaml:"amqpExchange"`
	MinioEndpoint            string   `yaml:"minioEndpoint"`
	MinioAccessKey           string   `yaml:"minioAccessKey"`
	MinioSecretKey           string   `yaml:"minioSecretKey"`
	MinioBucket              string   `yaml:"minioBucket"`
	MinioUseSSL              bool     `yaml:"minioUseSSL"`
	DataDir                  string   `yaml:"dataDir"`
	JWTSecret                string   `yaml:"jwtSecret"`
	JWTIssuer                string   `yaml:"jwtIssuer"`
	JWTAudience              string   `yaml:"jwtAudience"`
	JWTLeeway                string   `yaml:"jwtLeeway"`
	TokenTTL                 string   `yaml:"tokenTTL"`
	AllowedOrigins           []string `yaml:"allowedOrigins"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	LLMProvider              string   `yaml:"llmProvider"`
	LLMBaseURL               string   `yaml:"llmBaseURL"`
	LLMAPIKey                string   `yaml:"llmAPIKey"`
	LLMModel                 string   `yaml:"llmModel"`
	LLMTemperature           float64  `yaml:"llmTemperature"`
	QuestionCount            int      `yaml:"questionCount"`
	WhisperBaseURL           string   `yaml:"whisperBaseURL"`
	WhisperAPIKey            string   `yaml:"whisperAPIKey"`
	WhisperModel             string   `yaml:"whisperModel"`
	WhisperLanguage          string   `yaml:"whisperLanguage"`
	CallTimeoutSeconds       int      `yaml:"callTimeoutSeconds"`
	Workers                  int      `yaml:"workers"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	AnswerRateLimitPerMinute int      `yaml:"answerRateLimitPerMinute"`
	MaxResumeBytes           int64    `yaml:"maxResumeBytes"`
	MaxAudioBytes            int64    `yaml:"maxAudioBytes"`
	ResumeExtensions         []string `yaml:"resumeExtensions"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v == "true" {
		cfg.MinioUseSSL = true
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWTAudience = v
	}
	if v := os.Getenv("JWT_LEEWAY"); v != "" {
		cfg.JWTLeeway = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = strings.TrimSpace(v)
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = strings.TrimSpace(v)
	}
	if v := os.Getenv("WHISPER_BASE_URL"); v != "" {
		cfg.WhisperBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("WHISPER_API_KEY"); v != "" {
		cfg.WhisperAPIKey = v
	}
	if v := os.Getenv("INTERVIEW_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("INTERVIEW_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("INTERVIEW_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("INTERVIEW_QUESTION_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QuestionCount = n
		}
	}
	if v := os.Getenv("INTERVIEW_CALL_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CallTimeoutSeconds = n
		}
	}
	if v := os.Getenv("INTERVIEW_ANSWER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AnswerRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("INTERVIEW_MAX_AUDIO_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxAudioBytes = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if len(cfg.JWTSecret) < 32 {
		return errors.New("config: jwtSecret must be at least 32 bytes (set in config.yaml or JWT_SECRET)")
	}
	if cfg.Workers < 0 {
		return errors.New("config: workers must be >= 0")
	}
	if cfg.Workers == 0 {
		// split deployment with the analyzer service
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required when workers=0")
		}
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when workers=0")
		}
		if strings.TrimSpace(cfg.AMQPURL) == "" {
			return errors.New("config: amqpURL is required when workers=0")
		}
		if strings.TrimSpace(cfg.MinioEndpoint) == "" {
			return errors.New("config: minioEndpoint is required when workers=0")
		}
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" && strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioBucket is required with minioEndpoint")
	}
	if strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llmModel is required (set in config.yaml or LLM_MODEL)")
	}
	if cfg.Workers > 0 && strings.TrimSpace(cfg.WhisperBaseURL) == "" {
		return errors.New("config: whisperBaseURL is required when workers > 0")
	}
	if cfg.QuestionCount < 0 || cfg.CallTimeoutSeconds < 0 || cfg.QueueMaxRetries < 0 || cfg.QueueRetryDelaySeconds < 0 {
		return errors.New("config: questionCount, callTimeoutSeconds and queue settings must be >= 0")
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.AnswerRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return errors.New("config: llmTemperature must be between 0 and 2")
	}
	if _, err := ParseDuration("tokenTTL", cfg.TokenTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("jwtLeeway", cfg.JWTLeeway); err != nil {
		return err
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration setting; empty means zero.
func ParseDuration(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must be >= 0", name)
	}
	return dur, nil
}
