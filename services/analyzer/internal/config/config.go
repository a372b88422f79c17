package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

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
	Port                   string  `yaml:"port"`
	LogLevel               string  `yaml:"logLevel"`
	InternalToken          string  `yaml:"internalToken"`
	DatabaseURL            string  `yaml:"databaseURL"`
	RedisAddr              string  `yaml:"redisAddr"`
	RedisPassword          string  `yaml:"redisPassword"`
	QueueStream            string  `yaml:"queueStream"`
	QueueGroup             string  `yaml:"queueGroup"`
	QueueConsumer          string  `yaml:"queueConsumer"`
	QueueMaxRetries        int     `yaml:"queueMaxRetries"`
	QueueRetryDelaySeconds int     `yaml:"queueRetryDelaySeconds"`
	Concurrency            int     `yaml:"concurrency"`
	AMQPURL                string  `yaml:"amqpURL"`
	AMQPExchange           string  `yaml:"amqpExchange"`
	AMQPQueue              string  `yaml:"amqpQueue"`
	MinioEndpoint          string  `yaml:"minioEndpoint"`
	MinioAccessKey         string  `yaml:"minioAccessKey"`
	MinioSecretKey         string  `yaml:"minioSecretKey"`
	MinioBucket            string  `yaml:"minioBucket"`
	MinioUseSSL            bool    `yaml:"minioUseSSL"`
	LLMProvider            string  `yaml:"llmProvider"`
	LLMBaseURL             string  `yaml:"llmBaseURL"`
	LLMAPIKey              string  `yaml:"llmAPIKey"`
	LLMModel               string  `yaml:"llmModel"`
	LLMTemperature         float64 `yaml:"llmTemperature"`
	WhisperBaseURL         string  `yaml:"whisperBaseURL"`
	WhisperAPIKey          string  `yaml:"whisperAPIKey"`
	WhisperModel           string  `yaml:"whisperModel"`
	WhisperLanguage        string  `yaml:"whisperLanguage"`
	CallTimeoutSeconds     int     `yaml:"callTimeoutSeconds"`
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
	if v := os.Getenv("ANALYZER_INTERNAL_TOKEN"); v != "" {
		cfg.InternalToken = v
	}
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
	if v := os.Getenv("ANALYZER_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("ANALYZER_CONSUMER"); v != "" {
		cfg.QueueConsumer = strings.TrimSpace(v)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
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
	if strings.TrimSpace(cfg.InternalToken) == "" {
		return errors.New("config: internalToken is required (set in config.yaml or ANALYZER_INTERNAL_TOKEN)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if strings.TrimSpace(cfg.AMQPURL) == "" {
		return errors.New("config: amqpURL is required (set in config.yaml or AMQP_URL)")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
		return errors.New("config: minioEndpoint and minioBucket are required")
	}
	if strings.TrimSpace(cfg.LLMModel) == "" {
		return errors.New("config: llmModel is required (set in config.yaml or LLM_MODEL)")
	}
	if strings.TrimSpace(cfg.WhisperBaseURL) == "" {
		return errors.New("config: whisperBaseURL is required (set in config.yaml or WHISPER_BASE_URL)")
	}
	if cfg.Concurrency < 1 {
		return errors.New("config: concurrency must be >= 1")
	}
	if cfg.CallTimeoutSeconds < 0 || cfg.QueueMaxRetries < 0 || cfg.QueueRetryDelaySeconds < 0 {
		return errors.New("config: callTimeoutSeconds and queue settings must be >= 0")
	}
	if cfg.LLMTemperature < 0 || cfg.LLMTemperature > 2 {
		return errors.New("config: llmTemperature must be between 0 and 2")
	}
	return nil
}
