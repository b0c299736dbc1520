package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration fields for the application.
// It is built once at startup and passed explicitly to every component.
type Config struct {
	Port     string
	BaseURL  string // public URL of this connector, used to build webhook URLs
	APIURL   string // Tiledesk API
	GraphURL string // WhatsApp Graph API, including the version, e.g. https://graph.facebook.com/v17.0/

	SettingsStore    string // mongo, postgres or sqlite
	MongoDBURL       string
	DatabaseURL      string
	SettingsCacheTTL time.Duration

	RedisHost     string
	RedisPort     string
	RedisPassword string

	RabbitMQURL            string
	RabbitMQQueue          string
	RabbitMQQueuePrefix    string
	RabbitMQSpecificEvents []string // event types published on their own queue

	S3 S3Config

	MediaTmpDir    string
	SendTimeout    time.Duration
	MaxCommandWait time.Duration

	LogLevel  string
	LogFormat string
}

// S3Config enables hosting of inbound media on S3 instead of the Tiledesk asset API.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PathStyle bool
	PublicURL string
}

// Enabled reports whether enough S3 settings are present to host media there.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// RedisEnabled reports whether the ephemeral test-session store is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != "" && c.RedisPort != ""
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// LoadConfig loads configuration from environment variables.
// It attempts to load a .env file if present.
func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Info().Err(err).Msg("No .env file found or error loading it, relying on environment variables")
	} else {
		log.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{
		Port:     getEnv("PORT", "3000"),
		BaseURL:  strings.TrimRight(os.Getenv("BASE_URL"), "/"),
		APIURL:   strings.TrimRight(os.Getenv("API_URL"), "/"),
		GraphURL: os.Getenv("GRAPH_URL"),

		SettingsStore: getEnv("SETTINGS_STORE", "mongo"),
		MongoDBURL:    os.Getenv("MONGODB_URL"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),

		RedisHost:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		RabbitMQURL:            os.Getenv("RABBITMQ_URL"),
		RabbitMQQueue:          getEnv("RABBITMQ_QUEUE", "whatsapp_events"),
		RabbitMQQueuePrefix:    getEnv("RABBITMQ_QUEUE_PREFIX", "wab"),
		RabbitMQSpecificEvents: getList("AMQP_SPECIFIC_EVENTS"),

		S3: S3Config{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    getEnv("S3_REGION", "us-east-1"),
			Bucket:    os.Getenv("S3_BUCKET"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			PathStyle: os.Getenv("S3_PATH_STYLE") == "true",
			PublicURL: os.Getenv("S3_PUBLIC_URL"),
		},

		MediaTmpDir: getEnv("MEDIA_TMP_DIR", os.TempDir()),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   os.Getenv("LOG_FORMAT"),
	}

	if cfg.GraphURL != "" && !strings.HasSuffix(cfg.GraphURL, "/") {
		cfg.GraphURL += "/"
	}

	if cfg.SendTimeout, err = getDuration("SEND_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxCommandWait, err = getDuration("MAX_COMMAND_WAIT", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SettingsCacheTTL, err = getDuration("SETTINGS_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("baseURL", cfg.BaseURL).
		Str("apiURL", cfg.APIURL).
		Str("graphURL", cfg.GraphURL).
		Str("settingsStore", cfg.SettingsStore).
		Bool("redis", cfg.RedisEnabled()).
		Bool("rabbitmq", cfg.RabbitMQURL != "").
		Bool("s3", cfg.S3.Enabled()).
		Msg("Configuration loading complete")
	return cfg, nil
}

// Validate checks the mandatory parameters.
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("API_URL is mandatory")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("BASE_URL is mandatory")
	}
	if c.GraphURL == "" {
		return fmt.Errorf("GRAPH_URL is mandatory")
	}
	switch c.SettingsStore {
	case "mongo":
		if c.MongoDBURL == "" {
			return fmt.Errorf("MONGODB_URL is mandatory when SETTINGS_STORE=mongo")
		}
	case "postgres", "sqlite":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is mandatory when SETTINGS_STORE=%s", c.SettingsStore)
		}
	default:
		return fmt.Errorf("unsupported SETTINGS_STORE %q", c.SettingsStore)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getList splits a comma separated variable, dropping empty items.
func getList(key string) []string {
	var items []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getDuration accepts Go durations ("30s") or plain milliseconds ("30000").
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
