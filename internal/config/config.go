package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Storage  StorageConfig
	CloudRun CloudRunConfig
	Queue    QueueConfig
	Verify   VerifyConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig points the S3-interoperability client at GCS. HMAC keys
// are generated per service account in the Cloud Storage settings.
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	ControlBucket   string
	OutputBucket    string
}

// CloudRunConfig identifies the training job on Cloud Run Jobs
type CloudRunConfig struct {
	Project string
	Region  string
	Job     string
	BaseURL string
	Token   string
}

type QueueConfig struct {
	Name      string
	Retention int
}

type VerifyConfig struct {
	IntervalSeconds int
	TimeoutSeconds  int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("CLOUDRUN_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.control_bucket", "STORAGE_CONTROL_BUCKET")
	_ = viper.BindEnv("storage.output_bucket", "STORAGE_OUTPUT_BUCKET")
	_ = viper.BindEnv("cloudrun.project", "CLOUDRUN_PROJECT")
	_ = viper.BindEnv("cloudrun.region", "CLOUDRUN_REGION")
	_ = viper.BindEnv("cloudrun.job", "CLOUDRUN_JOB")
	_ = viper.BindEnv("cloudrun.base_url", "CLOUDRUN_BASE_URL")
	_ = viper.BindEnv("cloudrun.token", "CLOUDRUN_TOKEN")
	_ = viper.BindEnv("queue.name", "QUEUE_NAME")
	_ = viper.BindEnv("queue.retention", "QUEUE_RETENTION")
	_ = viper.BindEnv("verify.interval_seconds", "VERIFY_INTERVAL_SECONDS")
	_ = viper.BindEnv("verify.timeout_seconds", "VERIFY_TIMEOUT_SECONDS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Storage defaults: GCS S3-interoperability endpoint
	viper.SetDefault("storage.endpoint", "https://storage.googleapis.com")
	viper.SetDefault("storage.region", "auto")

	// Cloud Run defaults
	viper.SetDefault("cloudrun.region", "europe-west1")
	viper.SetDefault("cloudrun.job", "robyn-trainer")

	// Queue defaults
	viper.SetDefault("queue.name", "default")
	viper.SetDefault("queue.retention", 50)

	// Verifier defaults: a best-effort confidence check, capped at
	// single-digit seconds
	viper.SetDefault("verify.interval_seconds", 2)
	viper.SetDefault("verify.timeout_seconds", 8)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			Region:          viper.GetString("storage.region"),
			ControlBucket:   viper.GetString("storage.control_bucket"),
			OutputBucket:    viper.GetString("storage.output_bucket"),
		},
		CloudRun: CloudRunConfig{
			Project: viper.GetString("cloudrun.project"),
			Region:  viper.GetString("cloudrun.region"),
			Job:     viper.GetString("cloudrun.job"),
			BaseURL: viper.GetString("cloudrun.base_url"),
			Token:   viper.GetString("cloudrun.token"),
		},
		Queue: QueueConfig{
			Name:      viper.GetString("queue.name"),
			Retention: viper.GetInt("queue.retention"),
		},
		Verify: VerifyConfig{
			IntervalSeconds: viper.GetInt("verify.interval_seconds"),
			TimeoutSeconds:  viper.GetInt("verify.timeout_seconds"),
		},
	}

	return cfg, nil
}
