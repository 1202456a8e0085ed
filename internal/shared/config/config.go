// Package config loads the service's environment-driven configuration via
// viper, grounded on the teacher's cmd/cobra_cli.go viper wiring.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is every environment variable named in SPEC_FULL.md §6/§10.3.
type Config struct {
	// Store
	DBDriver   string
	DBPath     string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Broker
	RedisHost string
	RedisPort int
	RedisDB   int
	TaskQueue string
	TaskKeyPrefix string

	// Worker pool
	WorkerCount  int
	BRPopTimeout int // seconds
	CmdTimeout   int // seconds
	DeployTimeout int // seconds
	DeployMessagesFile string

	// Phone agent / model passthrough
	ModelBaseURL string
	ModelName    string
	ModelAPIKey  string
	DeviceID     string

	// Operational (new, Go-service specific)
	HTTPAddr        string
	LogLevel        string
	ShutdownTimeout time.Duration
	OTLPEndpoint    string

	ProjectRoot string
}

// Load reads configuration from the environment (with the AGLM_/PHONE_AGENT_
// prefixes spec.md §6 specifies), applying defaults for anything unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	bind := func(key string) {
		_ = v.BindEnv(key)
	}
	for _, key := range []string{
		"AGLM_DB_DRIVER", "AGLM_DB_PATH", "AGLM_DB_HOST", "AGLM_DB_PORT",
		"AGLM_DB_USER", "AGLM_DB_PASSWORD", "AGLM_DB_NAME",
		"AGLM_REDIS_HOST", "AGLM_REDIS_PORT", "AGLM_REDIS_DB",
		"AGLM_TASK_QUEUE", "AGLM_TASK_PREFIX",
		"AGLM_WORKER_COUNT", "AGLM_BRPOP_TIMEOUT", "AGLM_CMD_TIMEOUT",
		"AGLM_DEPLOY_TIMEOUT", "AGLM_DEPLOY_MESSAGES_FILE",
		"PHONE_AGENT_BASE_URL", "AGLM_MODEL_BASE_URL",
		"PHONE_AGENT_MODEL", "AGLM_MODEL_NAME",
		"PHONE_AGENT_API_KEY", "PHONE_AGENT_DEVICE_ID",
		"QUEUE_HTTP_ADDR", "QUEUE_LOG_LEVEL", "QUEUE_SHUTDOWN_TIMEOUT",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		bind(key)
	}

	v.SetDefault("AGLM_DB_DRIVER", "sqlite")
	v.SetDefault("AGLM_DB_PATH", "aglm_task_queue.db")
	v.SetDefault("AGLM_DB_PORT", 3306)
	v.SetDefault("AGLM_REDIS_HOST", "127.0.0.1")
	v.SetDefault("AGLM_REDIS_PORT", 6379)
	v.SetDefault("AGLM_REDIS_DB", 0)
	v.SetDefault("AGLM_TASK_QUEUE", "aglm:task_queue")
	v.SetDefault("AGLM_TASK_PREFIX", "aglm:task")
	v.SetDefault("AGLM_WORKER_COUNT", 2)
	v.SetDefault("AGLM_BRPOP_TIMEOUT", 10)
	v.SetDefault("AGLM_CMD_TIMEOUT", 300)
	v.SetDefault("QUEUE_HTTP_ADDR", ":8080")
	v.SetDefault("QUEUE_LOG_LEVEL", "info")
	v.SetDefault("QUEUE_SHUTDOWN_TIMEOUT", "10s")

	shutdownTimeout, err := time.ParseDuration(v.GetString("QUEUE_SHUTDOWN_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("config: QUEUE_SHUTDOWN_TIMEOUT: %w", err)
	}

	modelBaseURL := v.GetString("PHONE_AGENT_BASE_URL")
	if modelBaseURL == "" {
		modelBaseURL = v.GetString("AGLM_MODEL_BASE_URL")
	}
	modelName := v.GetString("PHONE_AGENT_MODEL")
	if modelName == "" {
		modelName = v.GetString("AGLM_MODEL_NAME")
	}

	deployTimeout := v.GetInt("AGLM_DEPLOY_TIMEOUT")
	if deployTimeout == 0 {
		deployTimeout = v.GetInt("AGLM_CMD_TIMEOUT")
	}

	return &Config{
		DBDriver:   v.GetString("AGLM_DB_DRIVER"),
		DBPath:     v.GetString("AGLM_DB_PATH"),
		DBHost:     v.GetString("AGLM_DB_HOST"),
		DBPort:     v.GetInt("AGLM_DB_PORT"),
		DBUser:     v.GetString("AGLM_DB_USER"),
		DBPassword: v.GetString("AGLM_DB_PASSWORD"),
		DBName:     v.GetString("AGLM_DB_NAME"),

		RedisHost:     v.GetString("AGLM_REDIS_HOST"),
		RedisPort:     v.GetInt("AGLM_REDIS_PORT"),
		RedisDB:       v.GetInt("AGLM_REDIS_DB"),
		TaskQueue:     v.GetString("AGLM_TASK_QUEUE"),
		TaskKeyPrefix: v.GetString("AGLM_TASK_PREFIX"),

		WorkerCount:        v.GetInt("AGLM_WORKER_COUNT"),
		BRPopTimeout:       v.GetInt("AGLM_BRPOP_TIMEOUT"),
		CmdTimeout:         v.GetInt("AGLM_CMD_TIMEOUT"),
		DeployTimeout:      deployTimeout,
		DeployMessagesFile: v.GetString("AGLM_DEPLOY_MESSAGES_FILE"),

		ModelBaseURL: modelBaseURL,
		ModelName:    modelName,
		ModelAPIKey:  v.GetString("PHONE_AGENT_API_KEY"),
		DeviceID:     v.GetString("PHONE_AGENT_DEVICE_ID"),

		HTTPAddr:        v.GetString("QUEUE_HTTP_ADDR"),
		LogLevel:        v.GetString("QUEUE_LOG_LEVEL"),
		ShutdownTimeout: shutdownTimeout,
		OTLPEndpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		ProjectRoot: ".",
	}, nil
}

// MySQLDSN builds a go-sql-driver/mysql DSN from the store fields.
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}
