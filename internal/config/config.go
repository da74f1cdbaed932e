package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Port      string
	JWTSecret string

	Database DatabaseConfig
	Storage  StorageConfig
	Dispatch DispatchConfig
	Report   ReportConfig
	Log      LogConfig

	// 提交接口限流
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver       string // sqlite | postgres
	Path         string
	URL          string
	MaxOpenConns int
}

// StorageConfig 文件存储配置
type StorageConfig struct {
	Driver        string // local | s3
	LocalDir      string
	PublicBaseURL string

	S3Bucket          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Endpoint        string
}

// DispatchConfig 异步任务派发配置
type DispatchConfig struct {
	Driver      string // pool | amqp
	WorkerCount int
	QueueSize   int
	AMQPURL     string
	AMQPQueue   string
}

// ReportConfig 报表生成配置
type ReportConfig struct {
	Timezone          string
	GenerationTimeout time.Duration
	StatsConcurrency  int
	CleanupSchedule   string
}

// LogConfig 日志配置
type LogConfig struct {
	Level         string
	JSON          bool
	FluentEnabled bool
	FluentHost    string
	FluentPort    int
	FluentTag     string
}

// Load 加载配置
func Load() (*Config, error) {
	// .env 文件可选
	_ = godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", ":8080"),
		JWTSecret: getEnv("JWT_SECRET", ""),
		Database: DatabaseConfig{
			Driver:       strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			Path:         getEnv("DB_PATH", "./data/reports.db"),
			URL:          getEnv("DATABASE_URL", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
		},
		Storage: StorageConfig{
			Driver:            strings.ToLower(getEnv("STORAGE_DRIVER", "local")),
			LocalDir:          getEnv("STORAGE_LOCAL_DIR", "./data/files"),
			PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			S3Bucket:          getEnv("S3_BUCKET", ""),
			S3Region:          getEnv("S3_REGION", "us-east-1"),
			S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		},
		Dispatch: DispatchConfig{
			Driver:      strings.ToLower(getEnv("DISPATCH_DRIVER", "pool")),
			WorkerCount: getEnvInt("WORKER_COUNT", 4),
			QueueSize:   getEnvInt("QUEUE_SIZE", 1024),
			AMQPURL:     getEnv("AMQP_URL", ""),
			AMQPQueue:   getEnv("AMQP_QUEUE", "report.generate"),
		},
		Report: ReportConfig{
			Timezone:          getEnv("REPORT_TIMEZONE", "UTC"),
			GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 5*time.Minute),
			StatsConcurrency:  getEnvInt("STATS_CONCURRENCY", 4),
			CleanupSchedule:   getEnv("CLEANUP_SCHEDULE", "@every 1h"),
		},
		Log: LogConfig{
			Level:         getEnv("LOG_LEVEL", "info"),
			JSON:          getEnvBool("LOG_JSON", false),
			FluentEnabled: getEnvBool("FLUENT_ENABLED", false),
			FluentHost:    getEnv("FLUENT_HOST", "localhost"),
			FluentPort:    getEnvInt("FLUENT_PORT", 24224),
			FluentTag:     getEnv("FLUENT_TAG", "report-backend"),
		},
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required when DB_DRIVER=sqlite")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("STORAGE_LOCAL_DIR is required when STORAGE_DRIVER=local")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}

	switch c.Dispatch.Driver {
	case "pool":
	case "amqp":
		if c.Dispatch.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when DISPATCH_DRIVER=amqp")
		}
	default:
		return fmt.Errorf("unknown DISPATCH_DRIVER %q", c.Dispatch.Driver)
	}

	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("invalid REPORT_TIMEZONE %q: %w", c.Report.Timezone, err)
	}
	if c.Report.GenerationTimeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be positive")
	}

	return nil
}

// Location 报表时区
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
