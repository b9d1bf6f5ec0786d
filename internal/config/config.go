package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Recording policies for prediction history.
const (
	// RecordingAtomic fails the prediction when its history row cannot be written.
	RecordingAtomic = "atomic"
	// RecordingBestEffort returns the prediction and logs the failed write.
	RecordingBestEffort = "best_effort"
)

// Database drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort      string
	DBDriver        string
	MySQLDSN        string
	SQLitePath      string
	ResetDB         bool
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	JWTSecret       string
	SwaggerHost     string
	ArtifactDir     string
	RecordingPolicy string
	LogLevel        string
	LogFormat       string
}

// Load builds Config from environment with sensible defaults. A .env file in
// the working directory, when present, is read first; real environment
// variables win over it.
func Load() *Config {
	_ = godotenv.Load()
	return fromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DB_DRIVER", DriverSQLite)
	v.SetDefault("MYSQL_DSN", "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=Local")
	v.SetDefault("SQLITE_PATH", "users.db")
	v.SetDefault("RESET_DB", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("SWAGGER_HOST", "")
	v.SetDefault("ARTIFACT_DIR", "model")
	v.SetDefault("RECORDING_POLICY", RecordingAtomic)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	return v
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ServerPort:      v.GetString("SERVER_PORT"),
		DBDriver:        strings.ToLower(v.GetString("DB_DRIVER")),
		MySQLDSN:        v.GetString("MYSQL_DSN"),
		SQLitePath:      v.GetString("SQLITE_PATH"),
		ResetDB:         v.GetBool("RESET_DB"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		RedisDB:         v.GetInt("REDIS_DB"),
		RedisPass:       v.GetString("REDIS_PASSWORD"),
		JWTSecret:       v.GetString("JWT_SECRET"),
		SwaggerHost:     v.GetString("SWAGGER_HOST"),
		ArtifactDir:     v.GetString("ARTIFACT_DIR"),
		RecordingPolicy: strings.ToLower(v.GetString("RECORDING_POLICY")),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
	}
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMySQL:
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverSQLite, DriverMySQL, c.DBDriver)
	}
	switch c.RecordingPolicy {
	case RecordingAtomic, RecordingBestEffort:
	default:
		return fmt.Errorf("RECORDING_POLICY must be %q or %q, got %q", RecordingAtomic, RecordingBestEffort, c.RecordingPolicy)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must not be empty")
	}
	return nil
}
