// Package config は環境変数 (と .env) から設定を読み込みます。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 保存先の種類 (STORE_DRIVER)
const (
	DriverDynamoDB = "dynamodb"
	DriverMySQL    = "mysql"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config はアプリケーション全体の設定です。
type Config struct {
	TableName        string
	StoreDriver      string
	Port             string
	CORSAllowOrigins []string
	ShutdownTimeout  time.Duration
	SweepInterval    time.Duration

	DynamoDB DynamoDBConfig
	MySQL    MySQLConfig
	Redis    RedisConfig
}

type DynamoDBConfig struct {
	Region      string
	Endpoint    string // DynamoDB Local など
	CreateTable bool
}

type MySQLConfig struct {
	User    string
	Pass    string
	Host    string
	Port    string
	Name    string
	Migrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load は .env を読み込んでから (見つからなければ無視)、環境変数で Config を組み立てます。
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Warning: Could not load .env file: %v", err)
	}
	return FromEnv()
}

// FromEnv は現在の環境変数だけから Config を組み立てます。
func FromEnv() (*Config, error) {
	cfg := &Config{
		TableName:        getEnv("TABLE_NAME", "Tasks"),
		StoreDriver:      strings.ToLower(getEnv("STORE_DRIVER", DriverDynamoDB)),
		Port:             getEnv("PORT", "8080"),
		CORSAllowOrigins: splitList(getEnv("CORS_ALLOW_ORIGINS", "*")),
		DynamoDB: DynamoDBConfig{
			Region:   os.Getenv("AWS_REGION"),
			Endpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		},
		MySQL: MySQLConfig{
			User: os.Getenv("DB_USER"),
			Pass: os.Getenv("DB_PASS"),
			Host: getEnv("DB_HOST", "127.0.0.1"),
			Port: getEnv("DB_PORT", "3306"),
			Name: os.Getenv("DB_NAME"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
	}

	var err error
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.DynamoDB.CreateTable, err = getBool("DYNAMODB_CREATE_TABLE", false); err != nil {
		return nil, err
	}
	if cfg.MySQL.Migrate, err = getBool("DB_MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は必須項目と STORE_DRIVER の値を確認します。
func (c *Config) Validate() error {
	if c.TableName == "" {
		return errors.New("TABLE_NAME must not be empty")
	}
	switch c.StoreDriver {
	case DriverDynamoDB, DriverRedis, DriverMemory:
	case DriverMySQL:
		if c.MySQL.User == "" || c.MySQL.Name == "" {
			return errors.New("DB_USER and DB_NAME are required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
