// Package database は各保存先への接続と TaskRepository の組み立てを行います。
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"todo-api/internal/config"
	"todo-api/internal/repositories"
)

const (
	connectTimeout = 10 * time.Second
	tableWaitLimit = 2 * time.Minute
)

// GetDSN は設定からMySQL接続文字列 (DSN) を構築します。
// 更新の行数判定のため clientFoundRows を有効にします。
func GetDSN(c config.MySQLConfig) string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Pass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, c.Port)
	mc.DBName = c.Name
	mc.ParseTime = true
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

// InitDB はMySQLへの接続を初期化します。
func InitDB(ctx context.Context, c config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", GetDSN(c))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Println("Successfully connected to MySQL database!")
	return db, nil
}

// NewRedisClient はRedisクライアントを作成し、疎通を確認します。
func NewRedisClient(ctx context.Context, c config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Printf("Successfully connected to Redis at %s", c.Addr)
	return client, nil
}

// NewDynamoClient はデフォルトの認証情報チェーンでDynamoDBクライアントを作成します。
// Endpoint が設定されていれば (DynamoDB Local など) そちらに向けます。
func NewDynamoClient(ctx context.Context, c config.DynamoDBConfig) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	}), nil
}

// OpenTaskRepository は STORE_DRIVER に応じた TaskRepository を返します。
func OpenTaskRepository(ctx context.Context, cfg *config.Config) (repositories.TaskRepository, error) {
	switch cfg.StoreDriver {
	case config.DriverDynamoDB:
		client, err := NewDynamoClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		repo := repositories.NewDynamoTaskRepository(client, cfg.TableName)
		if cfg.DynamoDB.CreateTable {
			if err := repo.EnsureTable(ctx, tableWaitLimit); err != nil {
				return nil, err
			}
		}
		return repo, nil

	case config.DriverMySQL:
		db, err := InitDB(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		repo := repositories.NewMySQLTaskRepository(db, cfg.TableName)
		if cfg.MySQL.Migrate {
			if err := repo.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
		}
		return repo, nil

	case config.DriverRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return repositories.NewRedisTaskRepository(client, cfg.TableName), nil

	case config.DriverMemory:
		log.Println("Using in-memory task store; data is lost on restart")
		return repositories.NewMemoryTaskRepository(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}
