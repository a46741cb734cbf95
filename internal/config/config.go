package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）

	RabbitURL string // ブローカー接続URL（amqp://...）

	AuthTimeout      time.Duration // 認可RPCのタイムアウト
	AuthRequiredRole string        // 在庫操作に要求するロール
	AuthReplyMode    string        // 応答の待ち方（push/poll）

	GoEnv string // dev/prod
}

// Loadは環境変数
func Load() (Config, error) {
	pgPort, err := mustAtoi("POSTGRES_PORT")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port: os.Getenv("PORT"),

		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		PostgresHost:     os.Getenv("POSTGRES_HOST"),
		PostgresPort:     pgPort,

		RabbitURL: os.Getenv("RABBITMQ_URL"),

		AuthRequiredRole: getenv("AUTH_REQUIRED_ROLE", "ROLE_TECHNICIAN"),
		AuthReplyMode:    getenv("AUTH_REPLY_MODE", "push"),

		GoEnv: os.Getenv("GO_ENV"),
	}

	//認可RPCのタイムアウト（ms、default 10000）
	timeoutMS := 10000
	if v := os.Getenv("AUTH_TIMEOUT_MS"); v != "" {
		timeoutMS, err = strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("AUTH_TIMEOUT_MS must be number: %w", err)
		}
	}
	cfg.AuthTimeout = time.Duration(timeoutMS) * time.Millisecond

	//必須チェック
	if cfg.Port == "" {
		return Config{}, fmt.Errorf("PORT is required")
	}
	if cfg.PostgresUser == "" {
		return Config{}, fmt.Errorf("POSTGRES_USER is required")
	}
	if cfg.PostgresPassword == "" {
		return Config{}, fmt.Errorf("POSTGRES_PASSWORD is required")
	}
	if cfg.PostgresDB == "" {
		return Config{}, fmt.Errorf("POSTGRES_DB is required")
	}
	if cfg.PostgresHost == "" {
		return Config{}, fmt.Errorf("POSTGRES_HOST is required")
	}
	if cfg.RabbitURL == "" {
		return Config{}, fmt.Errorf("RABBITMQ_URL is required")
	}
	if cfg.GoEnv == "" {
		return Config{}, fmt.Errorf("GO_ENV is required")
	}
	if cfg.AuthReplyMode != "push" && cfg.AuthReplyMode != "poll" {
		return Config{}, fmt.Errorf("AUTH_REPLY_MODE must be push or poll")
	}

	return cfg, nil
}

func mustAtoi(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
