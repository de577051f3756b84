package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// AWS設定（Bedrock / S3 共通）
	AWS AWSConfig

	// Bedrock ナレッジベース設定
	Bedrock BedrockConfig

	// ナレッジベース取り込み設定
	KB KBConfig

	// フィクスチャのルートディレクトリ
	FixturesDir string

	// init コマンドで実行するマイグレーションコマンド
	MigrateCommand string

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// AWSConfig はAWSクライアント共通設定
type AWSConfig struct {
	Region          string
	AccessKeyID     string // 空の場合はデフォルトの認証情報チェーンを使用
	SecretAccessKey string
}

// HasStaticCredentials は静的な認証情報が両方とも設定されているかを返します
func (c AWSConfig) HasStaticCredentials() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// BedrockConfig は Bedrock Agent API の設定
type BedrockConfig struct {
	EndpointURL     string
	KnowledgeBaseID string
	ModelID         string // パーサーとして利用する基盤モデルID
}

// AgentEndpointURL は bedrock-agent 用のエンドポイントを返します
// runtime 用のエンドポイントが設定されている場合は bedrock-agent に読み替えます
func (c BedrockConfig) AgentEndpointURL() string {
	return strings.Replace(c.EndpointURL, "bedrock-agent-runtime", "bedrock-agent", 1)
}

// KBConfig はナレッジベース取り込みの待機設定
type KBConfig struct {
	PollInterval     time.Duration
	IngestionTimeout time.Duration
	CatalogueDelay   time.Duration // all モードでのカタログ間の待機時間
}

// LogConfig はログ出力設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ato"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ato"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ca-central-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Bedrock: BedrockConfig{
			EndpointURL:     getEnv("BEDROCK_ENDPOINT_URL", ""),
			KnowledgeBaseID: getEnv("BEDROCK_KNOWLEDGE_BASE_ID", ""),
			ModelID:         getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-sonnet-20240229-v1:0"),
		},
		KB: KBConfig{
			PollInterval:     getEnvAsDuration("KB_POLL_INTERVAL", 30*time.Second),
			IngestionTimeout: getEnvAsDuration("KB_INGESTION_TIMEOUT", 20*time.Minute),
			CatalogueDelay:   getEnvAsDuration("KB_CATALOGUE_DELAY", 60*time.Second),
		},
		FixturesDir:    getEnv("FIXTURES_DIR", "fixtures"),
		MigrateCommand: getEnv("MIGRATE_COMMAND", "python3 manage.py migrate"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// ValidateBedrock は kb コマンドの実行に必要な設定が揃っているかを検証します
func (c *Config) ValidateBedrock() error {
	if c.Bedrock.KnowledgeBaseID == "" {
		return fmt.Errorf("BEDROCK_KNOWLEDGE_BASE_ID is not set")
	}
	if c.Bedrock.ModelID == "" {
		return fmt.Errorf("BEDROCK_MODEL_ID is not set")
	}
	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は環境変数を time.Duration として取得します（例: 30s, 20m）
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}
