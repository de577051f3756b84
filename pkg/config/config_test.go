package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"AWS_REGION", "KB_POLL_INTERVAL", "KB_INGESTION_TIMEOUT", "FIXTURES_DIR", "BEDROCK_ENDPOINT_URL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ca-central-1", cfg.AWS.Region)
	assert.Equal(t, 30*time.Second, cfg.KB.PollInterval)
	assert.Equal(t, 20*time.Minute, cfg.KB.IngestionTimeout)
	assert.Equal(t, 60*time.Second, cfg.KB.CatalogueDelay)
	assert.Equal(t, "fixtures", cfg.FixturesDir)
	assert.False(t, cfg.AWS.HasStaticCredentials())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "BEDROCK_KNOWLEDGE_BASE_ID=KB123\nKB_POLL_INTERVAL=5s\nKB_INGESTION_TIMEOUT=bogus\n"
	require.NoError(t, os.WriteFile(envPath, []byte(content), 0o644))

	// godotenv は既存の環境変数を上書きしないため、空にしてから読み込む
	t.Setenv("BEDROCK_KNOWLEDGE_BASE_ID", "")
	t.Setenv("KB_POLL_INTERVAL", "")
	t.Setenv("KB_INGESTION_TIMEOUT", "")
	os.Unsetenv("BEDROCK_KNOWLEDGE_BASE_ID")
	os.Unsetenv("KB_POLL_INTERVAL")
	os.Unsetenv("KB_INGESTION_TIMEOUT")

	cfg, err := Load(envPath)
	require.NoError(t, err)

	assert.Equal(t, "KB123", cfg.Bedrock.KnowledgeBaseID)
	assert.Equal(t, 5*time.Second, cfg.KB.PollInterval)
	// 不正な値はデフォルトにフォールバック
	assert.Equal(t, 20*time.Minute, cfg.KB.IngestionTimeout)
	assert.NoError(t, cfg.ValidateBedrock())
}

func TestLoad_MissingEnvFileIsTolerated(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestBedrockConfig_AgentEndpointURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		expected string
	}{
		{
			name:     "runtimeエンドポイントを読み替える",
			endpoint: "https://bedrock-agent-runtime.ca-central-1.amazonaws.com",
			expected: "https://bedrock-agent.ca-central-1.amazonaws.com",
		},
		{
			name:     "agentエンドポイントはそのまま",
			endpoint: "https://bedrock-agent.ca-central-1.amazonaws.com",
			expected: "https://bedrock-agent.ca-central-1.amazonaws.com",
		},
		{
			name:     "未設定",
			endpoint: "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BedrockConfig{EndpointURL: tt.endpoint}
			assert.Equal(t, tt.expected, cfg.AgentEndpointURL())
		})
	}
}

func TestConfig_ValidateBedrock_MissingKnowledgeBase(t *testing.T) {
	cfg := &Config{Bedrock: BedrockConfig{ModelID: "m"}}
	err := cfg.ValidateBedrock()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BEDROCK_KNOWLEDGE_BASE_ID")
}
