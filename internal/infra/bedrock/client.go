package bedrock

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/smithy-go"

	"github.com/jinford/ato-loader/internal/core/knowledgebase"
	"github.com/jinford/ato-loader/pkg/config"
)

// listPageSize はデータソース一覧の1ページあたりの件数
const listPageSize int32 = 100

// ErrEmptyResponse はレスポンスに期待した要素が含まれていない場合のエラー
var ErrEmptyResponse = errors.New("empty response from bedrock agent")

// API は Client が利用する bedrockagent の操作
// テスト時に差し替えられるように定義
type API interface {
	ListDataSources(ctx context.Context, params *bedrockagent.ListDataSourcesInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.ListDataSourcesOutput, error)
	GetDataSource(ctx context.Context, params *bedrockagent.GetDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetDataSourceOutput, error)
	CreateDataSource(ctx context.Context, params *bedrockagent.CreateDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.CreateDataSourceOutput, error)
	UpdateDataSource(ctx context.Context, params *bedrockagent.UpdateDataSourceInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.UpdateDataSourceOutput, error)
	StartIngestionJob(ctx context.Context, params *bedrockagent.StartIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.StartIngestionJobOutput, error)
	GetIngestionJob(ctx context.Context, params *bedrockagent.GetIngestionJobInput, optFns ...func(*bedrockagent.Options)) (*bedrockagent.GetIngestionJobOutput, error)
}

// Client は knowledgebase.IngestionClient を Bedrock Agent で実装する
// 全ての操作は1つのナレッジベースに対して行う
type Client struct {
	api             API
	knowledgeBaseID string
}

// コンパイル時の型チェック
var _ knowledgebase.IngestionClient = (*Client)(nil)

// New は設定から Bedrock Agent のクライアントを作成する
// アクセスキーが両方設定されている場合は静的な認証情報を、それ以外はデフォルトの認証チェーンを使う
func New(ctx context.Context, awsCfg config.AWSConfig, bedrockCfg config.BedrockConfig) (*Client, error) {
	if bedrockCfg.KnowledgeBaseID == "" {
		return nil, errors.New("BEDROCK_KNOWLEDGE_BASE_ID is not set")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.HasStaticCredentials() {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	endpoint := bedrockCfg.AgentEndpointURL()
	api := bedrockagent.NewFromConfig(cfg, func(o *bedrockagent.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewWithAPI(api, bedrockCfg.KnowledgeBaseID), nil
}

// NewWithAPI は任意の API 実装から Client を作成する
func NewWithAPI(api API, knowledgeBaseID string) *Client {
	return &Client{api: api, knowledgeBaseID: knowledgeBaseID}
}

func (c *Client) ListDataSources(ctx context.Context) ([]knowledgebase.DataSourceSummary, error) {
	var (
		result    []knowledgebase.DataSourceSummary
		nextToken *string
	)

	for {
		out, err := c.api.ListDataSources(ctx, &bedrockagent.ListDataSourcesInput{
			KnowledgeBaseId: aws.String(c.knowledgeBaseID),
			MaxResults:      aws.Int32(listPageSize),
			NextToken:       nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list data sources: %w", describe(err))
		}

		for _, s := range out.DataSourceSummaries {
			result = append(result, knowledgebase.DataSourceSummary{
				ID:     aws.ToString(s.DataSourceId),
				Name:   aws.ToString(s.Name),
				Status: string(s.Status),
			})
		}

		if aws.ToString(out.NextToken) == "" {
			return result, nil
		}
		nextToken = out.NextToken
	}
}

func (c *Client) GetDataSource(ctx context.Context, dataSourceID string) (*knowledgebase.DataSource, error) {
	out, err := c.api.GetDataSource(ctx, &bedrockagent.GetDataSourceInput{
		KnowledgeBaseId: aws.String(c.knowledgeBaseID),
		DataSourceId:    aws.String(dataSourceID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get data source %s: %w", dataSourceID, describe(err))
	}
	if out.DataSource == nil {
		return nil, fmt.Errorf("get data source %s: %w", dataSourceID, ErrEmptyResponse)
	}
	return toDataSource(out.DataSource), nil
}

func (c *Client) CreateDataSource(ctx context.Context, input knowledgebase.CreateDataSourceInput) (*knowledgebase.DataSource, error) {
	out, err := c.api.CreateDataSource(ctx, &bedrockagent.CreateDataSourceInput{
		KnowledgeBaseId:              aws.String(c.knowledgeBaseID),
		Name:                         aws.String(input.Name),
		Description:                  aws.String(input.Description),
		DataSourceConfiguration:      toDataSourceConfiguration(input.Config),
		VectorIngestionConfiguration: toVectorIngestionConfiguration(input.Parsing),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create data source %s: %w", input.Name, describe(err))
	}
	if out.DataSource == nil {
		return nil, fmt.Errorf("create data source %s: %w", input.Name, ErrEmptyResponse)
	}
	return toDataSource(out.DataSource), nil
}

func (c *Client) UpdateDataSource(ctx context.Context, input knowledgebase.UpdateDataSourceInput) error {
	_, err := c.api.UpdateDataSource(ctx, toUpdateDataSourceInput(c.knowledgeBaseID, input))
	if err != nil {
		return fmt.Errorf("failed to update data source %s: %w", input.ID, describe(err))
	}
	return nil
}

func (c *Client) StartIngestionJob(ctx context.Context, dataSourceID, description, clientToken string) (*knowledgebase.IngestionJob, error) {
	in := &bedrockagent.StartIngestionJobInput{
		KnowledgeBaseId: aws.String(c.knowledgeBaseID),
		DataSourceId:    aws.String(dataSourceID),
		Description:     aws.String(description),
	}
	if clientToken != "" {
		in.ClientToken = aws.String(clientToken)
	}

	out, err := c.api.StartIngestionJob(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("failed to start ingestion job: %w", describe(err))
	}
	if out.IngestionJob == nil {
		return nil, fmt.Errorf("start ingestion job: %w", ErrEmptyResponse)
	}
	return toIngestionJob(out.IngestionJob), nil
}

func (c *Client) GetIngestionJob(ctx context.Context, dataSourceID, jobID string) (*knowledgebase.IngestionJob, error) {
	out, err := c.api.GetIngestionJob(ctx, &bedrockagent.GetIngestionJobInput{
		KnowledgeBaseId: aws.String(c.knowledgeBaseID),
		DataSourceId:    aws.String(dataSourceID),
		IngestionJobId:  aws.String(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion job %s: %w", jobID, describe(err))
	}
	if out.IngestionJob == nil {
		return nil, fmt.Errorf("get ingestion job %s: %w", jobID, ErrEmptyResponse)
	}
	return toIngestionJob(out.IngestionJob), nil
}

// APIError はサービスが返したエラーコードとメッセージを保持する
type APIError struct {
	Code    string
	Message string
	err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

// describe はサービスエラーをコードとメッセージが読める形にする
// 呼び出し側はメッセージの内容で再試行を判断することがある
func describe(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Code: apiErr.ErrorCode(), Message: apiErr.ErrorMessage(), err: err}
	}
	return err
}
