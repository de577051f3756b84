package knowledgebase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/mo"
)

// vectorIngestionConfigField はリモートが更新を拒否する際にエラーメッセージへ含めるフィールド名
const vectorIngestionConfigField = "vectorIngestionConfiguration"

// DataSourceName はカタログ名から決定的にデータソース名を算出する
func DataSourceName(catalogue string) string {
	return fmt.Sprintf("fixtures-%s-kb-source", catalogue)
}

// DataSourceManager はカタログに対応するデータソースの解決・作成・更新を行う
type DataSourceManager struct {
	client  IngestionClient
	region  string
	modelID string
	logger  *slog.Logger
}

type dataSourceManagerOptions struct {
	logger *slog.Logger
}

// DataSourceManagerOption は DataSourceManager のオプション設定
type DataSourceManagerOption func(*dataSourceManagerOptions)

// WithDataSourceLogger は DataSourceManager にロガーを設定する
func WithDataSourceLogger(logger *slog.Logger) DataSourceManagerOption {
	return func(o *dataSourceManagerOptions) {
		o.logger = logger
	}
}

// NewDataSourceManager は新しい DataSourceManager を作成する
// region と modelID はパーサーに使う基盤モデルのARNを組み立てるために使う
func NewDataSourceManager(client IngestionClient, region, modelID string, opts ...DataSourceManagerOption) *DataSourceManager {
	options := dataSourceManagerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return &DataSourceManager{
		client:  client,
		region:  region,
		modelID: modelID,
		logger:  options.logger,
	}
}

// FindByName は名前が一致するデータソースを探す
// 一覧取得に失敗した場合は警告を出して「見つからない」として扱う
func (m *DataSourceManager) FindByName(ctx context.Context, name string) mo.Option[DataSourceSummary] {
	summaries, err := m.client.ListDataSources(ctx)
	if err != nil {
		m.logger.Warn("データソース一覧の取得に失敗しました", "error", err)
		return mo.None[DataSourceSummary]()
	}

	for _, summary := range summaries {
		if summary.Name == name {
			return mo.Some(summary)
		}
	}
	return mo.None[DataSourceSummary]()
}

// Resolution はデータソース解決の結果
type Resolution struct {
	DataSourceID string
	Created      bool // true の場合、シードURLは作成時に登録済み
}

// Ensure はカタログのデータソースを解決し、存在しなければ urls をシードとして作成する
// 作成に失敗した場合は致命的エラーとして返す
func (m *DataSourceManager) Ensure(ctx context.Context, catalogue string, urls []string) (*Resolution, error) {
	name := DataSourceName(catalogue)

	if existing, ok := m.FindByName(ctx, name).Get(); ok {
		m.logger.Info("既存のデータソースを使用します（既存のURLは全て置き換えられます）",
			"dataSourceID", existing.ID,
			"name", name,
		)
		return &Resolution{DataSourceID: existing.ID}, nil
	}

	m.logger.Info("カタログ用のデータソースを作成します", "catalogue", catalogue, "name", name)

	if total := TotalChars(urls); total > MaxTotalURLChars {
		return nil, &BudgetError{Total: total, Limit: MaxTotalURLChars}
	}

	ds, err := m.client.CreateDataSource(ctx, CreateDataSourceInput{
		Name:        name,
		Description: fmt.Sprintf("Fixture-managed data source for %s catalogue with foundation model parser", catalogue),
		Config: DataSourceConfig{
			Type:             DataSourceTypeWeb,
			SeedURLs:         urls,
			RateLimit:        DefaultCrawlRateLimit,
			InclusionFilters: []string{".*"},
			HasWebConfig:     true,
		},
		Parsing: &ParsingConfig{
			Strategy: ParsingStrategyFoundationModel,
			ModelARN: FoundationModelARN(m.region, m.modelID),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("データソースの作成に失敗: %w", err)
	}

	m.logger.Info("データソースを作成しました",
		"dataSourceID", ds.ID,
		"urls", len(urls),
		"modelID", m.modelID,
	)
	return &Resolution{DataSourceID: ds.ID, Created: true}, nil
}

// UpdateOutcome はシードURL置き換えの結果
type UpdateOutcome struct {
	Applied             bool
	WithoutVectorConfig bool  // ベクトル取り込み設定を外して再試行した結果適用された
	Err                 error // 適用できなかった理由
}

// ReplaceSeedURLs は既存データソースのシードURLを urls で完全に置き換える
// 現在の設定を取得してシードURLのみを差し替え、設定全体を再送信する。
// 失敗しても処理は継続できるため、エラーは UpdateOutcome に格納して返す
func (m *DataSourceManager) ReplaceSeedURLs(ctx context.Context, catalogue, dataSourceID string, urls []string) UpdateOutcome {
	m.logger.Info("データソースのURLを更新します", "dataSourceID", dataSourceID, "urls", len(urls))

	outcome := m.replaceSeedURLs(ctx, catalogue, dataSourceID, urls)
	if !outcome.Applied {
		m.logger.Error("データソースのURL更新に失敗しました。既存の設定でインジェストジョブを実行します",
			"dataSourceID", dataSourceID,
			"error", outcome.Err,
		)
	}
	return outcome
}

func (m *DataSourceManager) replaceSeedURLs(ctx context.Context, catalogue, dataSourceID string, urls []string) UpdateOutcome {
	if total := TotalChars(urls); total > MaxTotalURLChars {
		return UpdateOutcome{Err: &BudgetError{Total: total, Limit: MaxTotalURLChars}}
	}

	current, err := m.client.GetDataSource(ctx, dataSourceID)
	if err != nil {
		return UpdateOutcome{Err: fmt.Errorf("データソースの取得に失敗: %w", err)}
	}

	if current.Config.Type != DataSourceTypeWeb || !current.Config.HasWebConfig {
		return UpdateOutcome{Err: fmt.Errorf("%w (type: %s)", ErrNotWebCrawler, current.Config.Type)}
	}

	name := current.Name
	if name == "" {
		name = DataSourceName(catalogue)
	}
	suffix := fmt.Sprintf(" - Updated %s URLs", catalogue)
	description := strings.TrimSuffix(current.Description, suffix)
	if description == "" {
		description = "Catalogue-specific data source"
	}

	config := current.Config
	config.SeedURLs = append([]string(nil), urls...)

	input := UpdateDataSourceInput{
		ID:          dataSourceID,
		Name:        name,
		Description: description + suffix,
		Config:      config,
		Parsing:     current.Parsing,
		Remote:      current.Remote,
	}

	err = m.client.UpdateDataSource(ctx, input)
	if err == nil {
		m.logger.Info("データソースのURLを更新しました", "dataSourceID", dataSourceID)
		return UpdateOutcome{Applied: true}
	}

	if !strings.Contains(err.Error(), vectorIngestionConfigField) || input.Parsing == nil {
		return UpdateOutcome{Err: err}
	}

	m.logger.Warn("vectorIngestionConfiguration を外して更新を再試行します", "error", err)
	input.Parsing = nil
	if retryErr := m.client.UpdateDataSource(ctx, input); retryErr != nil {
		return UpdateOutcome{Err: fmt.Errorf("再試行にも失敗: %w", retryErr)}
	}

	m.logger.Info("データソースのURLを更新しました（ベクトル取り込み設定なし）", "dataSourceID", dataSourceID)
	return UpdateOutcome{Applied: true, WithoutVectorConfig: true}
}
