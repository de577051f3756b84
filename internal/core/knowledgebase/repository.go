package knowledgebase

import "context"

// IngestionClient はナレッジベースのインジェストサービスへのアクセスを抽象化する
// テスト時のモック用に消費者側で定義
type IngestionClient interface {
	// ListDataSources はナレッジベース配下のデータソースを全件返す
	ListDataSources(ctx context.Context) ([]DataSourceSummary, error)

	GetDataSource(ctx context.Context, dataSourceID string) (*DataSource, error)
	CreateDataSource(ctx context.Context, input CreateDataSourceInput) (*DataSource, error)
	UpdateDataSource(ctx context.Context, input UpdateDataSourceInput) error

	// StartIngestionJob はジョブを開始する。clientToken は冪等性トークン
	StartIngestionJob(ctx context.Context, dataSourceID, description, clientToken string) (*IngestionJob, error)
	GetIngestionJob(ctx context.Context, dataSourceID, jobID string) (*IngestionJob, error)
}

// FrameworkRepository はコンプライアンスフレームワークのメタデータを永続化する
type FrameworkRepository interface {
	// GetOrCreate は名前で検索し、存在しなければ作成する。作成した場合 true を返す
	GetOrCreate(ctx context.Context, meta FrameworkMetadata) (bool, error)
}

// FixtureLoader はカタログ付属のリレーショナルフィクスチャを読み込む
type FixtureLoader interface {
	// LoadDirectory は dir 内の django_*.json を読み込み、件数を返す
	LoadDirectory(ctx context.Context, dir string) (int, error)
}
