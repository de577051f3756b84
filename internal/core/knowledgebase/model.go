package knowledgebase

import "fmt"

const (
	// MaxTotalURLChars は1データソースに登録できるシードURLの合計文字数の上限
	MaxTotalURLChars = 3000

	// MaxURLLength を超えるURLは警告対象（除外はしない）
	MaxURLLength = 200

	// CreationURLCountWarning を超えるURL数でデータソースを作成する場合は警告する
	CreationURLCountWarning = 50

	// DefaultCrawlRateLimit はクローラの1分あたりのリクエスト上限
	DefaultCrawlRateLimit = 300

	// BaseCatalogue は全顧客共通のナレッジを保持するカタログ名
	BaseCatalogue = "base"

	// CatalogueInfoFileName はカタログのメタデータを保持するファイル名
	CatalogueInfoFileName = "catalogue_info.json"

	// RelationalFixturePrefix はリレーショナルフィクスチャのファイル名接頭辞
	RelationalFixturePrefix = "django_"
)

// DataSourceType はデータソース設定の種別
type DataSourceType string

const (
	// DataSourceTypeWeb はWebクローラ型のデータソース
	DataSourceTypeWeb DataSourceType = "WEB"
)

// JobStatus はインジェストジョブの状態
type JobStatus string

const (
	JobStatusStarting   JobStatus = "STARTING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusComplete   JobStatus = "COMPLETE"
	JobStatusFailed     JobStatus = "FAILED"
)

// DataSourceSummary はデータソース一覧の1件
type DataSourceSummary struct {
	ID     string
	Name   string
	Status string
}

// DataSourceConfig はWebクローラ型データソースの設定
type DataSourceConfig struct {
	Type             DataSourceType
	SeedURLs         []string
	RateLimit        int32
	InclusionFilters []string
	ExclusionFilters []string
	Scope            string // 空の場合はリモートの既定値
	HasWebConfig     bool   // リモートの設定に webConfiguration が含まれていたか
}

// ParsingConfig は基盤モデルによるパース設定
type ParsingConfig struct {
	Strategy string
	ModelARN string
}

// ParsingStrategyFoundationModel は基盤モデルでコンテンツをパースする戦略
const ParsingStrategyFoundationModel = "BEDROCK_FOUNDATION_MODEL"

// DataSource はリモートのデータソース
type DataSource struct {
	ID          string
	Name        string
	Description string
	Config      DataSourceConfig
	Parsing     *ParsingConfig // nil の場合はベクトル取り込み設定なし

	// Remote は取得元のアダプタが保持する設定の原本
	// ドメインで表現しない項目（クロール上限、チャンク分割など）を更新時に引き継ぐ
	Remote any
}

// CreateDataSourceInput はデータソース作成の入力
type CreateDataSourceInput struct {
	Name        string
	Description string
	Config      DataSourceConfig
	Parsing     *ParsingConfig
}

// UpdateDataSourceInput はデータソース更新の入力（設定は全体を置き換える）
// Remote が設定されている場合、アダプタはその原本のシードURLだけを Config.SeedURLs で差し替えて送信する
type UpdateDataSourceInput struct {
	ID          string
	Name        string
	Description string
	Config      DataSourceConfig
	Parsing     *ParsingConfig // nil の場合はベクトル取り込み設定を送信しない
	Remote      any
}

// IngestionJob はインジェストジョブの状態スナップショット
type IngestionJob struct {
	ID             string
	DataSourceID   string
	Status         JobStatus
	FailureReasons []string
}

// CatalogueInfo は catalogue_info.json の内容
type CatalogueInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// FrameworkMetadata はコンプライアンスフレームワークのレコード
type FrameworkMetadata struct {
	Name        string
	Description string
	Version     string
}

// FoundationModelARN は基盤モデルのARNを組み立てる
func FoundationModelARN(region, modelID string) string {
	return fmt.Sprintf("arn:aws:bedrock:%s::foundation-model/%s", region, modelID)
}
