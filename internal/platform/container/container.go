package container

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/jinford/ato-loader/internal/core/fixture"
	"github.com/jinford/ato-loader/internal/core/knowledgebase"
	"github.com/jinford/ato-loader/internal/infra/bedrock"
	"github.com/jinford/ato-loader/internal/infra/postgres"
	"github.com/jinford/ato-loader/internal/infra/s3"
	"github.com/jinford/ato-loader/internal/platform/database"
	"github.com/jinford/ato-loader/pkg/config"
	"github.com/jinford/ato-loader/pkg/db"
)

const (
	// CatalogueDirName はナレッジベースのカタログを置く FIXTURES_DIR 配下のディレクトリ
	CatalogueDirName = "ai_kb"
	// TenantDirName はテナントのフィクスチャを置く FIXTURES_DIR 配下のディレクトリ
	TenantDirName = "tenants"
)

// RemoteBucket はテナントのフィクスチャをやり取りするリモートバケット
type RemoteBucket interface {
	fixture.RemoteFetcher
	fixture.RemoteStore
}

// ServiceContainer はコマンドが使うサービスの依存関係を保持する。
// 外部への接続はコマンドが必要としたときに初めて行う。
type ServiceContainer struct {
	cfg     *config.Config
	options containerOptions

	mu         sync.Mutex
	database   *db.DB
	ingestion  knowledgebase.IngestionClient
	bucket     RemoteBucket
	bulkLoader fixture.BulkLoader
	audit      fixture.AuditObserver
	frameworks knowledgebase.FrameworkRepository
}

type containerOptions struct {
	logger     *slog.Logger
	database   *db.DB
	ingestion  knowledgebase.IngestionClient
	bucket     RemoteBucket
	bulkLoader fixture.BulkLoader
	audit      fixture.AuditObserver
	frameworks knowledgebase.FrameworkRepository
	jobOptions []knowledgebase.JobMonitorOption
	sleep      func(ctx context.Context, d time.Duration) error
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerDatabase は接続済みの DB を使う
func WithContainerDatabase(database *db.DB) ContainerOption {
	return func(opts *containerOptions) {
		opts.database = database
	}
}

// WithContainerIngestionClient はインジェストサービスのクライアントを差し替える
func WithContainerIngestionClient(client knowledgebase.IngestionClient) ContainerOption {
	return func(opts *containerOptions) {
		opts.ingestion = client
	}
}

// WithContainerRemoteBucket はリモートバケットを差し替える
func WithContainerRemoteBucket(bucket RemoteBucket) ContainerOption {
	return func(opts *containerOptions) {
		opts.bucket = bucket
	}
}

// WithContainerBulkLoader はフィクスチャの書き込み先と監査証跡の制御を差し替える
func WithContainerBulkLoader(loader fixture.BulkLoader, audit fixture.AuditObserver) ContainerOption {
	return func(opts *containerOptions) {
		opts.bulkLoader = loader
		opts.audit = audit
	}
}

// WithContainerFrameworkRepository はフレームワークの保存先を差し替える
func WithContainerFrameworkRepository(repo knowledgebase.FrameworkRepository) ContainerOption {
	return func(opts *containerOptions) {
		opts.frameworks = repo
	}
}

// WithContainerJobMonitorOptions は JobMonitor に追加のオプションを渡す
func WithContainerJobMonitorOptions(jobOpts ...knowledgebase.JobMonitorOption) ContainerOption {
	return func(opts *containerOptions) {
		opts.jobOptions = append(opts.jobOptions, jobOpts...)
	}
}

// WithContainerSleep はカタログ間の待機に使う関数を差し替える
func WithContainerSleep(sleep func(ctx context.Context, d time.Duration) error) ContainerOption {
	return func(opts *containerOptions) {
		opts.sleep = sleep
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(cfg *config.Config, opts ...ContainerOption) *ServiceContainer {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &ServiceContainer{
		cfg:        cfg,
		options:    options,
		database:   options.database,
		ingestion:  options.ingestion,
		bucket:     options.bucket,
		bulkLoader: options.bulkLoader,
		audit:      options.audit,
		frameworks: options.frameworks,
	}
}

// Close は内部リソースを解放する。
// WithContainerDatabase で渡された DB は呼び出し側が閉じる。
func (c *ServiceContainer) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.database != nil && c.database != c.options.database {
		c.database.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.options.logger == nil {
		return slog.Default()
	}
	return c.options.logger
}

// Config は設定を返す。
func (c *ServiceContainer) Config() *config.Config {
	return c.cfg
}

// CatalogueRoot はカタログのルートディレクトリを返す。
func (c *ServiceContainer) CatalogueRoot() string {
	return filepath.Join(c.cfg.FixturesDir, CatalogueDirName)
}

// TenantRoot はテナントのルートディレクトリを返す。
func (c *ServiceContainer) TenantRoot() string {
	return filepath.Join(c.cfg.FixturesDir, TenantDirName)
}

// Database はデータベースに接続して返す。
func (c *ServiceContainer) Database(ctx context.Context) (*db.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.databaseLocked(ctx)
}

func (c *ServiceContainer) databaseLocked(ctx context.Context) (*db.DB, error) {
	if c.database != nil {
		return c.database, nil
	}
	conn, err := db.New(ctx, c.cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}
	c.database = conn
	return conn, nil
}

// TransactionProvider はトランザクションの開始口を返す。
func (c *ServiceContainer) TransactionProvider(ctx context.Context) (*database.TransactionProvider, error) {
	conn, err := c.Database(ctx)
	if err != nil {
		return nil, err
	}
	return database.NewTransactionProvider(conn.Pool), nil
}

// IngestionClient は Bedrock Agent のクライアントを返す。
func (c *ServiceContainer) IngestionClient(ctx context.Context) (knowledgebase.IngestionClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ingestion != nil {
		return c.ingestion, nil
	}

	if err := c.cfg.ValidateBedrock(); err != nil {
		return nil, err
	}
	client, err := bedrock.New(ctx, c.cfg.AWS, c.cfg.Bedrock)
	if err != nil {
		return nil, fmt.Errorf("Bedrock クライアント初期化に失敗しました: %w", err)
	}
	c.ingestion = client
	return client, nil
}

// RemoteBucket は S3 のクライアントを返す。
func (c *ServiceContainer) RemoteBucket(ctx context.Context) (RemoteBucket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bucket != nil {
		return c.bucket, nil
	}

	bucket, err := s3.New(ctx, c.cfg.AWS, s3.WithLogger(c.Logger()))
	if err != nil {
		return nil, fmt.Errorf("S3 クライアント初期化に失敗しました: %w", err)
	}
	c.bucket = bucket
	return bucket, nil
}

// BulkLoader はフィクスチャの書き込み先と監査証跡の制御を返す。
func (c *ServiceContainer) BulkLoader(ctx context.Context) (fixture.BulkLoader, fixture.AuditObserver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bulkLoader != nil {
		return c.bulkLoader, c.audit, nil
	}

	conn, err := c.databaseLocked(ctx)
	if err != nil {
		return nil, nil, err
	}
	loader := postgres.NewFixtureLoader(
		database.NewTransactionProvider(conn.Pool),
		postgres.WithFixtureLoaderLogger(c.Logger()),
	)
	c.bulkLoader = loader
	c.audit = loader
	return loader, loader, nil
}

// FrameworkRepository はフレームワークの保存先を返す。
func (c *ServiceContainer) FrameworkRepository(ctx context.Context) (knowledgebase.FrameworkRepository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frameworks != nil {
		return c.frameworks, nil
	}

	conn, err := c.databaseLocked(ctx)
	if err != nil {
		return nil, err
	}
	repo := postgres.NewFrameworkRepository(database.NewTransactionProvider(conn.Pool), c.Logger())
	c.frameworks = repo
	return repo, nil
}

// Reconciler はカタログのURL調整を返す。外部接続は不要。
func (c *ServiceContainer) Reconciler() *knowledgebase.Reconciler {
	return knowledgebase.NewReconciler(c.CatalogueRoot(), knowledgebase.WithReconcilerLogger(c.Logger()))
}

// FixtureRunner はフィクスチャファイルを順に読み込む Runner を返す。
func (c *ServiceContainer) FixtureRunner(ctx context.Context, opts ...fixture.RunnerOption) (*fixture.Runner, error) {
	loader, audit, err := c.BulkLoader(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]fixture.RunnerOption{fixture.WithRunnerLogger(c.Logger())}, opts...)
	return fixture.NewRunner(loader, audit, opts...), nil
}

// KnowledgeBaseLoader はカタログをナレッジベースへ同期する Loader を返す。
func (c *ServiceContainer) KnowledgeBaseLoader(ctx context.Context) (*knowledgebase.Loader, error) {
	client, err := c.IngestionClient(ctx)
	if err != nil {
		return nil, err
	}

	runner, err := c.FixtureRunner(ctx)
	if err != nil {
		return nil, err
	}
	frameworks, err := c.FrameworkRepository(ctx)
	if err != nil {
		return nil, err
	}

	logger := c.Logger()
	dataSources := knowledgebase.NewDataSourceManager(
		client,
		c.cfg.AWS.Region,
		c.cfg.Bedrock.ModelID,
		knowledgebase.WithDataSourceLogger(logger),
	)

	jobOpts := []knowledgebase.JobMonitorOption{
		knowledgebase.WithPollInterval(c.cfg.KB.PollInterval),
		knowledgebase.WithIngestionTimeout(c.cfg.KB.IngestionTimeout),
		knowledgebase.WithMonitorLogger(logger),
	}
	monitor := knowledgebase.NewJobMonitor(client, append(jobOpts, c.options.jobOptions...)...)

	return knowledgebase.NewLoader(
		c.Reconciler(),
		dataSources,
		monitor,
		knowledgebase.WithFixtureLoader(fixture.NewDirectoryLoader(runner)),
		knowledgebase.WithFrameworkRepository(frameworks),
		knowledgebase.WithCatalogueDelay(c.cfg.KB.CatalogueDelay, c.options.sleep),
		knowledgebase.WithLoaderLogger(logger),
	), nil
}

// TenantLoader はテナントのフィクスチャを読み込む TenantLoader を返す。
// withRemote が true の場合のみ S3 クライアントを作成する。
func (c *ServiceContainer) TenantLoader(ctx context.Context, withRemote bool) (*fixture.TenantLoader, error) {
	runner, err := c.FixtureRunner(ctx)
	if err != nil {
		return nil, err
	}

	opts := []fixture.TenantLoaderOption{fixture.WithTenantLogger(c.Logger())}
	if withRemote {
		bucket, err := c.RemoteBucket(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fixture.WithRemoteFetcher(bucket), fixture.WithRemoteStore(bucket))
	}
	return fixture.NewTenantLoader(c.TenantRoot(), runner, opts...), nil
}

// TenantExporter はアップロード専用の TenantLoader を返す。DB には接続しない。
func (c *ServiceContainer) TenantExporter(ctx context.Context) (*fixture.TenantLoader, error) {
	bucket, err := c.RemoteBucket(ctx)
	if err != nil {
		return nil, err
	}
	return fixture.NewTenantLoader(
		c.TenantRoot(),
		nil,
		fixture.WithRemoteStore(bucket),
		fixture.WithTenantLogger(c.Logger()),
	), nil
}

// ResetSchema は public スキーマを作り直し、キャッシュしていたカラム情報を破棄する。
func (c *ServiceContainer) ResetSchema(ctx context.Context) error {
	tx, err := c.TransactionProvider(ctx)
	if err != nil {
		return err
	}
	if err := postgres.ResetSchema(ctx, tx, "public"); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if loader, ok := c.bulkLoader.(*postgres.FixtureLoader); ok {
		loader.ResetColumnCache()
	}
	return nil
}
