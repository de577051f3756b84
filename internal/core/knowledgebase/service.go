package knowledgebase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultCatalogueDelay は all モードでカタログ間に挟む待機時間
const DefaultCatalogueDelay = 60 * time.Second

// LoadResult は1カタログの読み込み結果
type LoadResult struct {
	Catalogue        string
	DataSourceID     string
	JobID            string
	URLs             []string
	TotalChars       int
	Created          bool
	Update           UpdateOutcome
	FixturesLoaded   int
	FrameworkCreated bool
}

// Loader はカタログ単位でナレッジベースを同期するユースケースを提供する
type Loader struct {
	reconciler  *Reconciler
	dataSources *DataSourceManager
	monitor     *JobMonitor
	fixtures    FixtureLoader       // オプショナル
	frameworks  FrameworkRepository // オプショナル
	delay       time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

type loaderOptions struct {
	fixtures   FixtureLoader
	frameworks FrameworkRepository
	delay      time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// LoaderOption は Loader のオプション設定
type LoaderOption func(*loaderOptions)

// WithFixtureLoader はジョブ成功後に実行するリレーショナルフィクスチャの読み込みを設定する
func WithFixtureLoader(loader FixtureLoader) LoaderOption {
	return func(o *loaderOptions) {
		o.fixtures = loader
	}
}

// WithFrameworkRepository はフレームワークメタデータの保存先を設定する
func WithFrameworkRepository(repo FrameworkRepository) LoaderOption {
	return func(o *loaderOptions) {
		o.frameworks = repo
	}
}

// WithCatalogueDelay は all モードでのカタログ間の待機時間を設定する
func WithCatalogueDelay(d time.Duration, sleep func(ctx context.Context, d time.Duration) error) LoaderOption {
	return func(o *loaderOptions) {
		o.delay = d
		if sleep != nil {
			o.sleep = sleep
		}
	}
}

// WithLoaderLogger は Loader にロガーを設定する
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(o *loaderOptions) {
		o.logger = logger
	}
}

// NewLoader は新しい Loader を作成する
func NewLoader(reconciler *Reconciler, dataSources *DataSourceManager, monitor *JobMonitor, opts ...LoaderOption) *Loader {
	options := loaderOptions{
		delay:  DefaultCatalogueDelay,
		sleep:  Sleep,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Loader{
		reconciler:  reconciler,
		dataSources: dataSources,
		monitor:     monitor,
		fixtures:    options.fixtures,
		frameworks:  options.frameworks,
		delay:       options.delay,
		sleep:       options.sleep,
		logger:      options.logger,
	}
}

// LoadCatalogue はカタログのURL集合を調整し、データソースへ反映してインジェストを完了まで待つ
// 成功した場合のみリレーショナルフィクスチャとフレームワークメタデータを反映する
func (l *Loader) LoadCatalogue(ctx context.Context, catalogue string) (*LoadResult, error) {
	l.logger.Info("ナレッジベースの読み込みを開始",
		"catalogue", catalogue,
		"dir", l.reconciler.CatalogueDir(catalogue),
		"charLimit", MaxTotalURLChars,
	)

	// リモートを変更する前に文字数上限を確認する
	reconciled, err := l.reconciler.Reconcile(catalogue)
	if err != nil {
		return nil, fmt.Errorf("URLの調整に失敗: %w", err)
	}

	result := &LoadResult{
		Catalogue:  catalogue,
		URLs:       reconciled.URLs,
		TotalChars: reconciled.TotalChars,
	}

	resolution, err := l.dataSources.Ensure(ctx, catalogue, reconciled.URLs)
	if err != nil {
		return nil, fmt.Errorf("データソースの取得/作成に失敗: %w", err)
	}
	result.DataSourceID = resolution.DataSourceID
	result.Created = resolution.Created

	if resolution.Created {
		l.reconciler.CheckCreationSize(reconciled)
		result.Update = UpdateOutcome{Applied: true}
	} else {
		result.Update = l.dataSources.ReplaceSeedURLs(ctx, catalogue, resolution.DataSourceID, reconciled.URLs)
	}

	jobID, err := l.monitor.Run(ctx, resolution.DataSourceID, catalogue)
	result.JobID = jobID
	if err != nil {
		return result, fmt.Errorf("インジェストジョブが失敗またはタイムアウトしました: %w", err)
	}

	l.loadAuxiliary(ctx, catalogue, result)

	l.logger.Info("ナレッジベースの構成が完了しました",
		"catalogue", catalogue,
		"urls", len(result.URLs),
		"jobID", result.JobID,
		"dataSourceID", result.DataSourceID,
	)
	return result, nil
}

// loadAuxiliary はリレーショナルフィクスチャとフレームワークメタデータを反映する
// ここでの失敗はカタログの読み込み結果には影響させない
func (l *Loader) loadAuxiliary(ctx context.Context, catalogue string, result *LoadResult) {
	if l.fixtures != nil {
		dirs := []string{}
		if l.reconciler.IncludesBase(catalogue) {
			dirs = append(dirs, l.reconciler.BaseDir())
		}
		dirs = append(dirs, l.reconciler.CatalogueDir(catalogue))

		for _, dir := range dirs {
			n, err := l.fixtures.LoadDirectory(ctx, dir)
			if err != nil {
				l.logger.Warn("リレーショナルフィクスチャの読み込みに失敗しました", "dir", dir, "error", err)
				continue
			}
			result.FixturesLoaded += n
		}
	}

	if l.frameworks == nil {
		return
	}

	info, err := ReadCatalogueInfo(l.reconciler.CatalogueDir(catalogue))
	if err != nil {
		l.logger.Warn("カタログ情報の読み込みに失敗しました", "catalogue", catalogue, "error", err)
		return
	}
	if info == nil {
		return
	}

	meta := FrameworkFromInfo(catalogue, info)
	created, err := l.frameworks.GetOrCreate(ctx, meta)
	if err != nil {
		l.logger.Warn("コンプライアンスフレームワークの更新に失敗しました", "name", meta.Name, "error", err)
		return
	}
	result.FrameworkCreated = created
	if created {
		l.logger.Info("コンプライアンスフレームワークを作成しました", "name", meta.Name)
	} else {
		l.logger.Info("コンプライアンスフレームワークは既に存在します", "name", meta.Name)
	}
}

// CatalogueOutcome は all モードでの1カタログの結果
type CatalogueOutcome struct {
	Catalogue string
	Result    *LoadResult
	Err       error
}

// BatchResult は all モードの集計結果
type BatchResult struct {
	Outcomes []CatalogueOutcome
}

// Succeeded は全てのカタログが成功したかどうかを返す
func (b *BatchResult) Succeeded() bool {
	for _, o := range b.Outcomes {
		if o.Err != nil {
			return false
		}
	}
	return true
}

// Failed は失敗したカタログ名を返す
func (b *BatchResult) Failed() []string {
	var failed []string
	for _, o := range b.Outcomes {
		if o.Err != nil {
			failed = append(failed, o.Catalogue)
		}
	}
	return failed
}

// Err は失敗したカタログのエラーをまとめて返す
func (b *BatchResult) Err() error {
	var errs []error
	for _, o := range b.Outcomes {
		if o.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.Catalogue, o.Err))
		}
	}
	return errors.Join(errs...)
}

// LoadAll はカタログを1件ずつ順番に読み込む
// 各カタログは同じデータソースの内容を置き換えるため、最後のカタログが最終状態になる。
// 1件の失敗で全体を中断せず、結果はカタログごとに記録する
func (l *Loader) LoadAll(ctx context.Context, catalogues []string) *BatchResult {
	l.logger.Warn("all モードではカタログを1件ずつ読み込みます。本番環境では個別のカタログ指定を推奨します",
		"catalogues", catalogues,
	)

	batch := &BatchResult{}
	for i, catalogue := range catalogues {
		l.logger.Info("カタログを読み込みます", "catalogue", catalogue, "index", i+1, "total", len(catalogues))

		result, err := l.LoadCatalogue(ctx, catalogue)
		batch.Outcomes = append(batch.Outcomes, CatalogueOutcome{Catalogue: catalogue, Result: result, Err: err})
		if err != nil {
			l.logger.Error("カタログの読み込みに失敗しました", "catalogue", catalogue, "error", err)
		} else {
			l.logger.Info("カタログの読み込みに成功しました", "catalogue", catalogue)
		}

		if i == len(catalogues)-1 {
			break
		}

		l.logger.Info("次のカタログまで待機します", "delay", l.delay)
		if err := l.sleep(ctx, l.delay); err != nil {
			for _, rest := range catalogues[i+1:] {
				batch.Outcomes = append(batch.Outcomes, CatalogueOutcome{Catalogue: rest, Err: err})
			}
			break
		}
	}

	return batch
}
