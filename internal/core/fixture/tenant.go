package fixture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jinford/ato-loader/pkg/loadorder"
)

const (
	// TempTenantDir はリモートから取得したテナントを展開するディレクトリ名
	TempTenantDir = ".temp"

	// WorkflowGuideFileName が存在するテナントはATOワークフローの生成が完了している
	WorkflowGuideFileName = "ATO_WORKFLOW_GUIDE.md"
)

// TenantRequest はテナント読み込みの対象
// Tenant が存在しない場合は Bucket から取得する
type TenantRequest struct {
	Tenant string
	Bucket string
}

// Describe はログ出力用の対象の説明を返す
func (r TenantRequest) Describe() string {
	if r.Tenant != "" {
		return "tenant: " + r.Tenant
	}
	return "remote bucket: " + r.Bucket
}

// TenantInfo はテナント一覧の1件
type TenantInfo struct {
	Name     string
	Fixtures int
	HasGuide bool
}

// Ready はテナントが読み込み可能な状態かどうかを返す
func (t TenantInfo) Ready() bool {
	return t.HasGuide && t.Fixtures > 0
}

// TenantLoader はテナント固有のATOワークフローフィクスチャを読み込む
type TenantLoader struct {
	root    string
	runner  *Runner
	fetcher RemoteFetcher // オプショナル
	store   RemoteStore   // オプショナル
	logger  *slog.Logger
}

type tenantLoaderOptions struct {
	fetcher RemoteFetcher
	store   RemoteStore
	logger  *slog.Logger
}

// TenantLoaderOption は TenantLoader のオプション設定
type TenantLoaderOption func(*tenantLoaderOptions)

// WithRemoteFetcher はリモートバケットからの取得方法を設定する
func WithRemoteFetcher(fetcher RemoteFetcher) TenantLoaderOption {
	return func(o *tenantLoaderOptions) {
		o.fetcher = fetcher
	}
}

// WithRemoteStore はリモートバケットへの保存方法を設定する
func WithRemoteStore(store RemoteStore) TenantLoaderOption {
	return func(o *tenantLoaderOptions) {
		o.store = store
	}
}

// WithTenantLogger は TenantLoader にロガーを設定する
func WithTenantLogger(logger *slog.Logger) TenantLoaderOption {
	return func(o *tenantLoaderOptions) {
		o.logger = logger
	}
}

// NewTenantLoader は root（fixtures/tenants）配下のテナントを扱う TenantLoader を作成する
func NewTenantLoader(root string, runner *Runner, opts ...TenantLoaderOption) *TenantLoader {
	options := tenantLoaderOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return &TenantLoader{
		root:    root,
		runner:  runner,
		fetcher: options.fetcher,
		store:   options.store,
		logger:  options.logger,
	}
}

// Root はテナントのルートディレクトリを返す
func (l *TenantLoader) Root() string {
	return l.root
}

// Locate はテナントのフィクスチャがあるディレクトリを返す
// ローカルに無くバケットが指定されている場合は .temp へダウンロードする
func (l *TenantLoader) Locate(ctx context.Context, req TenantRequest) (string, error) {
	if req.Tenant != "" {
		dir := filepath.Join(l.root, req.Tenant)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
		l.logger.Warn("テナントのディレクトリが見つかりません", "dir", dir)
	}

	if req.Bucket == "" {
		return "", fmt.Errorf("%s (remote bucket not defined): %w", req.Describe(), ErrTenantNotFound)
	}
	if l.fetcher == nil {
		return "", fmt.Errorf("remote fetcher is not configured: %w", ErrTenantNotFound)
	}

	dir := filepath.Join(l.root, TempTenantDir)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clean %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	l.logger.Info("リモートバケットからテナントを取得します", "bucket", req.Bucket, "dir", dir)
	n, err := l.fetcher.FetchFixtures(ctx, req.Bucket, dir)
	if err != nil {
		return "", fmt.Errorf("リモートテナントの取得に失敗: %w", err)
	}
	l.logger.Info("リモートバケットからテナントを取得しました", "bucket", req.Bucket, "files", n)
	return dir, nil
}

// Plan はテナントのフィクスチャを検証し、読み込み順を決める
// 不正なファイルが1件でもあれば ErrInvalidFixtures を返す
func (l *TenantLoader) Plan(dir string) (*LoadReport, error) {
	files, err := loadorder.Resolve(dir, loadorder.JSONFiles)
	if err != nil {
		return nil, fmt.Errorf("フィクスチャ一覧の取得に失敗: %w", err)
	}
	report := &LoadReport{Dir: dir}
	if len(files) == 0 {
		return report, fmt.Errorf("%s: %w", dir, ErrNoFixtures)
	}

	for _, file := range files {
		v := ValidateFixtureFile(filepath.Join(dir, file))
		switch {
		case !v.Valid:
			report.Invalid = append(report.Invalid, v)
		case v.Warning:
			report.Warnings = append(report.Warnings, v)
			report.Planned = append(report.Planned, file)
		default:
			report.Planned = append(report.Planned, file)
		}
	}

	for _, w := range report.Warnings {
		l.logger.Warn("データが不足している可能性があります", "file", w.File, "message", w.Message)
	}
	if len(report.Invalid) > 0 {
		for _, v := range report.Invalid {
			l.logger.Error("不正なフィクスチャファイル", "file", v.File, "message", v.Message)
		}
		return report, fmt.Errorf("%d files: %w", len(report.Invalid), ErrInvalidFixtures)
	}
	return report, nil
}

// Load はテナントのフィクスチャを検証して読み込む
func (l *TenantLoader) Load(ctx context.Context, req TenantRequest) (*LoadReport, error) {
	l.logger.Info("ATOワークフローを読み込みます", "target", req.Describe())

	dir, err := l.Locate(ctx, req)
	if err != nil {
		return nil, err
	}

	plan, err := l.Plan(dir)
	if err != nil {
		return plan, err
	}

	report, err := l.runner.LoadFiles(ctx, dir, plan.Planned)
	if report != nil {
		report.Warnings = plan.Warnings
	}
	if err != nil {
		return report, err
	}

	l.logger.Info("ATOワークフローの読み込みが完了しました",
		"target", req.Describe(),
		"files", len(report.Loaded),
		"records", report.Records(),
	)
	return report, nil
}

// Export はテナントのフィクスチャをリモートバケットへアップロードする
func (l *TenantLoader) Export(ctx context.Context, tenant, bucket, prefix string) (int, error) {
	if l.store == nil {
		return 0, errors.New("remote store is not configured")
	}
	if tenant == "" || bucket == "" {
		return 0, errors.New("tenant and bucket are required")
	}

	dir := filepath.Join(l.root, tenant)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return 0, fmt.Errorf("%s: %w", dir, ErrTenantNotFound)
	}

	n, err := l.store.PutFixtures(ctx, bucket, prefix, dir)
	if err != nil {
		return n, fmt.Errorf("テナントのアップロードに失敗: %w", err)
	}
	l.logger.Info("テナントをアップロードしました", "tenant", tenant, "bucket", bucket, "files", n)
	return n, nil
}

// ListTenants は root 配下のテナントを名前順で返す
func ListTenants(root string) ([]TenantInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read tenants dir %s: %w", root, err)
	}

	var tenants []TenantInfo
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("failed to list fixtures in %s: %w", dir, err)
		}
		_, statErr := os.Stat(filepath.Join(dir, WorkflowGuideFileName))
		tenants = append(tenants, TenantInfo{
			Name:     entry.Name(),
			Fixtures: len(matches),
			HasGuide: statErr == nil,
		})
	}

	sort.Slice(tenants, func(i, j int) bool { return tenants[i].Name < tenants[j].Name })
	return tenants, nil
}
