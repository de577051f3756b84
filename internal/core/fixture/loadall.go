package fixture

import (
	"context"
	"fmt"
	"strings"

	"github.com/jinford/ato-loader/internal/core/knowledgebase"
	"github.com/jinford/ato-loader/pkg/loadorder"
)

// DefaultSkipList は共通フィクスチャのうちマイグレーションで投入済みのため読み込まないもの
var DefaultSkipList = []string{
	"blueprint",
	"colors",
	"permissions",
	"ato_status_choices",
	"months",
	"risk_level_choices",
	"controlset_types",
	"audittrail",
	"widgets",
	"support_case_request_types",
}

// SkipMatcher は拡張子の前までのファイル名が skip に含まれる JSON ファイルを除外する MatchFunc を返す
func SkipMatcher(skip []string) loadorder.MatchFunc {
	excluded := make(map[string]bool, len(skip))
	for _, s := range skip {
		excluded[s] = true
	}
	return func(name string) bool {
		if !loadorder.JSONFiles(name) {
			return false
		}
		stem, _, _ := strings.Cut(name, ".")
		return !excluded[stem]
	}
}

// LoadAll は fixtures ディレクトリ直下の共通フィクスチャを読み込む
// 1件でも失敗した時点で中断する
func LoadAll(ctx context.Context, dir string, loader BulkLoader, audit AuditObserver, opts ...RunnerOption) (*LoadReport, error) {
	files, err := loadorder.Resolve(dir, SkipMatcher(DefaultSkipList))
	if err != nil {
		return nil, fmt.Errorf("フィクスチャ一覧の取得に失敗: %w", err)
	}
	if len(files) == 0 {
		return &LoadReport{Dir: dir}, fmt.Errorf("%s: %w", dir, ErrNoFixtures)
	}

	runner := NewRunner(loader, audit, append(opts, WithFailFast())...)
	return runner.LoadFiles(ctx, dir, files)
}

// DirectoryLoader はカタログ付属の django_*.json を読み込む knowledgebase.FixtureLoader の実装
type DirectoryLoader struct {
	runner *Runner
}

// コンパイル時の型チェック
var _ knowledgebase.FixtureLoader = (*DirectoryLoader)(nil)

// NewDirectoryLoader は新しい DirectoryLoader を作成する
func NewDirectoryLoader(runner *Runner) *DirectoryLoader {
	return &DirectoryLoader{runner: runner}
}

// LoadDirectory は dir 内の django_*.json を読み込み、レコード数を返す
func (l *DirectoryLoader) LoadDirectory(ctx context.Context, dir string) (int, error) {
	files, err := loadorder.ResolveShared(dir, knowledgebase.IsRelationalFixture)
	if err != nil {
		return 0, fmt.Errorf("リレーショナルフィクスチャ一覧の取得に失敗: %w", err)
	}
	report, err := l.runner.LoadFiles(ctx, dir, files)
	if report == nil {
		return 0, err
	}
	return report.Records(), err
}
