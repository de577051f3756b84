package fixture

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// FileOutcome はフィクスチャファイル1件の読み込み結果
type FileOutcome struct {
	File     string
	Category string
	Records  int
	Err      error
	Hint     string
}

// LoadReport はフィクスチャ読み込みの集計結果
type LoadReport struct {
	Dir      string
	Planned  []string
	Loaded   []FileOutcome
	Failed   []FileOutcome
	Warnings []FileValidation
	Invalid  []FileValidation
}

// Records は読み込んだレコードの合計を返す
func (r *LoadReport) Records() int {
	n := 0
	for _, o := range r.Loaded {
		n += o.Records
	}
	return n
}

// Succeeded は1件以上読み込み、失敗が無いかどうかを返す
func (r *LoadReport) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.Invalid) == 0 && len(r.Loaded) > 0
}

// Hint は読み込みエラーのメッセージから対処方法を推測する
func Hint(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint"):
		return "Duplicate primary keys or unique fields"
	case strings.Contains(msg, "foreign key") || strings.Contains(msg, "constraint"):
		return "Foreign key reference doesn't exist"
	case strings.Contains(msg, "does not exist"):
		return "Referenced record not found - check loading order"
	case strings.Contains(msg, "json"):
		return "Invalid JSON syntax"
	case strings.Contains(msg, "required") || strings.Contains(msg, "null"):
		return "Required field is empty or null"
	default:
		return "Check ATO_WORKFLOW_GUIDE.md for help"
	}
}

// Runner は監査証跡を止めた状態でフィクスチャファイルを順番に読み込む
type Runner struct {
	loader   BulkLoader
	audit    AuditObserver
	failFast bool
	logger   *slog.Logger
}

type runnerOptions struct {
	failFast bool
	logger   *slog.Logger
}

// RunnerOption は Runner のオプション設定
type RunnerOption func(*runnerOptions)

// WithFailFast は最初の失敗で残りのファイルを読み込まずに終了する
func WithFailFast() RunnerOption {
	return func(o *runnerOptions) {
		o.failFast = true
	}
}

// WithRunnerLogger は Runner にロガーを設定する
func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}

// NewRunner は新しい Runner を作成する。audit は nil でもよい
func NewRunner(loader BulkLoader, audit AuditObserver, opts ...RunnerOption) *Runner {
	options := runnerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return &Runner{
		loader:   loader,
		audit:    audit,
		failFast: options.failFast,
		logger:   options.logger,
	}
}

// LoadFiles は dir 内の files を指定順に読み込む
// 1件の失敗では中断せず、結果を LoadReport に記録する（WithFailFast を除く）
func (r *Runner) LoadFiles(ctx context.Context, dir string, files []string) (*LoadReport, error) {
	report := &LoadReport{Dir: dir, Planned: files}
	if len(files) == 0 {
		return report, nil
	}

	r.logger.Info("フィクスチャを読み込みます", "dir", dir, "files", len(files))

	err := WithAuditSuspended(ctx, r.audit, func(ctx context.Context) error {
		for _, file := range files {
			if err := ctx.Err(); err != nil {
				return err
			}

			outcome := FileOutcome{File: file, Category: Category(file)}
			n, err := r.loader.LoadFile(ctx, filepath.Join(dir, file))
			if err != nil {
				outcome.Err = err
				outcome.Hint = Hint(err)
				report.Failed = append(report.Failed, outcome)
				r.logger.Error("フィクスチャの読み込みに失敗しました",
					"file", file,
					"error", err,
					"hint", outcome.Hint,
				)
				if r.failFast {
					return fmt.Errorf("%s: %w", file, err)
				}
				continue
			}

			outcome.Records = n
			report.Loaded = append(report.Loaded, outcome)
			r.logger.Info("フィクスチャを読み込みました", "file", file, "records", n, "category", outcome.Category)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if len(report.Failed) > 0 {
		return report, fmt.Errorf("%d/%d files: %w", len(report.Failed), len(files), ErrLoadFailed)
	}
	return report, nil
}
