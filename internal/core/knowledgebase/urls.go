package knowledgebase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jinford/ato-loader/pkg/loadorder"
)

// maxReportedIssues はログに個別出力する問題の最大件数
const maxReportedIssues = 10

// IssueKind はURL検証で見つかった問題の種類
type IssueKind string

const (
	IssueEmpty         IssueKind = "empty"
	IssueInvalidFormat IssueKind = "invalid_format"
	IssueTooLong       IssueKind = "too_long"
	IssueSuspicious    IssueKind = "suspicious"
)

// Drops は問題のあるURLが除外されるかどうかを返す
// 長すぎるURLと開発環境らしいURLは警告のみで残す
func (k IssueKind) Drops() bool {
	return k == IssueEmpty || k == IssueInvalidFormat
}

// URLIssue はURL検証で見つかった1件の問題
type URLIssue struct {
	Kind     IssueKind
	Position int // 入力中の位置（1始まり）
	URL      string
}

func (i URLIssue) String() string {
	switch i.Kind {
	case IssueEmpty:
		return fmt.Sprintf("Empty URL at position %d", i.Position)
	case IssueInvalidFormat:
		return fmt.Sprintf("Invalid URL format: %s", truncate(i.URL, 50))
	case IssueTooLong:
		return fmt.Sprintf("Very long URL (%d chars): %s", len(i.URL), truncate(i.URL, 50))
	case IssueSuspicious:
		return fmt.Sprintf("Suspicious URL (dev/test/local): %s", truncate(i.URL, 50))
	default:
		return fmt.Sprintf("%s: %s", i.Kind, truncate(i.URL, 50))
	}
}

// suspiciousHostPatterns は本番以外の環境を示すホスト名のパターン
var suspiciousHostPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)localhost`),
	regexp.MustCompile(`127\.0\.0\.1`),
	regexp.MustCompile(`(?i)\.local`),
	regexp.MustCompile(`(?i)test\.`),
	regexp.MustCompile(`(?i)staging\.`),
	regexp.MustCompile(`(?i)dev\.`),
}

// ValidateURLs は前後の空白を取り除き、空文字やスキーム/ホストの無いURLを除外する
// 長すぎるURLや開発環境らしいURLは問題として報告するが結果には残す
func ValidateURLs(urls []string) ([]string, []URLIssue) {
	valid := make([]string, 0, len(urls))
	var issues []URLIssue

	for i, raw := range urls {
		clean := strings.TrimSpace(raw)
		position := i + 1

		if clean == "" {
			issues = append(issues, URLIssue{Kind: IssueEmpty, Position: position})
			continue
		}

		parsed, err := url.Parse(clean)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			issues = append(issues, URLIssue{Kind: IssueInvalidFormat, Position: position, URL: clean})
			continue
		}

		if len(clean) > MaxURLLength {
			issues = append(issues, URLIssue{Kind: IssueTooLong, Position: position, URL: clean})
		}

		if isSuspiciousHost(parsed.Host) {
			issues = append(issues, URLIssue{Kind: IssueSuspicious, Position: position, URL: clean})
		}

		valid = append(valid, clean)
	}

	return valid, issues
}

func isSuspiciousHost(host string) bool {
	for _, pattern := range suspiciousHostPatterns {
		if pattern.MatchString(host) {
			return true
		}
	}
	return false
}

// DeduplicateURLs は最初の出現を残して重複を取り除き、除去件数を返す
func DeduplicateURLs(urls []string) ([]string, int) {
	seen := make(map[string]struct{}, len(urls))
	deduplicated := make([]string, 0, len(urls))

	for _, u := range urls {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		deduplicated = append(deduplicated, u)
	}

	return deduplicated, len(urls) - len(deduplicated)
}

// TotalChars はURLの文字数の合計（区切り文字なし）を返す
func TotalChars(urls []string) int {
	total := 0
	for _, u := range urls {
		total += len(u)
	}
	return total
}

// ReconcileResult はURL集合の調整結果
type ReconcileResult struct {
	Catalogue         string
	URLs              []string
	TotalChars        int
	InputCount        int
	BaseCount         int
	CatalogueCount    int
	DuplicatesRemoved int
	Issues            []URLIssue
}

// AverageLength はURLの平均文字数を返す
func (r *ReconcileResult) AverageLength() int {
	if len(r.URLs) == 0 {
		return 0
	}
	return r.TotalChars / len(r.URLs)
}

// DroppedCount は検証で除外されたURLの件数を返す
func (r *ReconcileResult) DroppedCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind.Drops() {
			n++
		}
	}
	return n
}

// Reconciler はカタログごとのシードURL集合を組み立てる
type Reconciler struct {
	root   string
	logger *slog.Logger
}

type reconcilerOptions struct {
	logger *slog.Logger
}

// ReconcilerOption は Reconciler のオプション設定
type ReconcilerOption func(*reconcilerOptions)

// WithReconcilerLogger は Reconciler にロガーを設定する
func WithReconcilerLogger(logger *slog.Logger) ReconcilerOption {
	return func(o *reconcilerOptions) {
		o.logger = logger
	}
}

// NewReconciler は ai_kb ディレクトリをルートとする Reconciler を作成する
func NewReconciler(root string, opts ...ReconcilerOption) *Reconciler {
	options := reconcilerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	return &Reconciler{root: root, logger: options.logger}
}

// Root は ai_kb ディレクトリのパスを返す
func (r *Reconciler) Root() string {
	return r.root
}

// CatalogueDir はカタログのディレクトリパスを返す
func (r *Reconciler) CatalogueDir(catalogue string) string {
	return filepath.Join(r.root, catalogue)
}

// BaseDir は共通ナレッジのディレクトリパスを返す
func (r *Reconciler) BaseDir() string {
	return r.CatalogueDir(BaseCatalogue)
}

// IncludesBase はカタログの読み込みに共通ナレッジを含めるかを返す
func (r *Reconciler) IncludesBase(catalogue string) bool {
	return catalogue != BaseCatalogue && dirExists(r.BaseDir())
}

// Reconcile は共通ナレッジ→カタログ固有の順にURLを集め、検証・重複除去・文字数チェックを行う
// 上限を超えた場合も集計済みの結果と *BudgetError を返す
func (r *Reconciler) Reconcile(catalogue string) (*ReconcileResult, error) {
	catalogueDir := r.CatalogueDir(catalogue)
	if !dirExists(catalogueDir) {
		return nil, fmt.Errorf("%s: %w", catalogueDir, ErrCatalogueNotFound)
	}

	result := &ReconcileResult{Catalogue: catalogue}
	var all []string

	if r.IncludesBase(catalogue) {
		r.logger.Info("共通ナレッジを読み込みます", "dir", r.BaseDir())
		baseURLs, err := r.LoadURLFiles(r.BaseDir())
		if err != nil {
			return nil, fmt.Errorf("共通ナレッジの読み込みに失敗: %w", err)
		}
		result.BaseCount = len(baseURLs)
		all = append(all, baseURLs...)
	}

	catalogueURLs, err := r.LoadURLFiles(catalogueDir)
	if err != nil {
		return nil, fmt.Errorf("カタログ固有URLの読み込みに失敗: %w", err)
	}
	result.CatalogueCount = len(catalogueURLs)
	all = append(all, catalogueURLs...)
	result.InputCount = len(all)

	r.logger.Info("URLを収集しました",
		"catalogue", catalogue,
		"baseURLs", result.BaseCount,
		"catalogueURLs", result.CatalogueCount,
	)

	if len(all) == 0 {
		return result, ErrNoURLs
	}

	validated, issues := ValidateURLs(all)
	result.Issues = issues
	r.reportIssues(issues, len(validated), len(all))

	final, removed := DeduplicateURLs(validated)
	result.URLs = final
	result.DuplicatesRemoved = removed
	if removed > 0 {
		r.logger.Info("重複URLを除去しました", "removed", removed)
	}

	result.TotalChars = TotalChars(final)
	r.logger.Info("URL集計結果",
		"totalURLs", len(final),
		"totalChars", result.TotalChars,
		"averageLength", result.AverageLength(),
	)

	if len(final) == 0 {
		return result, ErrNoURLs
	}

	if result.TotalChars > MaxTotalURLChars {
		r.logger.Warn("URLの合計文字数が上限を超えています。JSONファイルのURLを減らしてください",
			"totalChars", result.TotalChars,
			"limit", MaxTotalURLChars,
		)
		return result, &BudgetError{Total: result.TotalChars, Limit: MaxTotalURLChars}
	}

	return result, nil
}

// CheckCreationSize はデータソース作成時のURL数を確認し、多すぎる場合は警告する
func (r *Reconciler) CheckCreationSize(result *ReconcileResult) bool {
	if len(result.URLs) > CreationURLCountWarning {
		r.logger.Warn("URL数が非常に多いため取り込みに時間がかかる可能性があります",
			"count", len(result.URLs),
			"threshold", CreationURLCountWarning,
		)
		return false
	}
	return true
}

// LoadURLFiles はディレクトリ内のURL定義ファイルを読み込み順に読み、URLを連結して返す
// ディレクトリが存在しない場合は空のリストを返す
func (r *Reconciler) LoadURLFiles(dir string) ([]string, error) {
	if !dirExists(dir) {
		r.logger.Warn("ディレクトリが見つかりません", "dir", dir)
		return nil, nil
	}

	files, err := loadorder.ResolveShared(dir, IsURLDocument)
	if err != nil {
		return nil, fmt.Errorf("読み込み順序の決定に失敗: %w", err)
	}

	r.logger.Info("URLファイルを読み込みます", "dir", filepath.Base(dir), "files", files)

	var all []string
	for _, name := range files {
		urls, found, err := readURLDocument(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if !found {
			r.logger.Warn("urls フィールドがありません", "file", name)
			continue
		}
		r.logger.Debug("URLを追加しました", "file", name, "count", len(urls))
		all = append(all, urls...)
	}

	return all, nil
}

// IsURLDocument はURL定義ファイルとして扱うファイル名かどうかを返す
func IsURLDocument(name string) bool {
	return loadorder.JSONFiles(name) &&
		name != CatalogueInfoFileName &&
		!strings.HasPrefix(name, RelationalFixturePrefix)
}

// IsRelationalFixture はカタログ付属のリレーショナルフィクスチャかどうかを返す
func IsRelationalFixture(name string) bool {
	return loadorder.JSONFiles(name) && strings.HasPrefix(name, RelationalFixturePrefix)
}

// readURLDocument は {"urls": [...]} 形式のファイルを読む
// オブジェクトでない、または urls キーが無い場合は found=false を返す
func readURLDocument(path string) ([]string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read file: %w", err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedURLDocument, err)
	}

	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	value, ok := doc["urls"]
	if !ok {
		return nil, false, nil
	}

	list, ok := value.([]any)
	if !ok {
		return nil, false, fmt.Errorf("%w: 'urls' field is not a list", ErrMalformedURLDocument)
	}

	urls := make([]string, 0, len(list))
	for i, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false, fmt.Errorf("%w: urls[%d] is not a string", ErrMalformedURLDocument, i)
		}
		urls = append(urls, s)
	}
	return urls, true, nil
}

func (r *Reconciler) reportIssues(issues []URLIssue, validCount, inputCount int) {
	if len(issues) == 0 {
		r.logger.Info("全てのURLが検証を通過しました", "count", validCount)
		return
	}

	r.logger.Warn("URLの品質に問題があります", "issues", len(issues))
	for i, issue := range issues {
		if i >= maxReportedIssues {
			r.logger.Warn("残りの問題は省略します", "remaining", len(issues)-maxReportedIssues)
			break
		}
		r.logger.Warn(issue.String(), "kind", issue.Kind, "position", issue.Position)
	}
	r.logger.Info("有効なURL数", "valid", validCount, "total", inputCount)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// truncate は先頭 n 文字（rune 単位）に切り詰める
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
