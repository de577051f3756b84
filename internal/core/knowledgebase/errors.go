package knowledgebase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCatalogueNotFound はカタログのディレクトリが存在しない場合のエラー
	ErrCatalogueNotFound = errors.New("catalogue directory not found")

	// ErrNoURLs は登録対象のURLが1件も無い場合のエラー
	ErrNoURLs = errors.New("no URLs found to load")

	// ErrBudgetExceeded はURLの合計文字数が上限を超えた場合のエラー
	ErrBudgetExceeded = errors.New("URL character budget exceeded")

	// ErrMalformedURLDocument はURL定義ファイルの形式が不正な場合のエラー
	ErrMalformedURLDocument = errors.New("malformed URL document")

	// ErrNotWebCrawler はデータソースがWebクローラ型でない場合のエラー
	ErrNotWebCrawler = errors.New("data source is not a web crawler")

	// ErrIngestionFailed はインジェストジョブが FAILED で終了した場合のエラー
	ErrIngestionFailed = errors.New("ingestion job failed")

	// ErrIngestionTimeout は待機時間内に終端状態にならなかった場合のエラー
	// リモートではまだ処理が続いている可能性がある
	ErrIngestionTimeout = errors.New("timed out waiting for ingestion job")
)

// JobFailedError は FAILED で終了したジョブの失敗理由を保持する
type JobFailedError struct {
	JobID   string
	Reasons []string
}

func (e *JobFailedError) Error() string {
	if len(e.Reasons) == 0 {
		return fmt.Sprintf("ingestion job %s failed", e.JobID)
	}
	return fmt.Sprintf("ingestion job %s failed: %s", e.JobID, strings.Join(e.Reasons, "; "))
}

// Is は errors.Is(err, ErrIngestionFailed) を満たすようにする
func (e *JobFailedError) Is(target error) bool {
	return target == ErrIngestionFailed
}

// BudgetError はURL文字数の超過量を保持する
type BudgetError struct {
	Total int
	Limit int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("URL character limit exceeded: %d > %d", e.Total, e.Limit)
}

// Is は errors.Is(err, ErrBudgetExceeded) を満たすようにする
func (e *BudgetError) Is(target error) bool {
	return target == ErrBudgetExceeded
}
