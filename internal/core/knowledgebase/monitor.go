package knowledgebase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPollInterval はジョブ状態の確認間隔
	DefaultPollInterval = 30 * time.Second

	// DefaultIngestionTimeout はジョブ完了を待つ最大時間
	DefaultIngestionTimeout = 20 * time.Minute
)

// JobMonitor はインジェストジョブを開始し、終端状態になるまでポーリングする
type JobMonitor struct {
	client       IngestionClient
	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	newToken     func() string
	logger       *slog.Logger
}

type jobMonitorOptions struct {
	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
	newToken     func() string
	logger       *slog.Logger
}

// JobMonitorOption は JobMonitor のオプション設定
type JobMonitorOption func(*jobMonitorOptions)

// WithPollInterval はポーリング間隔を設定する
func WithPollInterval(d time.Duration) JobMonitorOption {
	return func(o *jobMonitorOptions) {
		o.pollInterval = d
	}
}

// WithIngestionTimeout は待機の上限時間を設定する
func WithIngestionTimeout(d time.Duration) JobMonitorOption {
	return func(o *jobMonitorOptions) {
		o.timeout = d
	}
}

// WithClock は現在時刻と待機の実装を差し替える（テスト用）
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) JobMonitorOption {
	return func(o *jobMonitorOptions) {
		o.now = now
		o.sleep = sleep
	}
}

// WithTokenGenerator は冪等性トークンの生成方法を差し替える
func WithTokenGenerator(fn func() string) JobMonitorOption {
	return func(o *jobMonitorOptions) {
		o.newToken = fn
	}
}

// WithMonitorLogger は JobMonitor にロガーを設定する
func WithMonitorLogger(logger *slog.Logger) JobMonitorOption {
	return func(o *jobMonitorOptions) {
		o.logger = logger
	}
}

// NewJobMonitor は新しい JobMonitor を作成する
func NewJobMonitor(client IngestionClient, opts ...JobMonitorOption) *JobMonitor {
	options := jobMonitorOptions{
		pollInterval: DefaultPollInterval,
		timeout:      DefaultIngestionTimeout,
		now:          time.Now,
		sleep:        Sleep,
		newToken:     uuid.NewString,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.pollInterval <= 0 {
		options.pollInterval = DefaultPollInterval
	}
	if options.timeout <= 0 {
		options.timeout = DefaultIngestionTimeout
	}

	return &JobMonitor{
		client:       client,
		pollInterval: options.pollInterval,
		timeout:      options.timeout,
		now:          options.now,
		sleep:        options.sleep,
		newToken:     options.newToken,
		logger:       options.logger,
	}
}

// Sleep は ctx がキャンセルされるまで最大 d だけ待機する
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Start はインジェストジョブを開始してジョブIDを返す
// 開始に失敗した場合は致命的エラーとして返す
func (m *JobMonitor) Start(ctx context.Context, dataSourceID, catalogue string) (string, error) {
	m.logger.Info("インジェストジョブを開始します（全URLのクロールとベクトル化を行います）",
		"dataSourceID", dataSourceID,
		"catalogue", catalogue,
	)

	description := fmt.Sprintf("AI Knowledge Base ingestion - %s catalogue", catalogue)
	job, err := m.client.StartIngestionJob(ctx, dataSourceID, description, m.newToken())
	if err != nil {
		return "", fmt.Errorf("インジェストジョブの開始に失敗: %w", err)
	}

	m.logger.Info("インジェストジョブを開始しました", "jobID", job.ID, "status", job.Status)
	return job.ID, nil
}

// Wait はジョブが終端状態になるまでポーリングする
//
//   - COMPLETE: nil
//   - FAILED: *JobFailedError（errors.Is(err, ErrIngestionFailed)）
//   - 上限時間内に終端状態にならない: ErrIngestionTimeout
//
// それ以外の状態や状態取得のエラーは一時的なものとして扱い、ポーリングを続ける
func (m *JobMonitor) Wait(ctx context.Context, dataSourceID, jobID string) error {
	m.logger.Info("インジェストジョブを監視します",
		"jobID", jobID,
		"pollInterval", m.pollInterval,
		"timeout", m.timeout,
	)

	start := m.now()
	for m.now().Sub(start) < m.timeout {
		job, err := m.client.GetIngestionJob(ctx, dataSourceID, jobID)
		if err != nil {
			m.logger.Warn("ジョブ状態の取得に失敗しました", "jobID", jobID, "error", err)
		} else {
			switch job.Status {
			case JobStatusComplete:
				m.logger.Info("インジェストが完了しました", "jobID", jobID)
				return nil
			case JobStatusFailed:
				m.logger.Error("インジェストが失敗しました", "jobID", jobID, "reasons", job.FailureReasons)
				return &JobFailedError{JobID: jobID, Reasons: job.FailureReasons}
			default:
				m.logger.Info("インジェスト状態",
					"jobID", jobID,
					"status", job.Status,
					"elapsed", m.now().Sub(start).Truncate(time.Second),
				)
			}
		}

		if err := m.sleep(ctx, m.pollInterval); err != nil {
			return fmt.Errorf("ジョブ監視が中断されました: %w", err)
		}
	}

	m.logger.Warn("インジェストの待機がタイムアウトしました（リモートでは処理が継続している可能性があります）",
		"jobID", jobID,
		"timeout", m.timeout,
	)
	return fmt.Errorf("job %s after %s: %w", jobID, m.timeout, ErrIngestionTimeout)
}

// Run はジョブを開始して完了まで待機する
func (m *JobMonitor) Run(ctx context.Context, dataSourceID, catalogue string) (string, error) {
	jobID, err := m.Start(ctx, dataSourceID, catalogue)
	if err != nil {
		return "", err
	}
	return jobID, m.Wait(ctx, dataSourceID, jobID)
}
