package fixture

import (
	"context"
	"errors"
	"fmt"
)

// WithAuditSuspended は監査証跡を止めた状態で fn を実行する
// fn がエラーやパニックで終了した場合でも必ず再開する
func WithAuditSuspended(ctx context.Context, observer AuditObserver, fn func(ctx context.Context) error) (err error) {
	if observer == nil {
		return fn(ctx)
	}

	if err := observer.Suspend(ctx); err != nil {
		return fmt.Errorf("監査証跡の停止に失敗: %w", err)
	}

	defer func() {
		// キャンセル済みの ctx でも再開できるようにする
		if resumeErr := observer.Resume(context.WithoutCancel(ctx)); resumeErr != nil {
			err = errors.Join(err, fmt.Errorf("監査証跡の再開に失敗: %w", resumeErr))
		}
	}()

	return fn(ctx)
}
