package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/ato-loader/pkg/lock"
)

// TransactionProvider は pgx のトランザクションをコールバックの内側に閉じ込める
// https://threedots.tech/post/database-transactions-in-go/
type TransactionProvider struct {
	pool *pgxpool.Pool
}

// NewTransactionProvider は新しいTransactionProviderを作成します
func NewTransactionProvider(pool *pgxpool.Pool) *TransactionProvider {
	return &TransactionProvider{pool: pool}
}

// Adapter は1つのトランザクション内で使うハンドル
// フィクスチャのテーブルは実行時に決まるため、リポジトリではなく Tx をそのまま渡す
type Adapter struct {
	Tx    pgx.Tx
	Locks *lock.Manager
}

// Transact はトランザクションを開始して fn を実行する
// fn がエラーを返すかパニックした場合はロールバックし、それ以外はコミットする
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (result T, err error) {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// ctx がキャンセル済みでもロールバックは送る
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) && err != nil {
			err = fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
	}()

	out, err := fn(&Adapter{Tx: tx, Locks: lock.NewManager(tx)})
	if err != nil {
		return result, err
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true

	return out, nil
}
