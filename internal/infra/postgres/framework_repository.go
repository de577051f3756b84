package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/samber/mo"

	"github.com/jinford/ato-loader/internal/core/knowledgebase"
	"github.com/jinford/ato-loader/internal/platform/database"
	"github.com/jinford/ato-loader/pkg/lock"
)

// FrameworkTable はコンプライアンスフレームワークを保持するテーブル
const FrameworkTable = "ai_chat_complianceframework"

// FrameworkRepository はコンプライアンスフレームワークのメタデータを永続化する
type FrameworkRepository struct {
	tx     *database.TransactionProvider
	logger *slog.Logger
}

// コンパイル時の型チェック
var _ knowledgebase.FrameworkRepository = (*FrameworkRepository)(nil)

// NewFrameworkRepository は FrameworkRepository を作成する
func NewFrameworkRepository(tx *database.TransactionProvider, logger *slog.Logger) *FrameworkRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameworkRepository{tx: tx, logger: logger}
}

// GetOrCreate は名前でフレームワークを検索し、無ければ作成する
// 同じ名前の同時作成はアドバイザリロックで直列化する
func (r *FrameworkRepository) GetOrCreate(ctx context.Context, meta knowledgebase.FrameworkMetadata) (bool, error) {
	if meta.Name == "" {
		return false, errors.New("framework name is empty")
	}

	return database.Transact(ctx, r.tx, func(a *database.Adapter) (bool, error) {
		if err := a.Locks.Acquire(ctx, lock.GenerateLockID("compliance_framework", meta.Name)); err != nil {
			return false, err
		}

		existing, err := findFrameworkID(ctx, a.Tx, meta.Name)
		if err != nil {
			return false, err
		}
		if id, ok := existing.Get(); ok {
			r.logger.Debug("フレームワークは登録済みです", "name", meta.Name, "id", id)
			return false, nil
		}

		cols, err := tableColumns(ctx, a.Tx, FrameworkTable)
		if err != nil {
			return false, err
		}
		if len(cols) == 0 {
			return false, fmt.Errorf("relation %q does not exist", FrameworkTable)
		}

		sql := buildFrameworkInsert(cols)
		if _, err := a.Tx.Exec(ctx, sql, meta.Name, meta.Description, meta.Version); err != nil {
			return false, fmt.Errorf("failed to insert framework %s: %w", meta.Name, err)
		}
		return true, nil
	})
}

func findFrameworkID(ctx context.Context, tx pgx.Tx, name string) (mo.Option[int64], error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT "id" FROM "`+FrameworkTable+`" WHERE "name" = $1 LIMIT 1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return mo.None[int64](), nil
	}
	if err != nil {
		return mo.None[int64](), fmt.Errorf("failed to find framework %s: %w", name, err)
	}
	return mo.Some(id), nil
}

// buildFrameworkInsert はテーブルにある監査用カラムも埋める INSERT 文を組み立てる
func buildFrameworkInsert(cols columnSet) string {
	columns := []string{`"name"`, `"description"`, `"version"`}
	values := []string{"$1", "$2", "$3"}

	for _, c := range []string{"created_at", "updated_at"} {
		if cols.has(c) {
			columns = append(columns, pgx.Identifier{c}.Sanitize())
			values = append(values, "now()")
		}
	}
	if cols.has("is_active") {
		columns = append(columns, `"is_active"`)
		values = append(values, "true")
	}

	return fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`,
		FrameworkTable,
		strings.Join(columns, ", "),
		strings.Join(values, ", "),
	)
}
