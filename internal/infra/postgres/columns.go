package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// querier は pgx.Tx と pgxpool.Pool の共通部分
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// columnSet はテーブルのカラム名とデータ型の対応
type columnSet map[string]string

func (c columnSet) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columnSet) isJSON(name string) bool {
	t := c[name]
	return t == "json" || t == "jsonb"
}

func (c columnSet) isInteger(name string) bool {
	switch c[name] {
	case "smallint", "integer", "bigint":
		return true
	}
	return false
}

const selectColumnsSQL = `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1`

// tableColumns は現在のスキーマにあるテーブルのカラムを返す
// テーブルが存在しない場合は空の columnSet を返す
func tableColumns(ctx context.Context, q querier, table string) (columnSet, error) {
	rows, err := q.Query(ctx, selectColumnsSQL, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := columnSet{}
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[name] = dataType
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return cols, nil
}

// columnCache はテーブルごとのカラム情報をプロセス内で保持する
type columnCache struct {
	mu     sync.Mutex
	tables map[string]columnSet
}

func newColumnCache() *columnCache {
	return &columnCache{tables: map[string]columnSet{}}
}

func (c *columnCache) lookup(ctx context.Context, q querier, table string) (columnSet, error) {
	c.mu.Lock()
	cols, ok := c.tables[table]
	c.mu.Unlock()
	if ok {
		return cols, nil
	}

	cols, err := tableColumns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	// 存在しないテーブルはマイグレーション後に現れることがあるため保持しない
	if len(cols) == 0 {
		return cols, nil
	}

	c.mu.Lock()
	c.tables[table] = cols
	c.mu.Unlock()
	return cols, nil
}

// reset はスキーマ変更後にキャッシュを破棄する
func (c *columnCache) reset() {
	c.mu.Lock()
	c.tables = map[string]columnSet{}
	c.mu.Unlock()
}
