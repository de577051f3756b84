package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"

	"github.com/jinford/ato-loader/internal/core/fixture"
	"github.com/jinford/ato-loader/internal/platform/database"
)

// ErrUnknownField はフィクスチャのフィールドに対応するカラムが無い場合のエラー
var ErrUnknownField = errors.New("unknown field")

// AuditSuspendedSetting は監査証跡の停止中に 'on' になるトランザクションローカルの設定
// 監査用トリガーは current_setting('ato.audit_suspended', true) = 'on' の場合に記録しない。
// 外部キーなど他のトリガーには影響しない
const AuditSuspendedSetting = "ato.audit_suspended"

// FixtureLoader は loaddata 形式のフィクスチャを PostgreSQL へ書き込む
// ファイル単位で1トランザクションとし、途中で失敗したファイルは何も残さない
type FixtureLoader struct {
	tx        *database.TransactionProvider
	columns   *columnCache
	suspended atomic.Bool
	logger    *slog.Logger
}

// コンパイル時の型チェック
var (
	_ fixture.BulkLoader    = (*FixtureLoader)(nil)
	_ fixture.AuditObserver = (*FixtureLoader)(nil)
)

// FixtureLoaderOption は FixtureLoader のオプション設定
type FixtureLoaderOption func(*FixtureLoader)

// WithFixtureLoaderLogger はロガーを設定する
func WithFixtureLoaderLogger(logger *slog.Logger) FixtureLoaderOption {
	return func(l *FixtureLoader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewFixtureLoader は FixtureLoader を作成する
func NewFixtureLoader(tx *database.TransactionProvider, opts ...FixtureLoaderOption) *FixtureLoader {
	l := &FixtureLoader{
		tx:      tx,
		columns: newColumnCache(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Suspend は以降のファイル読み込みで監査証跡を記録させない
// 各トランザクションで AuditSuspendedSetting を 'on' にする
func (l *FixtureLoader) Suspend(ctx context.Context) error {
	l.suspended.Store(true)
	l.logger.Debug("監査証跡を停止しました")
	return nil
}

// Resume は監査証跡の記録を再開する
func (l *FixtureLoader) Resume(ctx context.Context) error {
	l.suspended.Store(false)
	l.logger.Debug("監査証跡を再開しました")
	return nil
}

// ResetColumnCache はスキーマを作り直した後に呼ぶ
func (l *FixtureLoader) ResetColumnCache() {
	l.columns.reset()
}

// LoadFile はファイル内の全レコードを upsert し、件数を返す
func (l *FixtureLoader) LoadFile(ctx context.Context, path string) (int, error) {
	records, err := fixture.ReadRecords(path)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}

	name := filepath.Base(path)
	return database.Transact(ctx, l.tx, func(a *database.Adapter) (int, error) {
		if l.suspended.Load() {
			if _, err := a.Tx.Exec(ctx, "SELECT set_config($1, 'on', true)", AuditSuspendedSetting); err != nil {
				return 0, fmt.Errorf("failed to suspend audit trail: %w", err)
			}
		}

		touched := map[string]columnSet{}
		for i, rec := range records {
			table, cols, err := l.writeRecord(ctx, a.Tx, rec)
			if err != nil {
				return 0, fmt.Errorf("%s record %d (%s): %w", name, i+1, rec.Model, err)
			}
			touched[table] = cols
		}

		for table, cols := range touched {
			if err := resetSequence(ctx, a.Tx, table, cols); err != nil {
				return 0, err
			}
		}
		return len(records), nil
	})
}

func (l *FixtureLoader) writeRecord(ctx context.Context, tx pgx.Tx, rec fixture.Record) (string, columnSet, error) {
	table, err := rec.Table()
	if err != nil {
		return "", nil, err
	}

	cols, err := l.columns.lookup(ctx, tx, table)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("relation %q does not exist", table)
	}

	values := map[string]any{}
	var relations []m2mRelation
	for field, raw := range rec.Fields {
		column, ok := resolveColumn(cols, field)
		if !ok {
			if items, isList := raw.([]any); isList {
				relations = append(relations, m2mRelation{field: field, targets: items})
				continue
			}
			return "", nil, fmt.Errorf("%s.%s: %w", table, field, ErrUnknownField)
		}

		v, err := toColumnValue(cols, column, raw)
		if err != nil {
			return "", nil, fmt.Errorf("%s.%s: %w", table, field, err)
		}
		values[column] = v
	}

	hasPK := rec.PK != nil && cols.has("id")
	if hasPK {
		values["id"] = normalizeNumber(rec.PK)
	}

	sql, args := buildUpsert(table, values, hasPK)
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return "", nil, err
	}

	if len(relations) > 0 {
		if !hasPK {
			return "", nil, fmt.Errorf("%s: many-to-many fields require pk", table)
		}
		if err := l.writeRelations(ctx, tx, rec, table, values["id"], relations); err != nil {
			return "", nil, err
		}
	}

	return table, cols, nil
}

// resolveColumn はフィールド名からカラム名を決める。外部キーは <field>_id になる
func resolveColumn(cols columnSet, field string) (string, bool) {
	if cols.has(field) {
		return field, true
	}
	if cols.has(field + "_id") {
		return field + "_id", true
	}
	return "", false
}

func toColumnValue(cols columnSet, column string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	if cols.isJSON(column) {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encode json value: %w", err)
		}
		return b, nil
	}
	switch v := raw.(type) {
	case map[string]any:
		return nil, fmt.Errorf("object value for non-json column %s", column)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeNumber(item)
		}
		return out, nil
	default:
		return normalizeNumber(v), nil
	}
}

// normalizeNumber は json.Number を整数か浮動小数点数へ変換する
func normalizeNumber(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func buildUpsert(table string, values map[string]any, hasPK bool) (string, []any) {
	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	var updates []string
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = values[c]
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoted[i], quoted[i]))
		}
	}

	if len(columns) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", pgx.Identifier{table}.Sanitize()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier{table}.Sanitize(),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	if hasPK {
		if len(updates) == 0 {
			b.WriteString(` ON CONFLICT ("id") DO NOTHING`)
		} else {
			fmt.Fprintf(&b, ` ON CONFLICT ("id") DO UPDATE SET %s`, strings.Join(updates, ", "))
		}
	}
	return b.String(), args
}

type m2mRelation struct {
	field   string
	targets []any
}

// writeRelations は多対多フィールドを中間テーブル <table>_<field> へ書き込む
// 中間テーブルが見つからない場合は読み飛ばす
func (l *FixtureLoader) writeRelations(ctx context.Context, tx pgx.Tx, rec fixture.Record, table string, pk any, relations []m2mRelation) error {
	_, model, _ := strings.Cut(strings.ToLower(rec.Model), ".")

	for _, rel := range relations {
		through := table + "_" + rel.field
		cols, err := l.columns.lookup(ctx, tx, through)
		if err != nil {
			return err
		}
		source, target, ok := throughColumns(cols, model)
		if !ok {
			l.logger.Debug("中間テーブルが見つからないため多対多フィールドを読み飛ばします", "table", table, "field", rel.field)
			continue
		}

		sql := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			pgx.Identifier{through}.Sanitize(),
			pgx.Identifier{source}.Sanitize(),
			pgx.Identifier{target}.Sanitize(),
		)
		for _, t := range rel.targets {
			if _, err := tx.Exec(ctx, sql, pk, normalizeNumber(t)); err != nil {
				return fmt.Errorf("%s: %w", through, err)
			}
		}
	}
	return nil
}

// throughColumns は中間テーブルの自分側と相手側のカラムを返す
func throughColumns(cols columnSet, model string) (string, string, bool) {
	if len(cols) != 3 || !cols.has("id") {
		return "", "", false
	}

	source := model + "_id"
	if !cols.has(source) {
		source = "from_" + model + "_id"
		if !cols.has(source) {
			return "", "", false
		}
	}

	for c := range cols {
		if c != "id" && c != source {
			return source, c, true
		}
	}
	return "", "", false
}

// resetSequence は明示的な主キーで挿入した後にシーケンスを最大値へ合わせる
func resetSequence(ctx context.Context, tx pgx.Tx, table string, cols columnSet) error {
	if !cols.isInteger("id") {
		return nil
	}
	ident := pgx.Identifier{table}.Sanitize()
	sql := fmt.Sprintf(
		`SELECT setval(pg_get_serial_sequence($1, 'id'), COALESCE(MAX("id"), 1), MAX("id") IS NOT NULL) FROM %s`,
		ident,
	)
	if _, err := tx.Exec(ctx, sql, ident); err != nil {
		return fmt.Errorf("failed to reset sequence of %s: %w", table, err)
	}
	return nil
}
