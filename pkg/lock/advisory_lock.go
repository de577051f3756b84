package lock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer はロック取得に使うトランザクションの操作（pgx.Tx を満たす）
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Manager はトランザクションスコープのアドバイザリロックを取得する
// ロックはトランザクションの終了とともに解放される
type Manager struct {
	tx execer
}

// NewManager はトランザクションからロックマネージャーを生成します
func NewManager(tx execer) *Manager {
	return &Manager{tx: tx}
}

// GenerateLockID は区切り付きで連結した文字列のハッシュからロックIDを生成します
// ("ab", "c") と ("a", "bc") は別のIDになる
func GenerateLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return int64(binary.BigEndian.Uint64(h.Sum(nil)[:8]))
}

// Acquire はロックを取得できるまで待つ（pg_advisory_xact_lock）
func (m *Manager) Acquire(ctx context.Context, lockID int64) error {
	if _, err := m.tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire advisory lock: %w", err)
	}
	return nil
}
