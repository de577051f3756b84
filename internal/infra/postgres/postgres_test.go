package postgres_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/ato-loader/internal/core/fixture"
	"github.com/jinford/ato-loader/internal/core/knowledgebase"
	"github.com/jinford/ato-loader/internal/infra/postgres"
	"github.com/jinford/ato-loader/internal/platform/database"
	"github.com/jinford/ato-loader/pkg/db"
)

const testSchema = `
CREATE TABLE core_company (
	id bigserial PRIMARY KEY,
	name varchar(200) NOT NULL,
	settings jsonb
);
CREATE TABLE core_control (
	id bigserial PRIMARY KEY,
	code varchar(50) NOT NULL,
	company_id bigint NOT NULL REFERENCES core_company(id) DEFERRABLE INITIALLY DEFERRED
);
CREATE TABLE core_tag (
	id bigserial PRIMARY KEY,
	label varchar(50) NOT NULL
);
CREATE TABLE core_control_tags (
	id bigserial PRIMARY KEY,
	control_id bigint NOT NULL REFERENCES core_control(id),
	tag_id bigint NOT NULL REFERENCES core_tag(id),
	UNIQUE (control_id, tag_id)
);
CREATE TABLE ai_chat_complianceframework (
	id bigserial PRIMARY KEY,
	name varchar(200) NOT NULL UNIQUE,
	description text NOT NULL,
	version varchar(50) NOT NULL,
	created_at timestamptz NOT NULL
);
CREATE TABLE audit_log (
	id bigserial PRIMARY KEY,
	table_name text NOT NULL
);
CREATE FUNCTION audit_row() RETURNS trigger AS $$
BEGIN
	IF current_setting('ato.audit_suspended', true) = 'on' THEN
		RETURN NEW;
	END IF;
	INSERT INTO audit_log (table_name) VALUES (TG_TABLE_NAME);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;
CREATE TRIGGER core_tag_audit AFTER INSERT OR UPDATE ON core_tag
	FOR EACH ROW EXECUTE FUNCTION audit_row();
`

// startPostgres は Docker で PostgreSQL を起動する
// -short 指定時や Docker が使えない環境ではスキップする
func startPostgres(t *testing.T) *db.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("統合テストは -short ではスキップします")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("Docker に接続できません: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("Docker に接続できません: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=ato",
			"POSTGRES_PASSWORD=ato",
			"POSTGRES_DB=ato",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Purge(resource)
	})
	_ = resource.Expire(300)

	connString := fmt.Sprintf("postgres://ato:ato@%s/ato?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var conn *db.DB
	err = pool.Retry(func() error {
		var openErr error
		conn, openErr = db.Open(context.Background(), connString)
		return openErr
	})
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	_, err = conn.Pool.Exec(context.Background(), testSchema)
	require.NoError(t, err)
	return conn
}

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestPostgres_Integration(t *testing.T) {
	conn := startPostgres(t)
	ctx := context.Background()
	tx := database.NewTransactionProvider(conn.Pool)

	t.Run("フィクスチャを upsert し、シーケンスを進める", func(t *testing.T) {
		loader := postgres.NewFixtureLoader(tx)
		dir := t.TempDir()
		path := writeFixture(t, dir, "a_foundation.json", `[
			{"model": "core.company", "pk": 10, "fields": {"name": "Transport Canada", "settings": {"tier": 2}}},
			{"model": "core.tag", "pk": 1, "fields": {"label": "AC"}},
			{"model": "core.control", "pk": 5, "fields": {"code": "AC-1", "company": 10, "tags": [1]}}
		]`)

		n, err := loader.LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		// 2回目は更新になる
		path = writeFixture(t, dir, "a_foundation.json", `[
			{"model": "core.company", "pk": 10, "fields": {"name": "TC", "settings": null}}
		]`)
		_, err = loader.LoadFile(ctx, path)
		require.NoError(t, err)

		var name string
		require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT name FROM core_company WHERE id = 10`).Scan(&name))
		assert.Equal(t, "TC", name)

		var tags int
		require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM core_control_tags WHERE control_id = 5`).Scan(&tags))
		assert.Equal(t, 1, tags)

		var next int64
		require.NoError(t, conn.Pool.QueryRow(ctx, `INSERT INTO core_company (name) VALUES ('next') RETURNING id`).Scan(&next))
		assert.Equal(t, int64(11), next)
	})

	t.Run("失敗したファイルは何も残さない", func(t *testing.T) {
		loader := postgres.NewFixtureLoader(tx)
		path := writeFixture(t, t.TempDir(), "b_users.json", `[
			{"model": "core.tag", "pk": 50, "fields": {"label": "SC"}},
			{"model": "core.tag", "pk": 51, "fields": {"colour": "red"}}
		]`)

		_, err := loader.LoadFile(ctx, path)
		require.Error(t, err)
		assert.ErrorIs(t, err, postgres.ErrUnknownField)

		var count int
		require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM core_tag WHERE id = 50`).Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("存在しないテーブルはヒントで読み込み順を示す", func(t *testing.T) {
		loader := postgres.NewFixtureLoader(tx)
		path := writeFixture(t, t.TempDir(), "c_org.json", `[{"model": "core.missing", "pk": 1, "fields": {}}]`)

		_, err := loader.LoadFile(ctx, path)
		require.Error(t, err)
		assert.Equal(t, "Referenced record not found - check loading order", fixture.Hint(err))
	})

	t.Run("監査停止中は監査ログを残さない", func(t *testing.T) {
		loader := postgres.NewFixtureLoader(tx)
		dir := t.TempDir()
		writeFixture(t, dir, "d_tags.json", `[{"model": "core.tag", "pk": 60, "fields": {"label": "IA"}}]`)

		var before int
		require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM audit_log`).Scan(&before))

		report, err := fixture.NewRunner(loader, loader).LoadFiles(ctx, dir, []string{"d_tags.json"})
		require.NoError(t, err)
		assert.Len(t, report.Loaded, 1)

		var after int
		require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM audit_log`).Scan(&after))
		assert.Equal(t, before, after)

		// 停止していなければ記録される
		_, err = loader.LoadFile(ctx, filepath.Join(dir, "d_tags.json"))
		require.NoError(t, err)
		require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM audit_log`).Scan(&after))
		assert.Equal(t, before+1, after)
	})

	t.Run("監査停止中も外部キー制約は検査される", func(t *testing.T) {
		loader := postgres.NewFixtureLoader(tx)
		dir := t.TempDir()
		writeFixture(t, dir, "e_controls.json", `[
			{"model": "core.control", "pk": 70, "fields": {"code": "SC-7", "company": 999}}
		]`)

		report, err := fixture.NewRunner(loader, loader).LoadFiles(ctx, dir, []string{"e_controls.json"})
		require.ErrorIs(t, err, fixture.ErrLoadFailed)
		require.Len(t, report.Failed, 1)
		assert.Equal(t, "Foreign key reference doesn't exist", report.Failed[0].Hint)

		var count int
		require.NoError(t, conn.Pool.QueryRow(ctx, `SELECT count(*) FROM core_control WHERE id = 70`).Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("フレームワークは名前で1件だけ作成される", func(t *testing.T) {
		repo := postgres.NewFrameworkRepository(tx, nil)
		meta := knowledgebase.FrameworkMetadata{Name: "NIST 800-53", Description: "controls", Version: "rev5"}

		created, err := repo.GetOrCreate(ctx, meta)
		require.NoError(t, err)
		assert.True(t, created)

		created, err = repo.GetOrCreate(ctx, meta)
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("スキーマを作り直すと全テーブルが消える", func(t *testing.T) {
		require.NoError(t, postgres.ResetSchema(ctx, tx, "public"))

		var count int
		require.NoError(t, conn.Pool.QueryRow(ctx,
			`SELECT count(*) FROM information_schema.tables WHERE table_schema = 'public'`).Scan(&count))
		assert.Equal(t, 0, count)
	})
}
