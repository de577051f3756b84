package fixture_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/ato-loader/internal/core/fixture"
	testutil "github.com/jinford/ato-loader/internal/core/fixture/testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHint(t *testing.T) {
	tests := []struct {
		err  string
		want string
	}{
		{`ERROR: duplicate key value violates unique constraint "core_company_pkey"`, "Duplicate primary keys or unique fields"},
		{`insert or update violates foreign key constraint "fk_company"`, "Foreign key reference doesn't exist"},
		{`relation "core_widget" does not exist`, "Referenced record not found - check loading order"},
		{`failed to parse fixture json`, "Invalid JSON syntax"},
		{`null value in column "name"`, "Required field is empty or null"},
		{`connection reset`, "Check ATO_WORKFLOW_GUIDE.md for help"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, fixture.Hint(errors.New(tt.err)))
		})
	}
	assert.Empty(t, fixture.Hint(nil))
}

func TestCategory(t *testing.T) {
	assert.Equal(t, "Foundation", fixture.Category("a_foundation.json"))
	assert.Equal(t, "SOS Workflow", fixture.Category("h_sos.json"))
	assert.Equal(t, "Supporting Systems", fixture.Category("j_support.json"))
	assert.Equal(t, "Other", fixture.Category("z_misc.json"))
	assert.Equal(t, "Other", fixture.Category(""))
}

func TestRecordTable(t *testing.T) {
	table, err := fixture.Record{Model: "ai_chat.ComplianceFramework"}.Table()
	require.NoError(t, err)
	assert.Equal(t, "ai_chat_complianceframework", table)

	_, err = fixture.Record{Model: "nodot"}.Table()
	assert.ErrorIs(t, err, fixture.ErrInvalidRecord)
}

func TestRunner_ContinuesAfterFailure(t *testing.T) {
	loader := &testutil.MockBulkLoader{
		LoadFileFunc: func(ctx context.Context, path string) (int, error) {
			if strings.HasSuffix(path, "b_users.json") {
				return 0, errors.New(`duplicate key value violates unique constraint`)
			}
			return 3, nil
		},
	}
	audit := &testutil.MockAuditObserver{}
	runner := fixture.NewRunner(loader, audit, fixture.WithRunnerLogger(quietLogger()))

	report, err := runner.LoadFiles(context.Background(), "dir", []string{"a_base.json", "b_users.json", "c_org.json"})
	require.ErrorIs(t, err, fixture.ErrLoadFailed)

	assert.Equal(t, []string{"a_base.json", "b_users.json", "c_org.json"}, loader.Files())
	require.Len(t, report.Loaded, 2)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "b_users.json", report.Failed[0].File)
	assert.Equal(t, "User Management", report.Failed[0].Category)
	assert.Equal(t, "Duplicate primary keys or unique fields", report.Failed[0].Hint)
	assert.Equal(t, 6, report.Records())
	assert.False(t, report.Succeeded())
	assert.Equal(t, 1, audit.Suspended)
	assert.Equal(t, 1, audit.Resumed)
}

func TestRunner_FailFast(t *testing.T) {
	loader := &testutil.MockBulkLoader{
		LoadFileFunc: func(ctx context.Context, path string) (int, error) {
			return 0, errors.New("boom")
		},
	}
	audit := &testutil.MockAuditObserver{}
	runner := fixture.NewRunner(loader, audit, fixture.WithFailFast(), fixture.WithRunnerLogger(quietLogger()))

	_, err := runner.LoadFiles(context.Background(), "dir", []string{"a.json", "b.json"})
	require.Error(t, err)
	assert.Equal(t, []string{"a.json"}, loader.Files())
	assert.Equal(t, 1, audit.Resumed)
}

func TestWithAuditSuspended(t *testing.T) {
	t.Run("エラーでも再開する", func(t *testing.T) {
		audit := &testutil.MockAuditObserver{}
		err := fixture.WithAuditSuspended(context.Background(), audit, func(ctx context.Context) error {
			return errors.New("load failed")
		})
		require.Error(t, err)
		assert.Equal(t, 1, audit.Suspended)
		assert.Equal(t, 1, audit.Resumed)
	})

	t.Run("パニックでも再開する", func(t *testing.T) {
		audit := &testutil.MockAuditObserver{}
		assert.Panics(t, func() {
			_ = fixture.WithAuditSuspended(context.Background(), audit, func(ctx context.Context) error {
				panic("unexpected")
			})
		})
		assert.Equal(t, 1, audit.Resumed)
	})

	t.Run("キャンセル済みのコンテキストでも再開する", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		audit := &testutil.MockAuditObserver{
			ResumeFunc: func(ctx context.Context) error { return ctx.Err() },
		}
		err := fixture.WithAuditSuspended(ctx, audit, func(ctx context.Context) error {
			cancel()
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, audit.Resumed)
	})

	t.Run("停止に失敗した場合は実行しない", func(t *testing.T) {
		audit := &testutil.MockAuditObserver{
			SuspendFunc: func(ctx context.Context) error { return errors.New("permission denied") },
		}
		called := false
		err := fixture.WithAuditSuspended(context.Background(), audit, func(ctx context.Context) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.False(t, called)
		assert.Equal(t, 0, audit.Resumed)
	})

	t.Run("再開の失敗はエラーに含める", func(t *testing.T) {
		audit := &testutil.MockAuditObserver{
			ResumeFunc: func(ctx context.Context) error { return errors.New("resume failed") },
		}
		err := fixture.WithAuditSuspended(context.Background(), audit, func(ctx context.Context) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resume failed")
	})
}

func TestLoadAll_SkipsListedFixtures(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"users.json", "colors.json", "permissions.json", "frameworks.json", "readme.md"} {
		writeFile(t, dir, name, `[]`)
	}
	loader := &testutil.MockBulkLoader{}

	report, err := fixture.LoadAll(context.Background(), dir, loader, nil, fixture.WithRunnerLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, []string{"frameworks.json", "users.json"}, loader.Files())
	assert.Len(t, report.Loaded, 2)
}

func TestLoadAll_StopsOnFirstFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `[]`)
	writeFile(t, dir, "b.json", `[]`)
	loader := &testutil.MockBulkLoader{
		LoadFileFunc: func(ctx context.Context, path string) (int, error) { return 0, errors.New("boom") },
	}

	_, err := fixture.LoadAll(context.Background(), dir, loader, nil, fixture.WithRunnerLogger(quietLogger()))
	require.Error(t, err)
	assert.Equal(t, []string{"a.json"}, loader.Files())
}

func TestDirectoryLoader_OnlyRelationalFixtures(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "django_b.json", `[]`)
	writeFile(t, dir, "django_a.json", `[]`)
	writeFile(t, dir, "urls.json", `{"urls":[]}`)
	writeFile(t, dir, "catalogue_info.json", `{}`)
	writeFile(t, dir, "load_order.yaml", "order:\n  - urls.json\n  - django_b.json\n")

	loader := &testutil.MockBulkLoader{
		LoadFileFunc: func(ctx context.Context, path string) (int, error) { return 2, nil },
	}
	dl := fixture.NewDirectoryLoader(fixture.NewRunner(loader, nil, fixture.WithRunnerLogger(quietLogger())))

	n, err := dl.LoadDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"django_b.json", "django_a.json"}, loader.Files())
}

func TestDirectoryLoader_EmptyDirectory(t *testing.T) {
	loader := &testutil.MockBulkLoader{}
	dl := fixture.NewDirectoryLoader(fixture.NewRunner(loader, nil, fixture.WithRunnerLogger(quietLogger())))

	n, err := dl.LoadDirectory(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, loader.Files())
}
