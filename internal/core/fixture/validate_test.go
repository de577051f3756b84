package fixture_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/ato-loader/internal/core/fixture"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateFixtureFile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantValid   bool
		wantWarning bool
		wantMessage string
	}{
		{
			name:        "正常なフィクスチャ",
			content:     `[{"model":"core.company","pk":1,"fields":{"name":"Transport Canada","notes":""}}]`,
			wantValid:   true,
			wantMessage: "Valid fixture with 1 records",
		},
		{
			name:        "リストでない",
			content:     `{"model":"core.company"}`,
			wantMessage: "Not a valid Django fixture format (should be a list)",
		},
		{
			name:        "空のリスト",
			content:     `[]`,
			wantMessage: "Empty fixture file",
		},
		{
			name:        "重要フィールドが空",
			content:     `[{"model":"auth.user","pk":1,"fields":{"username":"","email":"","first_name":"","last_name":"x"}}]`,
			wantMessage: "Critical fields empty: username, email, first_name",
		},
		{
			name:        "空フィールドが多い場合は警告",
			content:     `[{"model":"core.app","pk":1,"fields":{"a":"","b":"","c":""}},{"model":"core.app","pk":2,"fields":{"a":"","b":"","c":""}}]`,
			wantValid:   true,
			wantWarning: true,
			wantMessage: "Warning: 6 empty fields (may need population)",
		},
		{
			name:        "任意フィールドは数えない",
			content:     `[{"model":"core.app","pk":1,"fields":{"description":"","bio":"","notes":"","website":"","fax":"","mobile":"","logo":""}}]`,
			wantValid:   true,
			wantMessage: "Valid fixture with 1 records",
		},
		{
			name:        "空フィールドが多い場合は重要フィールドが空でも警告のみ",
			content:     `[{"model":"core.company","pk":1,"fields":{"name":"","a":"","b":"","c":"","d":"","e":""}}]`,
			wantValid:   true,
			wantWarning: true,
			wantMessage: "Warning: 6 empty fields (may need population)",
		},
		{
			name:        "重要フィールドは出現順に重複も含めて先頭3件を表示",
			content:     `[{"model":"auth.user","pk":1,"fields":{"last_name":"","email":""}},{"model":"auth.user","pk":2,"fields":{"last_name":"","username":""}}]`,
			wantMessage: "Critical fields empty: last_name, email, last_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "a_foundation.json", tt.content)

			v := fixture.ValidateFixtureFile(path)
			assert.Equal(t, tt.wantValid, v.Valid)
			assert.Equal(t, tt.wantWarning, v.Warning)
			assert.Equal(t, tt.wantMessage, v.Message)
			assert.Equal(t, "a_foundation.json", v.File)
		})
	}
}

func TestValidateFixtureFile_InvalidJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.json", `[{"model":`)

	v := fixture.ValidateFixtureFile(path)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Message, "Invalid JSON")
}

func TestValidateFixtureFile_Missing(t *testing.T) {
	v := fixture.ValidateFixtureFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.False(t, v.Valid)
	assert.Contains(t, v.Message, "Error reading file")
}
