package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EmptyFieldWarningThreshold を超える空文字列フィールドがあるファイルは警告対象
const EmptyFieldWarningThreshold = 5

// criticalFields が空のレコードを含むファイルは読み込まない
var criticalFields = map[string]bool{
	"name":         true,
	"company_name": true,
	"email":        true,
	"username":     true,
	"first_name":   true,
	"last_name":    true,
}

// optionalFields は空でも問題ないため件数に含めない
var optionalFields = map[string]bool{
	"description":      true,
	"bio":              true,
	"notes":            true,
	"comments":         true,
	"logo":             true,
	"avatar":           true,
	"profile_picture":  true,
	"website":          true,
	"linkedin_profile": true,
	"github_profile":   true,
	"fax":              true,
	"mobile":           true,
	"last_login":       true,
	"otp_code":         true,
	"user_token":       true,
}

// FileValidation はフィクスチャファイル1件の検証結果
type FileValidation struct {
	File          string
	Valid         bool
	Warning       bool
	Records       int
	EmptyFields   int
	CriticalEmpty []string
	Message       string
}

// ValidateFixtureFile はテナントフィクスチャが読み込み可能な状態か検証する
func ValidateFixtureFile(path string) FileValidation {
	v := FileValidation{File: filepath.Base(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		v.Message = fmt.Sprintf("Error reading file: %v", err)
		return v
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		v.Message = fmt.Sprintf("Invalid JSON: %v", err)
		return v
	}

	if _, ok := doc.([]any); !ok {
		v.Message = "Not a valid Django fixture format (should be a list)"
		return v
	}

	// 重要フィールドはファイル内の出現順（重複を含む）で報告するため、生のJSONから順に読む
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		v.Message = fmt.Sprintf("Invalid JSON: %v", err)
		return v
	}
	if len(records) == 0 {
		v.Message = "Empty fixture file"
		return v
	}
	v.Records = len(records)

	for _, rec := range records {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(rec, &obj); err != nil {
			continue
		}
		raw, ok := obj["fields"]
		if !ok {
			continue
		}
		for _, name := range emptyStringFields(raw) {
			if optionalFields[name] {
				continue
			}
			v.EmptyFields++
			if criticalFields[name] {
				v.CriticalEmpty = append(v.CriticalEmpty, name)
			}
		}
	}

	// 空フィールドが多い場合は警告のみで読み込む（重要フィールドの検査より先に判定する）
	if v.EmptyFields > EmptyFieldWarningThreshold {
		v.Valid = true
		v.Warning = true
		v.Message = fmt.Sprintf("Warning: %d empty fields (may need population)", v.EmptyFields)
		return v
	}

	if len(v.CriticalEmpty) > 0 {
		shown := v.CriticalEmpty
		if len(shown) > 3 {
			shown = shown[:3]
		}
		v.Message = "Critical fields empty: " + strings.Join(shown, ", ")
		return v
	}

	v.Valid = true
	v.Message = fmt.Sprintf("Valid fixture with %d records", v.Records)
	return v
}

// emptyStringFields は fields オブジェクトのうち値が空文字列のフィールド名をキーの出現順に返す
// オブジェクトでない場合は空を返す
func emptyStringFields(raw json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	var names []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return names
		}
		name, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return names
		}
		if s, ok := value.(string); ok && s == "" {
			names = append(names, name)
		}
	}
	return names
}
