package fixture

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Record は loaddata 形式のフィクスチャの1レコード
type Record struct {
	Model  string         `json:"model"`
	PK     any            `json:"pk"`
	Fields map[string]any `json:"fields"`
}

// Table はレコードの格納先テーブル名を返す（"app.model" → "app_model"）
func (r Record) Table() (string, error) {
	app, model, ok := strings.Cut(strings.ToLower(r.Model), ".")
	if !ok || app == "" || model == "" {
		return "", fmt.Errorf("invalid model label %q: %w", r.Model, ErrInvalidRecord)
	}
	return app + "_" + model, nil
}

// ReadRecords はフィクスチャファイルを読み込む
// 数値は桁落ちしないよう json.Number のまま保持する
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to parse fixture json %s: %w", path, err)
	}
	for i, rec := range records {
		if rec.Model == "" {
			return nil, fmt.Errorf("record %d in %s has no model: %w", i+1, path, ErrInvalidRecord)
		}
	}
	return records, nil
}

// categories はテナントフィクスチャのファイル名の先頭文字とATOワークフロー上の区分の対応
var categories = map[byte]string{
	'a': "Foundation",
	'b': "User Management",
	'c': "Organization",
	'd': "Environments",
	'e': "Applications",
	'f': "Documents",
	'g': "Controls",
	'h': "SOS Workflow",
	'i': "Security Assessment",
	'j': "Supporting Systems",
}

// Category はファイル名からATOワークフロー上の区分を返す
func Category(fileName string) string {
	if fileName == "" {
		return "Other"
	}
	if c, ok := categories[fileName[0]]; ok {
		return c
	}
	return "Other"
}
