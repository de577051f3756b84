package knowledgebase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListCatalogues は ai_kb ディレクトリ配下のカタログ名を辞書順で返す
// ディレクトリが存在しない場合は空のリストを返す
func ListCatalogues(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read catalogue root %s: %w", root, err)
	}

	var catalogues []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			catalogues = append(catalogues, entry.Name())
		}
	}
	sort.Strings(catalogues)
	return catalogues, nil
}

// NormalizeCatalogue はコマンドライン引数のカタログ名を正規化する
func NormalizeCatalogue(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ReadCatalogueInfo はカタログの catalogue_info.json を読む
// ファイルが無い場合は nil を返す
func ReadCatalogueInfo(dir string) (*CatalogueInfo, error) {
	data, err := os.ReadFile(filepath.Join(dir, CatalogueInfoFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", CatalogueInfoFileName, err)
	}

	var info CatalogueInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", CatalogueInfoFileName, err)
	}
	return &info, nil
}

// FrameworkFromInfo は catalogue_info.json の内容からフレームワークのメタデータを組み立てる
// 欠けている項目はカタログ名から補う
func FrameworkFromInfo(catalogue string, info *CatalogueInfo) FrameworkMetadata {
	meta := FrameworkMetadata{
		Name:        strings.ReplaceAll(strings.ToUpper(catalogue), "-", " "),
		Description: "Catalogue loaded from AI Knowledge Base",
		Version:     "1.0",
	}
	if info == nil {
		return meta
	}
	if info.Name != "" {
		meta.Name = info.Name
	}
	if info.Description != "" {
		meta.Description = info.Description
	}
	if info.Version != "" {
		meta.Version = info.Version
	}
	return meta
}
