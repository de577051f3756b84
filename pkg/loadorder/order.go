// Package loadorder はディレクトリ内のフィクスチャファイルの読み込み順序を決定します。
//
// ディレクトリに load_order.yaml が存在する場合はその宣言順を優先し、
// 宣言されていないファイルは辞書順で後ろに続けます。
// マニフェストが無い場合は従来通りファイル名の辞書順になります。
package loadorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ManifestFileName は読み込み順序を宣言するマニフェストのファイル名
const ManifestFileName = "load_order.yaml"

var (
	// ErrDeclaredFileMissing はマニフェストに宣言されたファイルが存在しない場合のエラー
	ErrDeclaredFileMissing = errors.New("declared file does not exist")

	// ErrDeclaredFileRejected はマニフェストに宣言されたファイルが対象外の場合のエラー
	ErrDeclaredFileRejected = errors.New("declared file is not eligible for this loader")

	// ErrDuplicateDeclaration は同じファイルが複数回宣言された場合のエラー
	ErrDuplicateDeclaration = errors.New("file declared more than once")
)

// Manifest は load_order.yaml の内容
type Manifest struct {
	Order []string `yaml:"order"`
}

// MatchFunc は対象ファイルかどうかを判定する
type MatchFunc func(name string) bool

// JSONFiles は拡張子 .json のファイルを対象とする MatchFunc
func JSONFiles(name string) bool {
	return filepath.Ext(name) == ".json"
}

// ReadManifest はディレクトリのマニフェストを読み込みます
// マニフェストが存在しない場合は nil を返します
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFileName, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFileName, err)
	}
	return &m, nil
}

// Resolve は dir 内で match を満たすファイル名を読み込み順に返します
// match を満たさないファイルが宣言されている場合はエラーになります
func Resolve(dir string, match MatchFunc) ([]string, error) {
	return resolve(dir, match, true)
}

// ResolveShared は複数のローダーが1つのマニフェストを共有するディレクトリ向けの Resolve です
// match を満たさない宣言は他のローダーの対象として読み飛ばします
func ResolveShared(dir string, match MatchFunc) ([]string, error) {
	return resolve(dir, match, false)
}

func resolve(dir string, match MatchFunc, strict bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	available := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == ManifestFileName {
			continue
		}
		if match != nil && !match(entry.Name()) {
			continue
		}
		available[entry.Name()] = true
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	if manifest == nil || len(manifest.Order) == 0 {
		return names, nil
	}

	ordered := make([]string, 0, len(names))
	declared := make(map[string]bool, len(manifest.Order))
	for _, name := range manifest.Order {
		if declared[name] {
			return nil, fmt.Errorf("%s: %w", name, ErrDuplicateDeclaration)
		}
		declared[name] = true

		if !available[name] {
			if _, statErr := os.Stat(filepath.Join(dir, name)); statErr == nil {
				if !strict {
					continue
				}
				return nil, fmt.Errorf("%s: %w", name, ErrDeclaredFileRejected)
			}
			return nil, fmt.Errorf("%s: %w", name, ErrDeclaredFileMissing)
		}
		ordered = append(ordered, name)
	}

	// 宣言されていないファイルは辞書順で後ろに続ける
	for _, name := range names {
		if !declared[name] {
			ordered = append(ordered, name)
		}
	}

	return ordered, nil
}
