package fixture

import "errors"

var (
	// ErrTenantNotFound はテナントのディレクトリもリモートバケットも無い場合のエラー
	ErrTenantNotFound = errors.New("tenant fixtures not found")

	// ErrNoFixtures は読み込むフィクスチャファイルが無い場合のエラー
	ErrNoFixtures = errors.New("no fixture files found")

	// ErrInvalidFixtures は検証に失敗したファイルがあるため読み込みを中止した場合のエラー
	ErrInvalidFixtures = errors.New("invalid fixture files")

	// ErrLoadFailed は一部のファイルの読み込みに失敗した場合のエラー
	ErrLoadFailed = errors.New("some fixture files failed to load")

	// ErrInvalidRecord はレコードの形式が不正な場合のエラー
	ErrInvalidRecord = errors.New("invalid fixture record")
)
