package fixture

import "context"

// BulkLoader はフィクスチャファイル1件をデータベースへ反映する
type BulkLoader interface {
	// LoadFile はファイル内の全レコードを1トランザクションで書き込み、件数を返す
	LoadFile(ctx context.Context, path string) (int, error)
}

// AuditObserver は監査証跡の記録を一時的に止める
type AuditObserver interface {
	Suspend(ctx context.Context) error
	Resume(ctx context.Context) error
}

// RemoteFetcher はリモートバケットからテナントのフィクスチャを取得する
type RemoteFetcher interface {
	// FetchFixtures は bucket 内の *.json を destDir へダウンロードし、件数を返す
	FetchFixtures(ctx context.Context, bucket, destDir string) (int, error)
}

// RemoteStore はテナントのフィクスチャをリモートバケットへ保存する
type RemoteStore interface {
	// PutFixtures は srcDir 内の *.json を bucket の prefix 配下へアップロードし、件数を返す
	PutFixtures(ctx context.Context, bucket, prefix, srcDir string) (int, error)
}
