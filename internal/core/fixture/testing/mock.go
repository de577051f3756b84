package testing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// MockBulkLoader はテスト用のモックBulkLoaderです
type MockBulkLoader struct {
	LoadFileFunc func(ctx context.Context, path string) (int, error)

	mu    sync.Mutex
	files []string
}

func (m *MockBulkLoader) LoadFile(ctx context.Context, path string) (int, error) {
	m.mu.Lock()
	m.files = append(m.files, filepath.Base(path))
	m.mu.Unlock()
	if m.LoadFileFunc != nil {
		return m.LoadFileFunc(ctx, path)
	}
	return 1, nil
}

// Files は LoadFile に渡されたファイル名を順番に返します
func (m *MockBulkLoader) Files() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.files...)
}

// MockAuditObserver はテスト用のモックAuditObserverです
type MockAuditObserver struct {
	SuspendFunc func(ctx context.Context) error
	ResumeFunc  func(ctx context.Context) error

	Suspended int
	Resumed   int
}

func (m *MockAuditObserver) Suspend(ctx context.Context) error {
	m.Suspended++
	if m.SuspendFunc != nil {
		return m.SuspendFunc(ctx)
	}
	return nil
}

func (m *MockAuditObserver) Resume(ctx context.Context) error {
	m.Resumed++
	if m.ResumeFunc != nil {
		return m.ResumeFunc(ctx)
	}
	return nil
}

// MockRemoteBucket はテスト用のモックRemoteFetcher/RemoteStoreです
// Objects の内容を FetchFixtures で destDir に書き出します
type MockRemoteBucket struct {
	Objects         map[string]string
	FetchErr        error
	PutFixturesFunc func(ctx context.Context, bucket, prefix, srcDir string) (int, error)
}

func (m *MockRemoteBucket) FetchFixtures(ctx context.Context, bucket, destDir string) (int, error) {
	if m.FetchErr != nil {
		return 0, m.FetchErr
	}
	for name, body := range m.Objects {
		if err := os.WriteFile(filepath.Join(destDir, name), []byte(body), 0o644); err != nil {
			return 0, err
		}
	}
	return len(m.Objects), nil
}

func (m *MockRemoteBucket) PutFixtures(ctx context.Context, bucket, prefix, srcDir string) (int, error) {
	if m.PutFixturesFunc != nil {
		return m.PutFixturesFunc(ctx, bucket, prefix, srcDir)
	}
	return 0, nil
}
