package testing

import (
	"context"
	"sync"
	"time"

	"github.com/jinford/ato-loader/internal/core/knowledgebase"
)

// MockIngestionClient はテスト用のモックIngestionClientです
type MockIngestionClient struct {
	ListDataSourcesFunc   func(ctx context.Context) ([]knowledgebase.DataSourceSummary, error)
	GetDataSourceFunc     func(ctx context.Context, dataSourceID string) (*knowledgebase.DataSource, error)
	CreateDataSourceFunc  func(ctx context.Context, input knowledgebase.CreateDataSourceInput) (*knowledgebase.DataSource, error)
	UpdateDataSourceFunc  func(ctx context.Context, input knowledgebase.UpdateDataSourceInput) error
	StartIngestionJobFunc func(ctx context.Context, dataSourceID, description, clientToken string) (*knowledgebase.IngestionJob, error)
	GetIngestionJobFunc   func(ctx context.Context, dataSourceID, jobID string) (*knowledgebase.IngestionJob, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockIngestionClient) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

// Calls は呼び出されたメソッド名を順番に返します
func (m *MockIngestionClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MutationCalls はリモートを変更するメソッドの呼び出し回数を返します
func (m *MockIngestionClient) MutationCalls() int {
	n := 0
	for _, c := range m.Calls() {
		switch c {
		case "CreateDataSource", "UpdateDataSource", "StartIngestionJob":
			n++
		}
	}
	return n
}

func (m *MockIngestionClient) ListDataSources(ctx context.Context) ([]knowledgebase.DataSourceSummary, error) {
	m.record("ListDataSources")
	if m.ListDataSourcesFunc != nil {
		return m.ListDataSourcesFunc(ctx)
	}
	return nil, nil
}

func (m *MockIngestionClient) GetDataSource(ctx context.Context, dataSourceID string) (*knowledgebase.DataSource, error) {
	m.record("GetDataSource")
	if m.GetDataSourceFunc != nil {
		return m.GetDataSourceFunc(ctx, dataSourceID)
	}
	return nil, nil
}

func (m *MockIngestionClient) CreateDataSource(ctx context.Context, input knowledgebase.CreateDataSourceInput) (*knowledgebase.DataSource, error) {
	m.record("CreateDataSource")
	if m.CreateDataSourceFunc != nil {
		return m.CreateDataSourceFunc(ctx, input)
	}
	return &knowledgebase.DataSource{ID: "ds-created", Name: input.Name}, nil
}

func (m *MockIngestionClient) UpdateDataSource(ctx context.Context, input knowledgebase.UpdateDataSourceInput) error {
	m.record("UpdateDataSource")
	if m.UpdateDataSourceFunc != nil {
		return m.UpdateDataSourceFunc(ctx, input)
	}
	return nil
}

func (m *MockIngestionClient) StartIngestionJob(ctx context.Context, dataSourceID, description, clientToken string) (*knowledgebase.IngestionJob, error) {
	m.record("StartIngestionJob")
	if m.StartIngestionJobFunc != nil {
		return m.StartIngestionJobFunc(ctx, dataSourceID, description, clientToken)
	}
	return &knowledgebase.IngestionJob{ID: "job-1", DataSourceID: dataSourceID, Status: knowledgebase.JobStatusStarting}, nil
}

func (m *MockIngestionClient) GetIngestionJob(ctx context.Context, dataSourceID, jobID string) (*knowledgebase.IngestionJob, error) {
	m.record("GetIngestionJob")
	if m.GetIngestionJobFunc != nil {
		return m.GetIngestionJobFunc(ctx, dataSourceID, jobID)
	}
	return &knowledgebase.IngestionJob{ID: jobID, DataSourceID: dataSourceID, Status: knowledgebase.JobStatusComplete}, nil
}

// MockFrameworkRepository はテスト用のモックFrameworkRepositoryです
type MockFrameworkRepository struct {
	GetOrCreateFunc func(ctx context.Context, meta knowledgebase.FrameworkMetadata) (bool, error)
}

func (m *MockFrameworkRepository) GetOrCreate(ctx context.Context, meta knowledgebase.FrameworkMetadata) (bool, error) {
	if m.GetOrCreateFunc != nil {
		return m.GetOrCreateFunc(ctx, meta)
	}
	return true, nil
}

// MockFixtureLoader はテスト用のモックFixtureLoaderです
type MockFixtureLoader struct {
	LoadDirectoryFunc func(ctx context.Context, dir string) (int, error)
}

func (m *MockFixtureLoader) LoadDirectory(ctx context.Context, dir string) (int, error) {
	if m.LoadDirectoryFunc != nil {
		return m.LoadDirectoryFunc(ctx, dir)
	}
	return 0, nil
}

// FakeClock は Sleep で時間が進む疑似時計です
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	Sleeps  []time.Duration
}

// NewFakeClock は指定時刻から始まる FakeClock を作成します
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start}
}

// Now は現在の疑似時刻を返します
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Sleep は疑似時刻を d だけ進めます
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	c.Sleeps = append(c.Sleeps, d)
	return nil
}
