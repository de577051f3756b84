package knowledgebase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/ato-loader/internal/core/knowledgebase"
	testutil "github.com/jinford/ato-loader/internal/core/knowledgebase/testing"
)

func webDataSource(id string, urls ...string) *knowledgebase.DataSource {
	return &knowledgebase.DataSource{
		ID:          id,
		Name:        knowledgebase.DataSourceName("fedramp"),
		Description: "Fixture-managed data source",
		Config: knowledgebase.DataSourceConfig{
			Type:             knowledgebase.DataSourceTypeWeb,
			SeedURLs:         urls,
			RateLimit:        knowledgebase.DefaultCrawlRateLimit,
			InclusionFilters: []string{".*"},
			HasWebConfig:     true,
		},
		Parsing: &knowledgebase.ParsingConfig{
			Strategy: knowledgebase.ParsingStrategyFoundationModel,
			ModelARN: "arn:aws:bedrock:ca-central-1::foundation-model/m",
		},
	}
}

func TestDataSourceName(t *testing.T) {
	assert.Equal(t, "fixtures-fedramp-kb-source", knowledgebase.DataSourceName("fedramp"))
	assert.Equal(t, knowledgebase.DataSourceName("itsg-33"), knowledgebase.DataSourceName("itsg-33"))
}

func TestDataSourceManager_FindByName(t *testing.T) {
	t.Run("名前が一致するものを返す", func(t *testing.T) {
		client := &testutil.MockIngestionClient{
			ListDataSourcesFunc: func(ctx context.Context) ([]knowledgebase.DataSourceSummary, error) {
				return []knowledgebase.DataSourceSummary{
					{ID: "ds-1", Name: "other"},
					{ID: "ds-2", Name: "fixtures-nist-kb-source"},
				}, nil
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		got, ok := m.FindByName(context.Background(), "fixtures-nist-kb-source").Get()
		require.True(t, ok)
		assert.Equal(t, "ds-2", got.ID)
	})

	t.Run("一覧取得に失敗した場合は見つからない扱い", func(t *testing.T) {
		client := &testutil.MockIngestionClient{
			ListDataSourcesFunc: func(ctx context.Context) ([]knowledgebase.DataSourceSummary, error) {
				return nil, errors.New("throttled")
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		assert.True(t, m.FindByName(context.Background(), "x").IsAbsent())
	})
}

func TestDataSourceManager_Ensure(t *testing.T) {
	t.Run("既存のデータソースを再利用する", func(t *testing.T) {
		client := &testutil.MockIngestionClient{
			ListDataSourcesFunc: func(ctx context.Context) ([]knowledgebase.DataSourceSummary, error) {
				return []knowledgebase.DataSourceSummary{{ID: "ds-existing", Name: "fixtures-fedramp-kb-source"}}, nil
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		res, err := m.Ensure(context.Background(), "fedramp", []string{"https://a.example/"})
		require.NoError(t, err)
		assert.Equal(t, "ds-existing", res.DataSourceID)
		assert.False(t, res.Created)
		assert.Equal(t, 0, client.MutationCalls())
	})

	t.Run("存在しない場合はURLをシードとして作成する", func(t *testing.T) {
		var captured knowledgebase.CreateDataSourceInput
		client := &testutil.MockIngestionClient{
			CreateDataSourceFunc: func(ctx context.Context, input knowledgebase.CreateDataSourceInput) (*knowledgebase.DataSource, error) {
				captured = input
				return &knowledgebase.DataSource{ID: "ds-new", Name: input.Name}, nil
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "anthropic.claude-3-sonnet-20240229-v1:0",
			knowledgebase.WithDataSourceLogger(quietLogger()))

		urls := []string{"https://a.example/", "https://b.example/"}
		res, err := m.Ensure(context.Background(), "fedramp", urls)
		require.NoError(t, err)
		assert.Equal(t, "ds-new", res.DataSourceID)
		assert.True(t, res.Created)

		assert.Equal(t, "fixtures-fedramp-kb-source", captured.Name)
		assert.Equal(t, knowledgebase.DataSourceTypeWeb, captured.Config.Type)
		assert.Equal(t, urls, captured.Config.SeedURLs)
		assert.Equal(t, int32(knowledgebase.DefaultCrawlRateLimit), captured.Config.RateLimit)
		assert.Equal(t, []string{".*"}, captured.Config.InclusionFilters)
		require.NotNil(t, captured.Parsing)
		assert.Equal(t, knowledgebase.ParsingStrategyFoundationModel, captured.Parsing.Strategy)
		assert.Equal(t, "arn:aws:bedrock:ca-central-1::foundation-model/anthropic.claude-3-sonnet-20240229-v1:0", captured.Parsing.ModelARN)
	})

	t.Run("作成に失敗した場合はエラー", func(t *testing.T) {
		client := &testutil.MockIngestionClient{
			CreateDataSourceFunc: func(ctx context.Context, input knowledgebase.CreateDataSourceInput) (*knowledgebase.DataSource, error) {
				return nil, errors.New("access denied")
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		_, err := m.Ensure(context.Background(), "fedramp", []string{"https://a.example/"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
	})

	t.Run("文字数上限を超える場合は作成しない", func(t *testing.T) {
		client := &testutil.MockIngestionClient{}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		_, err := m.Ensure(context.Background(), "fedramp", []string{strings.Repeat("a", knowledgebase.MaxTotalURLChars+1)})
		require.ErrorIs(t, err, knowledgebase.ErrBudgetExceeded)
		assert.Equal(t, 0, client.MutationCalls())
	})
}

func TestDataSourceManager_ReplaceSeedURLs(t *testing.T) {
	t.Run("シードURLを完全に置き換える", func(t *testing.T) {
		var updates []knowledgebase.UpdateDataSourceInput
		client := &testutil.MockIngestionClient{
			GetDataSourceFunc: func(ctx context.Context, id string) (*knowledgebase.DataSource, error) {
				return webDataSource(id, "https://old.example/1", "https://old.example/2"), nil
			},
			UpdateDataSourceFunc: func(ctx context.Context, input knowledgebase.UpdateDataSourceInput) error {
				updates = append(updates, input)
				return nil
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		urls := []string{"https://new.example/1"}
		outcome := m.ReplaceSeedURLs(context.Background(), "fedramp", "ds-1", urls)

		assert.True(t, outcome.Applied)
		assert.False(t, outcome.WithoutVectorConfig)
		assert.NoError(t, outcome.Err)
		require.Len(t, updates, 1)
		assert.Equal(t, "ds-1", updates[0].ID)
		assert.Equal(t, urls, updates[0].Config.SeedURLs)
		assert.Equal(t, int32(knowledgebase.DefaultCrawlRateLimit), updates[0].Config.RateLimit)
		assert.NotNil(t, updates[0].Parsing)
		assert.Equal(t, "Fixture-managed data source - Updated fedramp URLs", updates[0].Description)
	})

	t.Run("説明文の接尾辞は重複させない", func(t *testing.T) {
		var captured knowledgebase.UpdateDataSourceInput
		client := &testutil.MockIngestionClient{
			GetDataSourceFunc: func(ctx context.Context, id string) (*knowledgebase.DataSource, error) {
				ds := webDataSource(id)
				ds.Description = "Fixture-managed data source - Updated fedramp URLs"
				return ds, nil
			},
			UpdateDataSourceFunc: func(ctx context.Context, input knowledgebase.UpdateDataSourceInput) error {
				captured = input
				return nil
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		outcome := m.ReplaceSeedURLs(context.Background(), "fedramp", "ds-1", []string{"https://a.example/"})
		require.True(t, outcome.Applied)
		assert.Equal(t, "Fixture-managed data source - Updated fedramp URLs", captured.Description)
	})

	t.Run("vectorIngestionConfiguration で拒否された場合は外して再試行する", func(t *testing.T) {
		var updates []knowledgebase.UpdateDataSourceInput
		client := &testutil.MockIngestionClient{
			GetDataSourceFunc: func(ctx context.Context, id string) (*knowledgebase.DataSource, error) {
				return webDataSource(id), nil
			},
			UpdateDataSourceFunc: func(ctx context.Context, input knowledgebase.UpdateDataSourceInput) error {
				updates = append(updates, input)
				if input.Parsing != nil {
					return errors.New("ValidationException: vectorIngestionConfiguration cannot be updated")
				}
				return nil
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		outcome := m.ReplaceSeedURLs(context.Background(), "fedramp", "ds-1", []string{"https://a.example/"})
		assert.True(t, outcome.Applied)
		assert.True(t, outcome.WithoutVectorConfig)
		require.Len(t, updates, 2)
		assert.Nil(t, updates[1].Parsing)
		assert.Equal(t, []string{"https://a.example/"}, updates[1].Config.SeedURLs)
	})

	t.Run("その他の更新エラーは再試行しない", func(t *testing.T) {
		calls := 0
		client := &testutil.MockIngestionClient{
			GetDataSourceFunc: func(ctx context.Context, id string) (*knowledgebase.DataSource, error) {
				return webDataSource(id), nil
			},
			UpdateDataSourceFunc: func(ctx context.Context, input knowledgebase.UpdateDataSourceInput) error {
				calls++
				return errors.New("ConflictException")
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		outcome := m.ReplaceSeedURLs(context.Background(), "fedramp", "ds-1", []string{"https://a.example/"})
		assert.False(t, outcome.Applied)
		assert.Error(t, outcome.Err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Webクローラ型でない場合は更新しない", func(t *testing.T) {
		client := &testutil.MockIngestionClient{
			GetDataSourceFunc: func(ctx context.Context, id string) (*knowledgebase.DataSource, error) {
				return &knowledgebase.DataSource{ID: id, Config: knowledgebase.DataSourceConfig{Type: "S3"}}, nil
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		outcome := m.ReplaceSeedURLs(context.Background(), "fedramp", "ds-1", []string{"https://a.example/"})
		assert.False(t, outcome.Applied)
		assert.ErrorIs(t, outcome.Err, knowledgebase.ErrNotWebCrawler)
		assert.Equal(t, 0, client.MutationCalls())
	})

	t.Run("取得に失敗した場合は適用されない", func(t *testing.T) {
		client := &testutil.MockIngestionClient{
			GetDataSourceFunc: func(ctx context.Context, id string) (*knowledgebase.DataSource, error) {
				return nil, errors.New("not found")
			},
		}
		m := knowledgebase.NewDataSourceManager(client, "ca-central-1", "m", knowledgebase.WithDataSourceLogger(quietLogger()))

		outcome := m.ReplaceSeedURLs(context.Background(), "fedramp", "ds-1", []string{"https://a.example/"})
		assert.False(t, outcome.Applied)
		assert.Error(t, outcome.Err)
	})
}
