package bedrock

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"

	"github.com/jinford/ato-loader/internal/core/knowledgebase"
)

// remoteSource は取得したデータソースの設定の原本
// 更新時はシードURL以外をそのまま送り返す
type remoteSource struct {
	config     *types.DataSourceConfiguration
	vector     *types.VectorIngestionConfiguration
	deletion   types.DataDeletionPolicy
	encryption *types.ServerSideEncryptionConfiguration
}

// toDataSource はSDKのデータソースをドメインモデルに変換する
func toDataSource(ds *types.DataSource) *knowledgebase.DataSource {
	if ds == nil {
		return nil
	}

	out := &knowledgebase.DataSource{
		ID:          aws.ToString(ds.DataSourceId),
		Name:        aws.ToString(ds.Name),
		Description: aws.ToString(ds.Description),
		Remote: &remoteSource{
			config:     ds.DataSourceConfiguration,
			vector:     ds.VectorIngestionConfiguration,
			deletion:   ds.DataDeletionPolicy,
			encryption: ds.ServerSideEncryptionConfiguration,
		},
	}

	if cfg := ds.DataSourceConfiguration; cfg != nil {
		out.Config.Type = knowledgebase.DataSourceType(cfg.Type)
		if web := cfg.WebConfiguration; web != nil {
			out.Config.HasWebConfig = true
			if src := web.SourceConfiguration; src != nil && src.UrlConfiguration != nil {
				for _, seed := range src.UrlConfiguration.SeedUrls {
					out.Config.SeedURLs = append(out.Config.SeedURLs, aws.ToString(seed.Url))
				}
			}
			if crawler := web.CrawlerConfiguration; crawler != nil {
				out.Config.InclusionFilters = crawler.InclusionFilters
				out.Config.ExclusionFilters = crawler.ExclusionFilters
				out.Config.Scope = string(crawler.Scope)
				if crawler.CrawlerLimits != nil {
					out.Config.RateLimit = aws.ToInt32(crawler.CrawlerLimits.RateLimit)
				}
			}
		}
	}

	// チャンク分割のみの設定でもベクトル取り込み設定ありとして扱う
	if vec := ds.VectorIngestionConfiguration; vec != nil {
		parsing := &knowledgebase.ParsingConfig{}
		if pc := vec.ParsingConfiguration; pc != nil {
			parsing.Strategy = string(pc.ParsingStrategy)
			if fm := pc.BedrockFoundationModelConfiguration; fm != nil {
				parsing.ModelARN = aws.ToString(fm.ModelArn)
			}
		}
		out.Parsing = parsing
	}

	return out
}

// toDataSourceConfiguration はドメインのWebクローラ設定をSDKの型に変換する
func toDataSourceConfiguration(cfg knowledgebase.DataSourceConfig) *types.DataSourceConfiguration {
	seeds := make([]types.SeedUrl, 0, len(cfg.SeedURLs))
	for _, u := range cfg.SeedURLs {
		seeds = append(seeds, types.SeedUrl{Url: aws.String(u)})
	}

	crawler := &types.WebCrawlerConfiguration{
		InclusionFilters: cfg.InclusionFilters,
		ExclusionFilters: cfg.ExclusionFilters,
	}
	if cfg.RateLimit > 0 {
		crawler.CrawlerLimits = &types.WebCrawlerLimits{RateLimit: aws.Int32(cfg.RateLimit)}
	}
	if cfg.Scope != "" {
		crawler.Scope = types.WebScopeType(cfg.Scope)
	}

	return &types.DataSourceConfiguration{
		Type: types.DataSourceType(cfg.Type),
		WebConfiguration: &types.WebDataSourceConfiguration{
			SourceConfiguration: &types.WebSourceConfiguration{
				UrlConfiguration: &types.UrlConfiguration{SeedUrls: seeds},
			},
			CrawlerConfiguration: crawler,
		},
	}
}

// toVectorIngestionConfiguration はパース設定をSDKの型に変換する。nil または戦略なしの場合は送信しない
func toVectorIngestionConfiguration(p *knowledgebase.ParsingConfig) *types.VectorIngestionConfiguration {
	if p == nil || p.Strategy == "" {
		return nil
	}
	parsing := &types.ParsingConfiguration{
		ParsingStrategy: types.ParsingStrategy(p.Strategy),
	}
	if p.ModelARN != "" {
		parsing.BedrockFoundationModelConfiguration = &types.BedrockFoundationModelConfiguration{
			ModelArn: aws.String(p.ModelARN),
		}
	}
	return &types.VectorIngestionConfiguration{ParsingConfiguration: parsing}
}

// toUpdateDataSourceInput は更新リクエストを組み立てる
// 取得時の原本があればシードURLだけを差し替え、それ以外の設定はそのまま送り返す
func toUpdateDataSourceInput(knowledgeBaseID string, input knowledgebase.UpdateDataSourceInput) *bedrockagent.UpdateDataSourceInput {
	out := &bedrockagent.UpdateDataSourceInput{
		KnowledgeBaseId:              aws.String(knowledgeBaseID),
		DataSourceId:                 aws.String(input.ID),
		Name:                         aws.String(input.Name),
		Description:                  aws.String(input.Description),
		DataSourceConfiguration:      toDataSourceConfiguration(input.Config),
		VectorIngestionConfiguration: toVectorIngestionConfiguration(input.Parsing),
	}

	remote, ok := input.Remote.(*remoteSource)
	if !ok || remote == nil || remote.config == nil || remote.config.WebConfiguration == nil {
		return out
	}

	out.DataSourceConfiguration = withSeedURLs(remote.config, input.Config.SeedURLs)
	if input.Parsing != nil && remote.vector != nil {
		out.VectorIngestionConfiguration = remote.vector
	}
	out.DataDeletionPolicy = remote.deletion
	out.ServerSideEncryptionConfiguration = remote.encryption
	return out
}

// withSeedURLs は cfg を複製してシードURLだけを置き換える。cfg 自体は変更しない
func withSeedURLs(cfg *types.DataSourceConfiguration, urls []string) *types.DataSourceConfiguration {
	seeds := make([]types.SeedUrl, 0, len(urls))
	for _, u := range urls {
		seeds = append(seeds, types.SeedUrl{Url: aws.String(u)})
	}

	out := *cfg
	web := *cfg.WebConfiguration
	var src types.WebSourceConfiguration
	if web.SourceConfiguration != nil {
		src = *web.SourceConfiguration
	}
	var urlCfg types.UrlConfiguration
	if src.UrlConfiguration != nil {
		urlCfg = *src.UrlConfiguration
	}

	urlCfg.SeedUrls = seeds
	src.UrlConfiguration = &urlCfg
	web.SourceConfiguration = &src
	out.WebConfiguration = &web
	return &out
}

// toIngestionJob はSDKのインジェストジョブをドメインモデルに変換する
func toIngestionJob(job *types.IngestionJob) *knowledgebase.IngestionJob {
	if job == nil {
		return nil
	}
	return &knowledgebase.IngestionJob{
		ID:             aws.ToString(job.IngestionJobId),
		DataSourceID:   aws.ToString(job.DataSourceId),
		Status:         knowledgebase.JobStatus(job.Status),
		FailureReasons: job.FailureReasons,
	}
}
