package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jinford/ato-loader/internal/core/fixture"
	"github.com/jinford/ato-loader/pkg/config"
)

// API は Bucket が利用する S3 の操作
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Bucket はテナントのフィクスチャを S3 バケットとやり取りする
type Bucket struct {
	api    API
	logger *slog.Logger
}

// コンパイル時の型チェック
var (
	_ fixture.RemoteFetcher = (*Bucket)(nil)
	_ fixture.RemoteStore   = (*Bucket)(nil)
)

// BucketOption は Bucket のオプション設定
type BucketOption func(*Bucket)

// WithLogger は Bucket にロガーを設定する
func WithLogger(logger *slog.Logger) BucketOption {
	return func(b *Bucket) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New は設定から S3 クライアントを作成する
func New(ctx context.Context, awsCfg config.AWSConfig, opts ...BucketOption) (*Bucket, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(awsCfg.Region),
	}
	if awsCfg.HasStaticCredentials() {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(awsCfg.AccessKeyID, awsCfg.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return NewWithAPI(s3.NewFromConfig(cfg), opts...), nil
}

// NewWithAPI は任意の API 実装から Bucket を作成する
func NewWithAPI(api API, opts ...BucketOption) *Bucket {
	b := &Bucket{api: api, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FetchFixtures はバケット直下の *.json を destDir にダウンロードする
func (b *Bucket) FetchFixtures(ctx context.Context, bucket, destDir string) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})

	count := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return count, fmt.Errorf("failed to list objects in %s: %w", bucket, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			name := path.Base(key)
			if err := b.download(ctx, bucket, key, filepath.Join(destDir, name)); err != nil {
				return count, err
			}
			b.logger.Debug("フィクスチャをダウンロードしました", "bucket", bucket, "key", key)
			count++
		}
	}

	if count == 0 {
		return 0, fmt.Errorf("bucket %s: %w", bucket, fixture.ErrNoFixtures)
	}
	return count, nil
}

func (b *Bucket) download(ctx context.Context, bucket, key, dest string) (err error) {
	out, err := b.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", dest, cerr)
		}
	}()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

// PutFixtures は srcDir 内の *.json を prefix 配下にアップロードする
func (b *Bucket) PutFixtures(ctx context.Context, bucket, prefix, srcDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(srcDir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list fixtures in %s: %w", srcDir, err)
	}
	if len(matches) == 0 {
		return 0, fmt.Errorf("%s: %w", srcDir, fixture.ErrNoFixtures)
	}

	count := 0
	for _, file := range matches {
		key := path.Join(prefix, filepath.Base(file))
		if err := b.upload(ctx, bucket, key, file); err != nil {
			return count, err
		}
		b.logger.Debug("フィクスチャをアップロードしました", "bucket", bucket, "key", key)
		count++
	}
	return count, nil
}

func (b *Bucket) upload(ctx context.Context, bucket, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer f.Close()

	_, err = b.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
