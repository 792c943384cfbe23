package recordcache

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Source loads records from JSON objects in an S3 (or S3-compatible)
// bucket. Objects are listed under a key prefix and read in listing order,
// which S3 returns lexically by key.
type S3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Source creates a source over bucket objects under prefix
func NewS3Source(client *s3.Client, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

// NewS3SourceFromEnv creates a source using the default AWS credential
// chain (environment, shared config, instance role)
func NewS3SourceFromEnv(ctx context.Context, bucket, prefix string) (*S3Source, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Source(s3.NewFromConfig(cfg), bucket, prefix), nil
}

// S3CompatibleConfig contains configuration for S3-compatible object
// stores such as MinIO
type S3CompatibleConfig struct {
	Endpoint        string // e.g., "localhost:9000"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	Prefix          string
}

// NewS3CompatibleSource creates a source against an S3-compatible endpoint
func NewS3CompatibleSource(cfg S3CompatibleConfig) *S3Source {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)

	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(endpoint),
		Region:       "us-east-1", // MinIO doesn't enforce regions, but SDK requires it
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true, // path-style addressing: http://host/bucket/key
	})

	return NewS3Source(client, cfg.Bucket, cfg.Prefix)
}

func (s *S3Source) Name() string {
	return "s3:" + s.bucket + "/" + s.prefix
}

func (s *S3Source) Load(ctx context.Context) ([]Record, error) {
	var records []Record

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, ".json") {
				continue
			}

			recs, err := s.loadObject(ctx, key)
			if err != nil {
				return nil, err
			}
			records = append(records, recs...)
		}
	}
	return records, nil
}

func (s *S3Source) loadObject(ctx context.Context, key string) ([]Record, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = result.Body.Close() }() //nolint:errcheck // Deferred close

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, err
	}

	recs, err := decodeRecords(data)
	if err != nil {
		return nil, WithContext(err, map[string]interface{}{
			"key": key,
		})
	}
	return recs, nil
}
