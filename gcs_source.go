package recordcache

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSSource loads records from JSON objects in a Google Cloud Storage
// bucket under a key prefix.
type GCSSource struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig contains GCS-specific configuration
type GCSConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string // Path to service account JSON file (optional, uses ADC if empty)
}

// NewGCSSource creates a new GCS source
func NewGCSSource(ctx context.Context, cfg GCSConfig) (*GCSSource, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	// If no credentials file, uses Application Default Credentials (ADC)

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSSource{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *GCSSource) Name() string {
	return "gcs:" + s.bucket + "/" + s.prefix
}

func (s *GCSSource) Load(ctx context.Context) ([]Record, error) {
	var records []Record

	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		if !strings.HasSuffix(attrs.Name, ".json") {
			continue
		}

		recs, err := s.loadObject(ctx, attrs.Name)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}

func (s *GCSSource) loadObject(ctx context.Context, name string) ([]Record, error) {
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	recs, err := decodeRecords(data)
	if err != nil {
		return nil, WithContext(err, map[string]interface{}{
			"object": name,
		})
	}
	return recs, nil
}

// Close releases the underlying GCS client
func (s *GCSSource) Close() error {
	return s.client.Close()
}
