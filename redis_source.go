package recordcache

import (
	"context"
	"os"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisSource loads records from Redis string values holding JSON objects.
// Keys are discovered by SCAN against a match pattern and read in sorted
// key order so the canonical record order is deterministic.
type RedisSource struct {
	client  *redis.Client
	pattern string
	cfg     SourceConfig
}

// NewRedisSource creates a source over keys matching pattern (e.g. "user:*")
func NewRedisSource(client *redis.Client, pattern string) *RedisSource {
	return &RedisSource{
		client:  client,
		pattern: pattern,
		cfg:     DefaultSourceConfig(),
	}
}

// WithConfig overrides the source configuration
func (s *RedisSource) WithConfig(cfg SourceConfig) *RedisSource {
	s.cfg = cfg
	return s
}

func (s *RedisSource) Name() string {
	return "redis:" + s.pattern
}

func (s *RedisSource) Load(ctx context.Context) ([]Record, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}

	var keys []string
	iter := s.client.Scan(ctx, 0, s.pattern, int64(s.cfg.ScanBatchSize)).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	// SCAN order is unspecified; sort for a stable canonical order.
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			// Deleted between SCAN and GET
			continue
		}
		if err != nil {
			return nil, err
		}

		recs, err := decodeRecords(data)
		if err != nil {
			return nil, WithContext(err, map[string]interface{}{
				"key": key,
			})
		}
		records = append(records, recs...)
	}
	return records, nil
}

// RedisOptions returns redis.Options populated from standard environment variables.
//
// Environment variables read (with defaults):
//   - REDIS_ADDR (default: "localhost:6379")
//   - REDIS_PASSWORD (default: "")
//   - REDIS_DB (default: 0)
//
// This is a convenience function for deployments following 12-factor app
// principles. Users can still construct redis.Options manually for advanced
// scenarios (Redis Cluster, Sentinel, custom TLS, connection pools, etc.).
func RedisOptions() *redis.Options {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	password := os.Getenv("REDIS_PASSWORD")

	db := getEnvAsInt("REDIS_DB", 0)

	return &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

// getEnvAsInt reads an integer environment variable with a default fallback.
func getEnvAsInt(key string, defaultVal int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultVal
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultVal
	}

	return value
}
