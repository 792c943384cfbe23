package recordcache

import "time"

// Configuration constants for record sources
const (
	DefaultLoadTimeout   = 30 * time.Second
	DefaultScanBatchSize = 100 // Redis SCAN page size
)

// SourceConfig holds settings shared by record sources
type SourceConfig struct {
	LoadTimeout   time.Duration
	ScanBatchSize int
}

// DefaultSourceConfig returns the default source configuration
func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		LoadTimeout:   DefaultLoadTimeout,
		ScanBatchSize: DefaultScanBatchSize,
	}
}

// Validate checks if the SourceConfig is valid
func (c SourceConfig) Validate() error {
	if c.LoadTimeout <= 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "LoadTimeout",
			"value":  c.LoadTimeout,
			"reason": "must be positive",
		})
	}
	if c.ScanBatchSize <= 0 {
		return WithContext(ErrInvalidConfig, map[string]interface{}{
			"field":  "ScanBatchSize",
			"value":  c.ScanBatchSize,
			"reason": "must be positive",
		})
	}
	return nil
}
