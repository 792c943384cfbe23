package recordcache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// DirSource loads records from JSON files in a local directory. Each .json
// file may hold a single record object or an array of them. Files are read
// in lexical name order, which fixes the canonical record order.
type DirSource struct {
	dir string
}

// NewDirSource creates a source over a directory of JSON files
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Name() string {
	return "dir:" + s.dir
}

func (s *DirSource) Load(ctx context.Context) ([]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		recs, err := decodeRecords(data)
		if err != nil {
			return nil, WithContext(err, map[string]interface{}{
				"file": entry.Name(),
			})
		}
		records = append(records, recs...)
	}
	return records, nil
}
