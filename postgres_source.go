package recordcache

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource loads records from the rows of a SQL query. Column names
// become record field names; the query's row order fixes the canonical
// record order, so queries should carry an ORDER BY.
type PostgresSource struct {
	pool  *pgxpool.Pool
	query string
	args  []interface{}
}

// NewPostgresSource creates a source over the result set of query
func NewPostgresSource(pool *pgxpool.Pool, query string, args ...interface{}) *PostgresSource {
	return &PostgresSource{pool: pool, query: query, args: args}
}

func (s *PostgresSource) Name() string {
	return "postgres"
}

func (s *PostgresSource) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, s.query, s.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()

	var records []Record
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		rec := make(Record, len(fields))
		for i, fd := range fields {
			rec[fd.Name] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
