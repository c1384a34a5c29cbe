package bdd

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/memory-journal/internal/testutil/cucumber"
	"github.com/jackc/pgx/v5"
)

// PostgresTestDB implements cucumber.TestDB for Postgres.
type PostgresTestDB struct {
	DBURL string
}

var _ cucumber.TestDB = (*PostgresTestDB)(nil)

func (p *PostgresTestDB) conn(ctx context.Context) (*pgx.Conn, error) {
	return pgx.Connect(ctx, p.DBURL)
}

func (p *PostgresTestDB) ClearAll(ctx context.Context) error {
	conn, err := p.conn(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: failed to connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "TRUNCATE memories, social_accounts, users RESTART IDENTITY CASCADE"); err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	return nil
}

func (p *PostgresTestDB) ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	conn, err := p.conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SQL query failed: %w", err)
	}
	defer rows.Close()

	result := []map[string]interface{}{}
	fieldDescs := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{})
		for i, fd := range fieldDescs {
			row[fd.Name] = sqlValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// sqlValue normalises driver values so both backends print the same way.
func sqlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	case int32:
		return int64(t)
	default:
		return v
	}
}
