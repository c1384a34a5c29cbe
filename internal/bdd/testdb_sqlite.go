package bdd

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chirino/memory-journal/internal/plugin/store/sqlite"
	"github.com/chirino/memory-journal/internal/testutil/cucumber"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteTestDB implements cucumber.TestDB for the sqlite store.
type SQLiteTestDB struct {
	DBURL string
}

var _ cucumber.TestDB = (*SQLiteTestDB)(nil)

func (d *SQLiteTestDB) open() (*sql.DB, error) {
	return sql.Open("sqlite3", sqlite.WithPragmas(d.DBURL))
}

func (d *SQLiteTestDB) ClearAll(ctx context.Context) error {
	db, err := d.open()
	if err != nil {
		return fmt.Errorf("cleanup: failed to open: %w", err)
	}
	defer db.Close()

	for _, stmt := range []string{
		"DELETE FROM memories",
		"DELETE FROM social_accounts",
		"DELETE FROM users",
		"DELETE FROM sqlite_sequence",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cleanup: %s: %w", stmt, err)
		}
	}
	return nil
}

func (d *SQLiteTestDB) ExecSQL(ctx context.Context, query string) ([]map[string]interface{}, error) {
	db, err := d.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("SQL query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(columns))
		for i, name := range columns {
			row[name] = sqlValue(values[i])
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
