package warehouse

import (
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

func init() {
	Register("sqlite", openSQLite)
}

// openSQLite handles DSNs of the form "sqlite:/path/to/warehouse.db".
func openSQLite(dsn string) (Warehouse, error) {
	path := strings.TrimPrefix(dsn, "sqlite:")
	if path == "" {
		return nil, fmt.Errorf("sqlite warehouse DSN lacks a path")
	}
	if !strings.Contains(path, "?") {
		path += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite warehouse: %w", err)
	}
	// modernc's driver serializes writes per connection.
	db.SetMaxOpenConns(1)
	return newSQLWarehouse(db, sq.Question)
}
