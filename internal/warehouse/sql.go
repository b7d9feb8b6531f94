package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// sqlWarehouse is the shared staging-then-merge implementation used by the
// sqlite and postgres backends. Staged rows are upserted keyed by
// (file_id, row_no); the merge inserts only rows the warehouse table does not
// already hold, which makes repeated loads of the same file no-ops.
type sqlWarehouse struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

func newSQLWarehouse(db *sql.DB, placeholder sq.PlaceholderFormat) (*sqlWarehouse, error) {
	w := &sqlWarehouse{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
	if err := w.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *sqlWarehouse) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS staging_rows (
			file_id   TEXT    NOT NULL,
			row_no    INTEGER NOT NULL,
			region_id TEXT    NOT NULL,
			content   TEXT    NOT NULL,
			staged_at TIMESTAMP NOT NULL,
			PRIMARY KEY (file_id, row_no)
		)`,
		`CREATE TABLE IF NOT EXISTS warehouse_rows (
			file_id   TEXT    NOT NULL,
			row_no    INTEGER NOT NULL,
			region_id TEXT    NOT NULL,
			content   TEXT    NOT NULL,
			loaded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (file_id, row_no)
		)`,
	}
	for _, stmt := range statements {
		if _, err := w.db.Exec(stmt); err != nil {
			return fmt.Errorf("warehouse migration: %w", err)
		}
	}
	return nil
}

func (w *sqlWarehouse) Load(ctx context.Context, batch StagedBatch) (LoadResult, error) {
	if batch.FileID == "" {
		return LoadResult{}, fmt.Errorf("staged batch lacks a file id")
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return LoadResult{}, fmt.Errorf("begin load transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var bytesProcessed int64
	now := time.Now().UTC()
	for _, row := range batch.Rows {
		bytesProcessed += int64(len(row.Content))
		query, args, buildErr := w.builder.
			Insert("staging_rows").
			Columns("file_id", "row_no", "region_id", "content", "staged_at").
			Values(batch.FileID, row.RowNo, batch.RegionID, row.Content, now).
			Suffix("ON CONFLICT (file_id, row_no) DO UPDATE SET region_id = excluded.region_id, content = excluded.content, staged_at = excluded.staged_at").
			ToSql()
		if buildErr != nil {
			return LoadResult{}, fmt.Errorf("build staging upsert: %w", buildErr)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return LoadResult{}, fmt.Errorf("stage row %d of %s: %w", row.RowNo, batch.FileID, err)
		}
	}

	query, args, err := w.builder.
		Insert("warehouse_rows").
		Columns("file_id", "row_no", "region_id", "content", "loaded_at").
		Select(sq.
			Select("file_id", "row_no", "region_id", "content", "staged_at").
			From("staging_rows").
			Where(sq.Eq{"file_id": batch.FileID}).
			Where("NOT EXISTS (SELECT 1 FROM warehouse_rows w WHERE w.file_id = staging_rows.file_id AND w.row_no = staging_rows.row_no)")).
		ToSql()
	if err != nil {
		return LoadResult{}, fmt.Errorf("build merge: %w", err)
	}
	merged, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return LoadResult{}, fmt.Errorf("merge %s: %w", batch.FileID, err)
	}
	rowsLoaded, err := merged.RowsAffected()
	if err != nil {
		return LoadResult{}, fmt.Errorf("merge row count for %s: %w", batch.FileID, err)
	}

	if err := tx.Commit(); err != nil {
		return LoadResult{}, fmt.Errorf("commit load for %s: %w", batch.FileID, err)
	}

	return LoadResult{
		RowsLoaded:     rowsLoaded,
		BytesProcessed: bytesProcessed,
		CacheHit:       len(batch.Rows) > 0 && rowsLoaded == 0,
	}, nil
}

func (w *sqlWarehouse) RowCount(ctx context.Context, fileID string) (int64, error) {
	query, args, err := w.builder.
		Select("COUNT(*)").
		From("warehouse_rows").
		Where(sq.Eq{"file_id": fileID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build row count: %w", err)
	}
	var count int64
	if err := w.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows for %s: %w", fileID, err)
	}
	return count, nil
}

func (w *sqlWarehouse) Close() error {
	return w.db.Close()
}
