package entries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/medrex/glucose-tracker/pkg/interfaces"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
	"github.com/medrex/glucose-tracker/pkg/types"
)

const entriesTable = "glucose_entries"

// orderClauses maps sort keys to ORDER BY clauses. Ties break on id in the key's direction.
var orderClauses = map[types.SortKey]string{
	types.SortTimeAsc:   "taken_at ASC, id ASC",
	types.SortTimeDesc:  "taken_at DESC, id DESC",
	types.SortValueAsc:  "value ASC, id ASC",
	types.SortValueDesc: "value DESC, id DESC",
}

// PostgresRepository implements EntryRepository on PostgreSQL
type PostgresRepository struct {
	db      *sql.DB
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewPostgresRepository creates a repository over an open connection pool
func NewPostgresRepository(db *sql.DB, log *logger.Logger, metrics *monitoring.MetricsCollector) interfaces.EntryRepository {
	return &PostgresRepository{
		db:      db,
		logger:  log,
		metrics: metrics,
	}
}

// Create inserts an entry and returns it with its assigned id
func (r *PostgresRepository) Create(ctx context.Context, entry *types.Entry) (*types.Entry, error) {
	query := `
		INSERT INTO glucose_entries (value, taken_at, description, puncture_spot)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	start := time.Now()
	stored := *entry
	err := r.db.QueryRowContext(ctx, query,
		entry.Value,
		entry.Timestamp.UTC(),
		entry.Description,
		nullString(entry.PunctureSpot),
	).Scan(&stored.ID, &stored.CreatedAt)
	r.observe(ctx, "insert", start, 1, err)

	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}
	return &stored, nil
}

// List returns one page in the requested order
func (r *PostgresRepository) List(ctx context.Context, query *types.ListQuery) ([]*types.Entry, error) {
	order, ok := orderClauses[query.SortBy]
	if !ok {
		order = orderClauses[types.DefaultSortKey]
	}
	stmt := fmt.Sprintf(`
		SELECT id, value, taken_at, description, puncture_spot, created_at
		FROM glucose_entries
		ORDER BY %s
		LIMIT $1 OFFSET $2`, order)

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, stmt, query.Size, (query.Page-1)*query.Size)
	if err != nil {
		r.observe(ctx, "select", start, 0, err)
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	r.observe(ctx, "select", start, int64(len(entries)), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM glucose_entries`).Scan(&n)
	r.observe(ctx, "count", start, 1, err)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// Delete removes an entry by id
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	res, err := r.db.ExecContext(ctx, `DELETE FROM glucose_entries WHERE id = $1`, id)
	if err != nil {
		r.observe(ctx, "delete", start, 0, err)
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	affected, err := res.RowsAffected()
	r.observe(ctx, "delete", start, affected, err)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if affected == 0 {
		return types.NewNotFoundError(types.ErrCodeNotFound, "entry not found")
	}
	return nil
}

// Recent returns up to limit entries, most recent reading first
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*types.Entry, error) {
	return r.List(ctx, &types.ListQuery{SortBy: types.SortTimeDesc, Page: 1, Size: limit})
}

func (r *PostgresRepository) observe(ctx context.Context, op string, start time.Time, rows int64, err error) {
	d := time.Since(start)
	r.metrics.RecordDBQuery(op, d)
	r.logger.DatabaseOperation(ctx, op, entriesTable, d.Milliseconds(), rows, err == nil)
}

func scanEntries(rows *sql.Rows) ([]*types.Entry, error) {
	entries := []*types.Entry{}
	for rows.Next() {
		var (
			e    types.Entry
			spot sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Value, &e.Timestamp, &e.Description, &spot, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.PunctureSpot = spot.String
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
