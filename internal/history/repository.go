package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// timestampLayout is fixed width so timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one activity_log row.
type Entry struct {
	ID           int64     `json:"id"`
	Action       string    `json:"action"`
	Details      string    `json:"details"`
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	DeviceSerial string    `json:"device_serial,omitempty"`
	RunID        string    `json:"run_id,omitempty"`
}

// Filter controls which entries List returns.
type Filter struct {
	DeviceSerial string // optional
	Action       string // optional
	Limit        int    // default 50, max 200
	Offset       int
}

// ListResult is a page of entries, newest first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// Repository defines activity log storage.
type Repository interface {
	Record(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository stores entries in the activity_log table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over db.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts e and sets its ID. A zero Timestamp is set to now.
func (r *SQLiteRepository) Record(ctx context.Context, e *Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO activity_log (action, details, status, timestamp, device_serial, run_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.Action, e.Details, e.Status,
		e.Timestamp.UTC().Format(timestampLayout),
		e.DeviceSerial, e.RunID,
	)
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading activity id: %w", err)
	}
	e.ID = id
	return nil
}

// List returns entries matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceSerial != "" {
		conditions = append(conditions, "device_serial = ?")
		args = append(args, filter.DeviceSerial)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM activity_log " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting activity: %w", err)
	}

	query := "SELECT id, action, details, status, timestamp, device_serial, run_id FROM activity_log " + //nolint:gosec // as above
		where + " ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.Action, &e.Details, &e.Status, &ts, &e.DeviceSerial, &e.RunID); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		t, err := time.Parse(timestampLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing activity timestamp %q: %w", ts, err)
		}
		e.Timestamp = t
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes entries older than before and returns how many went.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM activity_log WHERE timestamp < ?",
		before.UTC().Format(timestampLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned activity: %w", err)
	}
	return n, nil
}
