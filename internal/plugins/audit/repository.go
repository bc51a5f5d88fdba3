package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository defines the data access contract for the audit trail.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type Repository interface {
	// Insert appends a new audit entry. The table is append-only: there is
	// no update or delete path.
	Insert(ctx context.Context, entry *Entry) error

	// List returns paginated audit entries, most recent first, plus the
	// total count for pagination.
	List(ctx context.Context, limit, offset int) ([]Entry, int, error)
}

// auditRepository implements Repository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewRepository creates a new repository backed by the given DB pool.
func NewRepository(db *sql.DB) Repository {
	return &auditRepository{db: db}
}

// Insert appends a new audit entry.
func (r *auditRepository) Insert(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO auth_audit (action, username, user_id, reason, ip_address, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var userID *string
	if entry.UserID != nil {
		s := entry.UserID.String()
		userID = &s
	}

	result, err := r.db.ExecContext(ctx, query,
		entry.Action, entry.Username, userID,
		entry.Reason, entry.IPAddress, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	entry.ID = id

	return nil
}

// List returns audit entries ordered by most recent first.
func (r *auditRepository) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	countQuery := `SELECT COUNT(*) FROM auth_audit`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting audit entries: %w", err)
	}

	query := `SELECT id, action, username, user_id, reason, ip_address, created_at
	          FROM auth_audit
	          ORDER BY created_at DESC, id DESC
	          LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var userID sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.Username, &userID, &e.Reason, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning audit row: %w", err)
		}
		if userID.Valid {
			parsed, err := uuid.Parse(userID.String)
			if err != nil {
				return nil, 0, fmt.Errorf("parsing audit user id %q: %w", userID.String, err)
			}
			e.UserID = &parsed
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}
