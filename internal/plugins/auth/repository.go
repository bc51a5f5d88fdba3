package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/supplygate/backend/internal/apperror"
)

// UserRepository defines the data access contract for user operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindByIdentifier matches either username or email in one lookup.
	// Login accepts both interchangeably.
	FindByIdentifier(ctx context.Context, identifier string) (*User, error)

	UsernameOrEmailExists(ctx context.Context, username, email string) (bool, error)

	// Two-factor challenge state.
	FindByTwoFactorSession(ctx context.Context, sessionID string) (*User, error)
	SaveTwoFactorChallenge(ctx context.Context, userID uuid.UUID, codeHash, sessionID string, expiresAt time.Time) error
	IncrementTwoFactorAttempts(ctx context.Context, sessionID string) (int, error)
	ClearTwoFactorChallenge(ctx context.Context, userID uuid.UUID) error

	// Password reset state.
	FindByResetToken(ctx context.Context, token string) (*User, error)
	SaveResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// userColumns is the column list shared by all single-user queries.
const userColumns = `id, username, email, password_hash, role,
	first_name, last_name, phone_number, company_name,
	password_reset_token, password_reset_expiry,
	two_factor_code_hash, two_factor_code_expiry, two_factor_session_id, two_factor_attempts,
	created_at`

// scanUser scans a full user row from the given row scanner.
func scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var id string
	err := row.Scan(
		&id,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.FirstName,
		&user.LastName,
		&user.PhoneNumber,
		&user.CompanyName,
		&user.PasswordResetToken,
		&user.PasswordResetExpiry,
		&user.TwoFactorCodeHash,
		&user.TwoFactorCodeExpiry,
		&user.TwoFactorSessionID,
		&user.TwoFactorAttempts,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parsing user id %q: %w", id, err)
	}

	return user, nil
}

// Create inserts a new user row into the users table.
func (r *userRepository) Create(ctx context.Context, user *User) error {
	query := `INSERT INTO users (id, username, email, password_hash, role,
	                             first_name, last_name, phone_number, company_name, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID.String(),
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastName,
		user.PhoneNumber,
		user.CompanyName,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}

	return user, nil
}

// FindByIdentifier retrieves a user by username or email in a single query.
// Returns apperror.NotFound if neither matches.
func (r *userRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = ? OR email = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, identifier, identifier))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by identifier: %w", err)
	}

	return user, nil
}

// UsernameOrEmailExists returns true if any user already holds the given
// username or email. Used during registration before hashing the password.
func (r *userRepository) UsernameOrEmailExists(ctx context.Context, username, email string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE username = ? OR email = ?)`

	var exists bool
	err := r.db.QueryRowContext(ctx, query, username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username/email existence: %w", err)
	}

	return exists, nil
}

// --- Two-Factor Challenge State ---

// FindByTwoFactorSession retrieves the user holding the given challenge
// session. Returns apperror.NotFound if no user holds it.
func (r *userRepository) FindByTwoFactorSession(ctx context.Context, sessionID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE two_factor_session_id = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("no challenge for session")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by 2fa session: %w", err)
	}

	return user, nil
}

// SaveTwoFactorChallenge stores a fresh challenge on the user row in a single
// statement. Any previous pending challenge is overwritten, which silently
// invalidates its code and session.
func (r *userRepository) SaveTwoFactorChallenge(ctx context.Context, userID uuid.UUID, codeHash, sessionID string, expiresAt time.Time) error {
	query := `UPDATE users
	          SET two_factor_code_hash = ?, two_factor_code_expiry = ?,
	              two_factor_session_id = ?, two_factor_attempts = 0
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, codeHash, expiresAt, sessionID, userID.String())
	if err != nil {
		return fmt.Errorf("saving 2fa challenge: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}

	return nil
}

// IncrementTwoFactorAttempts bumps the attempt counter atomically and returns
// the new value. Concurrent wrong guesses each get a distinct count, so the
// limit cannot be bypassed by racing requests.
func (r *userRepository) IncrementTwoFactorAttempts(ctx context.Context, sessionID string) (int, error) {
	update := `UPDATE users SET two_factor_attempts = two_factor_attempts + 1
	           WHERE two_factor_session_id = ?`

	result, err := r.db.ExecContext(ctx, update, sessionID)
	if err != nil {
		return 0, fmt.Errorf("incrementing 2fa attempts: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return 0, apperror.NewNotFound("no challenge for session")
	}

	var attempts int
	query := `SELECT two_factor_attempts FROM users WHERE two_factor_session_id = ?`
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("reading 2fa attempts: %w", err)
	}

	return attempts, nil
}

// ClearTwoFactorChallenge wipes all challenge state from the user row.
func (r *userRepository) ClearTwoFactorChallenge(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users
	          SET two_factor_code_hash = NULL, two_factor_code_expiry = NULL,
	              two_factor_session_id = NULL, two_factor_attempts = 0
	          WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, userID.String())
	if err != nil {
		return fmt.Errorf("clearing 2fa challenge: %w", err)
	}

	return nil
}

// --- Password Reset State ---

// FindByResetToken retrieves the user holding the given reset token.
// Returns apperror.NotFound if no user holds it.
func (r *userRepository) FindByResetToken(ctx context.Context, token string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE password_reset_token = ?`

	user, err := scanUser(r.db.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("invalid or expired reset token")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by reset token: %w", err)
	}

	return user, nil
}

// SaveResetToken stores a pending reset token on the user row. Overwrites
// any previous pending token.
func (r *userRepository) SaveResetToken(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	query := `UPDATE users SET password_reset_token = ?, password_reset_expiry = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, token, expiresAt, userID.String())
	if err != nil {
		return fmt.Errorf("saving reset token: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}

	return nil
}

// ClearResetToken wipes any pending reset token from the user row.
func (r *userRepository) ClearResetToken(ctx context.Context, userID uuid.UUID) error {
	query := `UPDATE users SET password_reset_token = NULL, password_reset_expiry = NULL WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, userID.String())
	if err != nil {
		return fmt.Errorf("clearing reset token: %w", err)
	}

	return nil
}

// UpdatePassword sets a new password hash and invalidates any pending reset
// token in the same statement, so the token can never be replayed after use.
func (r *userRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `UPDATE users
	          SET password_hash = ?, password_reset_token = NULL, password_reset_expiry = NULL
	          WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, passwordHash, userID.String())
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return apperror.NewNotFound("user not found")
	}

	return nil
}
