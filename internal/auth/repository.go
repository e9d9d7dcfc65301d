package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `
	id, email, password_hash, password_salt, first_name, last_name, dob,
	role, active, verified, verification_token, reset_token, reset_token_expires,
	mfa_enabled, phone_number, mfa_code, mfa_code_expires, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var (
		u           User
		phoneNumber sql.NullString
		dob         sql.NullString
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.PasswordSalt, &u.FirstName, &u.LastName, &dob,
		&u.Role, &u.Active, &u.Verified, &u.VerificationToken, &u.ResetToken, &u.ResetTokenExpires,
		&u.MfaEnabled, &phoneNumber, &u.MfaCode, &u.MfaCodeExpires, &u.CreatedAt,
	)
	if err != nil {
		return User{}, err
	}
	u.PhoneNumber = phoneNumber.String
	u.DOB = dob.String
	return u, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by id: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE email = $1
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by email: %w", err)
	}
	return user, nil
}

func (r *Repository) GetActiveUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE email = $1 AND active
	`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query active user by email: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByVerificationToken(ctx context.Context, token string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE verification_token = $1
	`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by verification token: %w", err)
	}
	return user, nil
}

func (r *Repository) GetUserByResetToken(ctx context.Context, token string) (User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE reset_token = $1
	`, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("query user by reset token: %w", err)
	}
	return user, nil
}

func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT`+userColumns+`
		FROM users
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

func (r *Repository) CreateUser(ctx context.Context, u User) (User, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (
			email, password_hash, password_salt, first_name, last_name, dob,
			role, active, verification_token, mfa_enabled, phone_number, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, u.Email, u.PasswordHash, u.PasswordSalt, u.FirstName, u.LastName, nullIfEmpty(u.DOB),
		u.Role, u.Active, u.VerificationToken, u.MfaEnabled, nullIfEmpty(u.PhoneNumber), u.CreatedAt).
		Scan(&u.ID)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}

	return u, nil
}

// SetMfaCode stores a pending challenge, superseding any previous one.
func (r *Repository) SetMfaCode(ctx context.Context, userID int64, code string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_code = $2, mfa_code_expires = $3
		WHERE id = $1
	`, userID, code, expires.UTC())
	if err != nil {
		return fmt.Errorf("set mfa code: %w", err)
	}
	return nil
}

// ClearMfaCodeIfMatches clears the pending challenge only when the
// stored code still equals the presented one. The single gated UPDATE is
// what makes verify-and-clear atomic; false means another request got
// there first or the code never matched.
func (r *Repository) ClearMfaCodeIfMatches(ctx context.Context, userID int64, code string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_code = NULL, mfa_code_expires = NULL
		WHERE id = $1 AND mfa_code = $2
	`, userID, code)
	if err != nil {
		return false, fmt.Errorf("clear mfa code: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clear mfa code rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) EnableMfa(ctx context.Context, userID int64, phoneNumber string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_enabled = TRUE, phone_number = $2
		WHERE id = $1
	`, userID, phoneNumber)
	if err != nil {
		return false, fmt.Errorf("enable mfa: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enable mfa rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) DisableMfa(ctx context.Context, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_enabled = FALSE, mfa_code = NULL, mfa_code_expires = NULL
		WHERE id = $1
	`, userID)
	if err != nil {
		return false, fmt.Errorf("disable mfa: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("disable mfa rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) MarkVerified(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET verified = $2, verification_token = NULL
		WHERE id = $1
	`, userID, at.UTC())
	if err != nil {
		return fmt.Errorf("mark user verified: %w", err)
	}
	return nil
}

func (r *Repository) SetResetToken(ctx context.Context, userID int64, token string, expires time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET reset_token = $2, reset_token_expires = $3
		WHERE id = $1
	`, userID, token, expires.UTC())
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	return nil
}

// UpdatePassword replaces hash and salt and clears any pending reset token.
func (r *Repository) UpdatePassword(ctx context.Context, userID int64, hash, salt string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, password_salt = $3, reset_token = NULL, reset_token_expires = NULL
		WHERE id = $1
	`, userID, hash, salt)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (r *Repository) ListRefreshTokens(ctx context.Context) ([]RefreshTokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, token_hash, token_salt, created_at, expires_at
		FROM refresh_tokens
	`)
	if err != nil {
		return nil, fmt.Errorf("query refresh tokens: %w", err)
	}
	defer rows.Close()

	records := make([]RefreshTokenRecord, 0)
	for rows.Next() {
		var rec RefreshTokenRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.TokenSalt, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan refresh token: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh tokens: %w", err)
	}

	return records, nil
}

// ReplaceRefreshToken swaps the user's refresh-token slot in one
// transaction: consume the presented record (when rotating on use),
// drop every other row for the user, insert the replacement.
// consumeID == "" is the login path where nothing is being redeemed.
// ErrInvalidRefreshToken reports that a concurrent refresh already
// consumed the presented record; exactly one caller wins.
func (r *Repository) ReplaceRefreshToken(ctx context.Context, userID int64, consumeID, hash, salt string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	now := time.Now().UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin refresh rotation tx: %w", err)
	}
	defer tx.Rollback()

	if consumeID != "" {
		res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, consumeID)
		if err != nil {
			return fmt.Errorf("consume refresh token: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("consume refresh token rows affected: %w", err)
		}
		if affected == 0 {
			return ErrInvalidRefreshToken
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete refresh tokens for user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, token_salt, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id.String(), userID, hash, salt, now, expiresAt.UTC()); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refresh rotation tx: %w", err)
	}

	return nil
}

func (r *Repository) DeleteRefreshTokensForUser(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens for user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete refresh tokens rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens
		WHERE user_id = $1 AND expires_at < NOW()
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}
	return affected, nil
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	ClearedMfaCodes      int64 `json:"cleared_mfa_codes"`
	ClearedResetTokens   int64 `json:"cleared_reset_tokens"`
}

// CleanupStaleAuthData is invoked by the maintenance endpoint, not on a
// background schedule.
func (r *Repository) CleanupStaleAuthData(ctx context.Context, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	var result CleanupResult

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM refresh_tokens
			WHERE expires_at < NOW()
			ORDER BY created_at ASC
			LIMIT $1
		)
		DELETE FROM refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, batchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("delete stale refresh tokens: %w", err)
	}
	if result.DeletedRefreshTokens, err = res.RowsAffected(); err != nil {
		return CleanupResult{}, fmt.Errorf("stale refresh tokens rows affected: %w", err)
	}

	res, err = r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_code = NULL, mfa_code_expires = NULL
		WHERE mfa_code IS NOT NULL AND mfa_code_expires < NOW()
	`)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear stale mfa codes: %w", err)
	}
	if result.ClearedMfaCodes, err = res.RowsAffected(); err != nil {
		return CleanupResult{}, fmt.Errorf("stale mfa codes rows affected: %w", err)
	}

	res, err = r.db.ExecContext(ctx, `
		UPDATE users
		SET reset_token = NULL, reset_token_expires = NULL
		WHERE reset_token IS NOT NULL AND reset_token_expires < NOW()
	`)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("clear stale reset tokens: %w", err)
	}
	if result.ClearedResetTokens, err = res.RowsAffected(); err != nil {
		return CleanupResult{}, fmt.Errorf("stale reset tokens rows affected: %w", err)
	}

	return result, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var ErrInvalidRefreshToken = errors.New("invalid refresh token")
