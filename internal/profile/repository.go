package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Profile is the user-editable slice of an account.
type Profile struct {
	UserID      int64  `json:"userId"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	SecondName  string `json:"secondName"`
	DOB         string `json:"dob,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	MfaEnabled  bool   `json:"mfaEnabled"`
	Verified    bool   `json:"verified"`
	CreatedAt   string `json:"createdAt"`
}

type UpdateInput struct {
	FirstName   string `json:"firstName"`
	SecondName  string `json:"secondName"`
	DOB         string `json:"dob"`
	PhoneNumber string `json:"phoneNumber"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, userID int64) (Profile, error) {
	var (
		p        Profile
		dob      sql.NullString
		phone    sql.NullString
		verified sql.NullTime
		created  time.Time
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, dob, phone_number, mfa_enabled, verified, created_at
		FROM users
		WHERE id = $1 AND active
	`, userID).Scan(&p.UserID, &p.Email, &p.FirstName, &p.SecondName, &dob, &phone, &p.MfaEnabled, &verified, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Profile{}, err
		}
		return Profile{}, fmt.Errorf("query profile: %w", err)
	}

	p.DOB = dob.String
	p.PhoneNumber = phone.String
	p.Verified = verified.Valid
	p.CreatedAt = created.UTC().Format(time.RFC3339)
	return p, nil
}

func (r *Repository) Update(ctx context.Context, userID int64, in UpdateInput) (Profile, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, dob = $4, phone_number = $5
		WHERE id = $1 AND active
	`, userID, in.FirstName, in.SecondName, nullIfEmpty(in.DOB), nullIfEmpty(in.PhoneNumber))
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Profile{}, fmt.Errorf("update profile rows affected: %w", err)
	}
	if affected == 0 {
		return Profile{}, sql.ErrNoRows
	}

	return r.Get(ctx, userID)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
