package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"account-api/internal/observability"
)

// SMSSender delivers MFA codes. notify.Brevo and notify.LogSender
// satisfy it.
type SMSSender interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

// MfaRepository is the slice of user persistence the challenge flow
// touches. *Repository satisfies it.
type MfaRepository interface {
	SetMfaCode(ctx context.Context, userID int64, code string, expires time.Time) error
	ClearMfaCodeIfMatches(ctx context.Context, userID int64, code string) (bool, error)
}

// MfaChallenge issues and verifies the SMS codes behind the second
// login step. One pending challenge per user; issuing again replaces
// it.
type MfaChallenge struct {
	repo MfaRepository
	sms  SMSSender
	log  *observability.Logger
	ttl  time.Duration

	now func() time.Time
}

func NewMfaChallenge(repo MfaRepository, sms SMSSender, log *observability.Logger, ttl time.Duration) *MfaChallenge {
	return &MfaChallenge{
		repo: repo,
		sms:  sms,
		log:  log,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Issue stores a fresh 6-digit code on the user and dispatches it over
// SMS. Dispatch failure is logged and swallowed so a flaky SMS gateway
// never blocks login; the stored code stays verifiable.
func (m *MfaChallenge) Issue(ctx context.Context, user User) error {
	code, err := newMfaCode()
	if err != nil {
		return err
	}

	expires := m.now().UTC().Add(m.ttl)
	if err := m.repo.SetMfaCode(ctx, user.ID, code, expires); err != nil {
		return err
	}

	message := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(m.ttl.Minutes()))
	if err := m.sms.SendSMS(ctx, user.PhoneNumber, message); err != nil {
		m.log.Error("mfa sms dispatch failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}

	return nil
}

// Verify checks the presented code against the user's pending
// challenge. On success the challenge is cleared in the same statement
// that confirms the code is still pending, so a code verifies at most
// once.
func (m *MfaChallenge) Verify(ctx context.Context, user User, code string) error {
	if code == "" || user.MfaCode == nil || user.MfaCodeExpires == nil {
		return ErrMfaNotChallenged
	}

	// A mismatched code is reported as wrong even when the challenge has
	// also expired.
	if subtle.ConstantTimeCompare([]byte(code), []byte(*user.MfaCode)) != 1 {
		return ErrMfaWrongCode
	}

	// The expiry instant itself is already too late.
	if !m.now().Before(*user.MfaCodeExpires) {
		return ErrMfaCodeExpired
	}

	cleared, err := m.repo.ClearMfaCodeIfMatches(ctx, user.ID, code)
	if err != nil {
		return err
	}
	if !cleared {
		// A concurrent verify or a superseding challenge won the race.
		return ErrMfaWrongCode
	}

	return nil
}

// newMfaCode returns a uniformly random 6-digit code as a string,
// range 100000 to 999999 inclusive.
func newMfaCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate mfa code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

var (
	ErrMfaNotChallenged = errors.New("no pending mfa challenge")
	ErrMfaWrongCode     = errors.New("mfa code does not match")
	ErrMfaCodeExpired   = errors.New("mfa code expired")
)
