package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"
)

// TokenRepository is the persistence the refresh-token store needs.
// *Repository satisfies it.
type TokenRepository interface {
	ListRefreshTokens(ctx context.Context) ([]RefreshTokenRecord, error)
	ReplaceRefreshToken(ctx context.Context, userID int64, consumeID, hash, salt string, expiresAt time.Time) error
	DeleteRefreshTokensForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, userID int64) (int64, error)
}

// RefreshTokenStore manages the single refresh-token slot each user
// has. Raw token values exist only in transit; rows carry a salted
// PBKDF2 hash, so resolving a presented token is a linear scan that
// re-derives each candidate's hash under its own salt.
type RefreshTokenStore struct {
	repo   TokenRepository
	hasher *PasswordHasher
	ttl    time.Duration

	now func() time.Time
}

func NewRefreshTokenStore(repo TokenRepository, hasher *PasswordHasher, ttl time.Duration) *RefreshTokenStore {
	return &RefreshTokenStore{
		repo:   repo,
		hasher: hasher,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue mints a fresh refresh token for the user, replacing whatever
// the user held before. Returns the raw value to hand to the client.
func (s *RefreshTokenStore) Issue(ctx context.Context, userID int64) (string, error) {
	return s.replace(ctx, userID, "")
}

// Rotate consumes the presented record and issues its replacement in
// one transaction. When two requests race on the same record, exactly
// one succeeds; the loser gets ErrInvalidRefreshToken.
func (s *RefreshTokenStore) Rotate(ctx context.Context, rec RefreshTokenRecord) (string, error) {
	return s.replace(ctx, rec.UserID, rec.ID)
}

func (s *RefreshTokenStore) replace(ctx context.Context, userID int64, consumeID string) (string, error) {
	raw, err := NewOpaqueSecret(refreshSecretBytes)
	if err != nil {
		return "", err
	}

	salt, err := s.hasher.NewSalt()
	if err != nil {
		return "", err
	}
	hash, err := s.hasher.Hash(raw, salt)
	if err != nil {
		return "", fmt.Errorf("hash refresh token: %w", err)
	}

	expiresAt := s.now().UTC().Add(s.ttl)
	if err := s.repo.ReplaceRefreshToken(ctx, userID, consumeID, hash, salt, expiresAt); err != nil {
		return "", err
	}

	return raw, nil
}

// Resolve finds the stored record matching a presented raw token.
// Every candidate is re-hashed under its own salt and compared in
// constant time; ok is false when nothing matches.
func (s *RefreshTokenStore) Resolve(ctx context.Context, raw string) (RefreshTokenRecord, bool, error) {
	if raw == "" {
		return RefreshTokenRecord{}, false, nil
	}

	records, err := s.repo.ListRefreshTokens(ctx)
	if err != nil {
		return RefreshTokenRecord{}, false, err
	}

	for _, rec := range records {
		derived, err := s.hasher.Hash(raw, rec.TokenSalt)
		if err != nil {
			return RefreshTokenRecord{}, false, fmt.Errorf("hash refresh token candidate: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(derived), []byte(rec.TokenHash)) == 1 {
			return rec, true, nil
		}
	}

	return RefreshTokenRecord{}, false, nil
}

// Expired reports whether the record's lifetime has passed. The
// boundary instant itself still counts as live.
func (s *RefreshTokenStore) Expired(rec RefreshTokenRecord) bool {
	return s.now().After(rec.ExpiresAt)
}

// RemoveAll drops every token the user holds. Removing zero rows is
// still success, which is what makes logout idempotent.
func (s *RefreshTokenStore) RemoveAll(ctx context.Context, userID int64) error {
	_, err := s.repo.DeleteRefreshTokensForUser(ctx, userID)
	return err
}

// PurgeExpired removes the user's expired rows. Called after a
// successful rotation; failure there should not undo the rotation, so
// callers may log and continue.
func (s *RefreshTokenStore) PurgeExpired(ctx context.Context, userID int64) (int64, error) {
	return s.repo.DeleteExpiredRefreshTokens(ctx, userID)
}
