package auth

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-api/internal/observability"
)

// memRepo is an in-memory stand-in for *Repository used across the
// package tests. It mirrors the database semantics the service relies
// on, sql.ErrNoRows included.
type memRepo struct {
	mu     sync.Mutex
	users  map[int64]User
	nextID int64

	tokens    []RefreshTokenRecord
	nextToken int
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[int64]User{}, nextID: 1}
}

func (m *memRepo) addUser(u User) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = m.nextID
	m.nextID++
	m.users[u.ID] = u
	return u
}

func (m *memRepo) user(id int64) User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memRepo) GetUserByID(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memRepo) GetUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (m *memRepo) GetActiveUserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && u.Active {
			return u, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (m *memRepo) GetUserByVerificationToken(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			return u, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (m *memRepo) GetUserByResetToken(_ context.Context, token string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			return u, nil
		}
	}
	return User{}, sql.ErrNoRows
}

func (m *memRepo) ListUsers(_ context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *memRepo) CountUsers(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *memRepo) CreateUser(_ context.Context, u User) (User, error) {
	return m.addUser(u), nil
}

func (m *memRepo) EnableMfa(_ context.Context, userID int64, phoneNumber string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	u.MfaEnabled = true
	u.PhoneNumber = phoneNumber
	m.users[userID] = u
	return true, nil
}

func (m *memRepo) DisableMfa(_ context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return false, nil
	}
	u.MfaEnabled = false
	u.MfaCode = nil
	u.MfaCodeExpires = nil
	m.users[userID] = u
	return true, nil
}

func (m *memRepo) MarkVerified(_ context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.Verified = &at
	u.VerificationToken = nil
	m.users[userID] = u
	return nil
}

func (m *memRepo) SetResetToken(_ context.Context, userID int64, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.ResetToken = &token
	u.ResetTokenExpires = &expires
	m.users[userID] = u
	return nil
}

func (m *memRepo) UpdatePassword(_ context.Context, userID int64, hash, salt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.PasswordHash = hash
	u.PasswordSalt = salt
	u.ResetToken = nil
	u.ResetTokenExpires = nil
	m.users[userID] = u
	return nil
}

func (m *memRepo) SetMfaCode(_ context.Context, userID int64, code string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.users[userID]
	u.MfaCode = &code
	u.MfaCodeExpires = &expires
	m.users[userID] = u
	return nil
}

func (m *memRepo) ClearMfaCodeIfMatches(_ context.Context, userID int64, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.MfaCode == nil || *u.MfaCode != code {
		return false, nil
	}
	u.MfaCode = nil
	u.MfaCodeExpires = nil
	m.users[userID] = u
	return true, nil
}

func (m *memRepo) ListRefreshTokens(_ context.Context) ([]RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RefreshTokenRecord(nil), m.tokens...), nil
}

func (m *memRepo) ReplaceRefreshToken(_ context.Context, userID int64, consumeID, hash, salt string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if consumeID != "" {
		found := false
		for i, rec := range m.tokens {
			if rec.ID == consumeID {
				m.tokens = append(m.tokens[:i], m.tokens[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			return ErrInvalidRefreshToken
		}
	}

	kept := m.tokens[:0]
	for _, rec := range m.tokens {
		if rec.UserID != userID {
			kept = append(kept, rec)
		}
	}
	m.tokens = kept

	m.nextToken++
	m.tokens = append(m.tokens, RefreshTokenRecord{
		ID:        fmt.Sprintf("rec-%d", m.nextToken),
		UserID:    userID,
		TokenHash: hash,
		TokenSalt: salt,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: expiresAt,
	})
	return nil
}

func (m *memRepo) DeleteRefreshTokensForUser(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	kept := m.tokens[:0]
	for _, rec := range m.tokens {
		if rec.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.tokens = kept
	return deleted, nil
}

func (m *memRepo) DeleteExpiredRefreshTokens(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	var deleted int64
	kept := m.tokens[:0]
	for _, rec := range m.tokens {
		if rec.UserID == userID && rec.ExpiresAt.Before(now) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	m.tokens = kept
	return deleted, nil
}

type sentSMS struct {
	To      string
	Message string
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []sentSMS
	err  error
}

func (f *fakeSMS) SendSMS(_ context.Context, phoneNumber, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentSMS{To: phoneNumber, Message: message})
	return nil
}

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

type serviceFixture struct {
	service *Service
	repo    *memRepo
	store   *RefreshTokenStore
	mfa     *MfaChallenge
	codec   *TokenCodec
	hasher  *PasswordHasher
	sms     *fakeSMS
	email   *fakeEmail
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	repo := newMemRepo()
	hasher := NewPasswordHasher()
	codec := NewTokenCodec(testSigningKey, "account-api", "account-web", 15*time.Minute)
	store := NewRefreshTokenStore(repo, hasher, 14*24*time.Hour)
	sms := &fakeSMS{}
	email := &fakeEmail{}
	logger := observability.NewLogger()
	mfa := NewMfaChallenge(repo, sms, logger, 5*time.Minute)
	service := NewService(repo, store, mfa, codec, hasher, email, logger)

	return &serviceFixture{
		service: service,
		repo:    repo,
		store:   store,
		mfa:     mfa,
		codec:   codec,
		hasher:  hasher,
		sms:     sms,
		email:   email,
	}
}

func (f *serviceFixture) seedUser(t *testing.T, email, password string, mutate func(*User)) User {
	t.Helper()

	salt, err := f.hasher.NewSalt()
	require.NoError(t, err)
	hash, err := f.hasher.Hash(password, salt)
	require.NoError(t, err)

	u := User{
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		FirstName:    "Jane",
		LastName:     "Doe",
		Role:         RoleUser,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if mutate != nil {
		mutate(&u)
	}
	return f.repo.addUser(u)
}

func TestLoginMissingCredentials(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Login(context.Background(), "", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = f.service.Login(context.Background(), "jane@example.com", "   ")
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Login(context.Background(), "nobody@example.com", "whatever1234")
	assert.ErrorIs(t, err, ErrUnknownEmail)
}

func TestLoginInactiveAccountLooksUnknown(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) { u.Active = false })

	_, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	assert.ErrorIs(t, err, ErrUnknownEmail)
}

func TestLoginWrongPassword(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	_, err := f.service.Login(context.Background(), "jane@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestLoginWithoutMfaIssuesTokens(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	result, err := f.service.Login(context.Background(), "Jane@Example.com ", "pass-word-123")
	require.NoError(t, err)

	assert.False(t, result.MfaRequired)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)
	assert.Equal(t, user.ID, result.User.UserID)

	claims, ok := f.codec.ValidateAccessToken(result.Tokens.AccessToken)
	require.True(t, ok)
	id, ok := claims.UserID()
	require.True(t, ok)
	assert.Equal(t, user.ID, id)
}

func TestLoginWithMfaWithholdsTokens(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) {
		u.MfaEnabled = true
		u.PhoneNumber = "+14155550100"
	})

	result, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	require.NoError(t, err)

	assert.True(t, result.MfaRequired)
	assert.Empty(t, result.Tokens.AccessToken)
	assert.Empty(t, result.Tokens.RefreshToken)

	stored := f.repo.user(user.ID)
	require.NotNil(t, stored.MfaCode)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), *stored.MfaCode)

	require.Len(t, f.sms.sent, 1)
	assert.Equal(t, "+14155550100", f.sms.sent[0].To)
	assert.Contains(t, f.sms.sent[0].Message, *stored.MfaCode)
}

func TestLoginMfaWithoutPhoneIssuesTokens(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) { u.MfaEnabled = true })

	result, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	require.NoError(t, err)

	assert.False(t, result.MfaRequired)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.Empty(t, f.sms.sent)
}

func TestVerifyMfaIssuesTokens(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) {
		u.MfaEnabled = true
		u.PhoneNumber = "+14155550100"
	})

	_, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	require.NoError(t, err)
	code := *f.repo.user(user.ID).MfaCode

	result, err := f.service.VerifyMfaAndIssue(context.Background(), "jane@example.com", code)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Tokens.AccessToken)
	assert.NotEmpty(t, result.Tokens.RefreshToken)

	// The code is single use.
	_, err = f.service.VerifyMfaAndIssue(context.Background(), "jane@example.com", code)
	assert.ErrorIs(t, err, ErrMfaNotChallenged)
}

func TestVerifyMfaWrongCode(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) {
		u.MfaEnabled = true
		u.PhoneNumber = "+14155550100"
	})

	_, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	require.NoError(t, err)

	code := *f.repo.user(user.ID).MfaCode
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, err = f.service.VerifyMfaAndIssue(context.Background(), "jane@example.com", wrong)
	assert.ErrorIs(t, err, ErrMfaWrongCode)
}

func TestRefreshRotatesToken(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	login, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	require.NoError(t, err)

	refreshed, err := f.service.Refresh(context.Background(), login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Tokens.AccessToken)
	assert.NotEqual(t, login.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	// The old raw token was consumed by the rotation.
	_, err = f.service.Refresh(context.Background(), login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// The replacement still works.
	_, err = f.service.Refresh(context.Background(), refreshed.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Refresh(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = f.service.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	login, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	require.NoError(t, err)

	f.repo.mu.Lock()
	u := f.repo.users[user.ID]
	u.Active = false
	f.repo.users[user.ID] = u
	f.repo.mu.Unlock()

	_, err = f.service.Refresh(context.Background(), login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	login, err := f.service.Login(context.Background(), "jane@example.com", "pass-word-123")
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(context.Background(), user.ID))
	require.NoError(t, f.service.Logout(context.Background(), user.ID))

	_, err = f.service.Refresh(context.Background(), login.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRegisterFirstAccountBecomesAdmin(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Register(context.Background(), RegisterInput{
		Email:           "first@example.com",
		Password:        "pass-word-123",
		ConfirmPassword: "pass-word-123",
		FirstName:       "First",
	})
	require.NoError(t, err)

	_, err = f.service.Register(context.Background(), RegisterInput{
		Email:           "second@example.com",
		Password:        "pass-word-123",
		ConfirmPassword: "pass-word-123",
		FirstName:       "Second",
	})
	require.NoError(t, err)

	first, err := f.repo.GetUserByEmail(context.Background(), "first@example.com")
	require.NoError(t, err)
	second, err := f.repo.GetUserByEmail(context.Background(), "second@example.com")
	require.NoError(t, err)

	assert.Equal(t, RoleAdmin, first.Role)
	assert.Equal(t, RoleUser, second.Role)
	require.NotNil(t, first.VerificationToken)

	// One verification email per account.
	assert.Len(t, f.email.sent, 2)
}

func TestRegisterValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.Register(context.Background(), RegisterInput{
		Email:           "jane@example.com",
		Password:        "one-password",
		ConfirmPassword: "another-password",
	})
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = f.service.Register(context.Background(), RegisterInput{
		Email:           "jane@example.com",
		Password:        "pass-word-123",
		ConfirmPassword: "pass-word-123",
		MfaEnabled:      true,
	})
	assert.ErrorIs(t, err, ErrPhoneRequired)

	_, err = f.service.Register(context.Background(), RegisterInput{
		Email:           "jane@example.com",
		Password:        "pass-word-123",
		ConfirmPassword: "pass-word-123",
		MfaEnabled:      true,
		PhoneNumber:     "not-a-phone",
	})
	assert.ErrorIs(t, err, ErrPhoneInvalid)
}

func TestRegisterDuplicateEmailReportsSuccess(t *testing.T) {
	f := newServiceFixture(t)
	f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	result, err := f.service.Register(context.Background(), RegisterInput{
		Email:           "jane@example.com",
		Password:        "pass-word-123",
		ConfirmPassword: "pass-word-123",
	})
	require.NoError(t, err)
	assert.True(t, result.AlreadyRegistered)

	// The existing owner is notified; no second account exists.
	require.Len(t, f.email.sent, 1)
	assert.Equal(t, "jane@example.com", f.email.sent[0].To)
	count, err := f.repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestConfirmEmail(t *testing.T) {
	f := newServiceFixture(t)
	token := "confirm-me"
	user := f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) {
		u.VerificationToken = &token
		u.DOB = "1990-04-01"
	})

	err := f.service.ConfirmEmail(context.Background(), "no-such-token", "")
	assert.ErrorIs(t, err, ErrVerificationTokenInvalid)

	err = f.service.ConfirmEmail(context.Background(), token, "1999-09-09")
	assert.ErrorIs(t, err, ErrDobMismatch)

	require.NoError(t, f.service.ConfirmEmail(context.Background(), token, "1990-04-01"))
	stored := f.repo.user(user.ID)
	assert.NotNil(t, stored.Verified)
	assert.Nil(t, stored.VerificationToken)
}

func TestConfirmEmailAlreadyVerified(t *testing.T) {
	f := newServiceFixture(t)
	token := "confirm-me"
	now := time.Now().UTC()
	f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) {
		u.VerificationToken = &token
		u.Verified = &now
	})

	err := f.service.ConfirmEmail(context.Background(), token, "")
	assert.ErrorIs(t, err, ErrAlreadyVerified)
}

func TestForgotPasswordIsEnumerationSafe(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	require.NoError(t, f.service.ForgotPassword(context.Background(), "nobody@example.com"))
	assert.Empty(t, f.email.sent)

	require.NoError(t, f.service.ForgotPassword(context.Background(), "jane@example.com"))
	require.Len(t, f.email.sent, 1)

	stored := f.repo.user(user.ID)
	require.NotNil(t, stored.ResetToken)
	assert.Contains(t, f.email.sent[0].Body, *stored.ResetToken)
}

func TestResetPassword(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "old-password-1", nil)

	require.NoError(t, f.service.ForgotPassword(context.Background(), "jane@example.com"))
	token := *f.repo.user(user.ID).ResetToken

	err := f.service.ResetPassword(context.Background(), token, "new-password-1", "different")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	err = f.service.ResetPassword(context.Background(), "bogus", "new-password-1", "new-password-1")
	assert.ErrorIs(t, err, ErrResetTokenInvalid)

	require.NoError(t, f.service.ResetPassword(context.Background(), token, "new-password-1", "new-password-1"))

	_, err = f.service.Login(context.Background(), "jane@example.com", "old-password-1")
	assert.ErrorIs(t, err, ErrWrongPassword)
	_, err = f.service.Login(context.Background(), "jane@example.com", "new-password-1")
	assert.NoError(t, err)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	token := "stale-token"
	expired := time.Now().UTC().Add(-time.Minute)
	f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) {
		u.ResetToken = &token
		u.ResetTokenExpires = &expired
	})

	err := f.service.ResetPassword(context.Background(), token, "new-password-1", "new-password-1")
	assert.ErrorIs(t, err, ErrResetTokenExpired)
}

func TestEnableDisableMfa(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	err := f.service.EnableMfa(context.Background(), 999, "+14155550100")
	assert.ErrorIs(t, err, ErrUserNotFound)

	err = f.service.EnableMfa(context.Background(), user.ID, "")
	assert.ErrorIs(t, err, ErrPhoneRequired)

	err = f.service.EnableMfa(context.Background(), user.ID, "04155550100")
	assert.ErrorIs(t, err, ErrPhoneInvalid)

	require.NoError(t, f.service.EnableMfa(context.Background(), user.ID, "+14155550100"))
	assert.True(t, f.repo.user(user.ID).MfaEnabled)

	require.NoError(t, f.service.DisableMfa(context.Background(), user.ID))
	stored := f.repo.user(user.ID)
	assert.False(t, stored.MfaEnabled)
	assert.Nil(t, stored.MfaCode)

	err = f.service.DisableMfa(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestEnableMfaFallsBackToStoredPhone(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", func(u *User) {
		u.PhoneNumber = "+14155550100"
	})

	require.NoError(t, f.service.EnableMfa(context.Background(), user.ID, ""))

	stored := f.repo.user(user.ID)
	assert.True(t, stored.MfaEnabled)
	assert.Equal(t, "+14155550100", stored.PhoneNumber)
}

func TestInfo(t *testing.T) {
	f := newServiceFixture(t)
	user := f.seedUser(t, "jane@example.com", "pass-word-123", nil)

	got, err := f.service.Info(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)

	_, err = f.service.Info(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
