package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"account-api/internal/observability"
)

const resetTokenTTL = time.Hour

var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// UserRepository is the user persistence the session service needs.
// *Repository satisfies it.
type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetActiveUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByVerificationToken(ctx context.Context, token string) (User, error)
	GetUserByResetToken(ctx context.Context, token string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (int64, error)
	CreateUser(ctx context.Context, u User) (User, error)
	EnableMfa(ctx context.Context, userID int64, phoneNumber string) (bool, error)
	DisableMfa(ctx context.Context, userID int64) (bool, error)
	MarkVerified(ctx context.Context, userID int64, at time.Time) error
	SetResetToken(ctx context.Context, userID int64, token string, expires time.Time) error
	UpdatePassword(ctx context.Context, userID int64, hash, salt string) error
}

// EmailSender delivers transactional mail. notify.Brevo and
// notify.LogSender satisfy it.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Service owns the account and session lifecycle: registration, login
// with the optional MFA second step, token refresh, logout, password
// reset and email confirmation.
type Service struct {
	repo   UserRepository
	tokens *RefreshTokenStore
	mfa    *MfaChallenge
	codec  *TokenCodec
	hasher *PasswordHasher
	email  EmailSender
	log    *observability.Logger
}

func NewService(
	repo UserRepository,
	tokens *RefreshTokenStore,
	mfa *MfaChallenge,
	codec *TokenCodec,
	hasher *PasswordHasher,
	email EmailSender,
	log *observability.Logger,
) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
		mfa:    mfa,
		codec:  codec,
		hasher: hasher,
		email:  email,
		log:    log,
	}
}

// LoginResult is the outcome of login, MFA verification and refresh.
// When MfaRequired is set no tokens are present; the client must come
// back through VerifyMfaAndIssue.
type LoginResult struct {
	MfaRequired bool
	Tokens      TokenPair
	User        Identity
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = normalizeEmail(email)
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return LoginResult{}, ErrMissingCredentials
	}

	user, err := s.repo.GetActiveUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoginResult{}, ErrUnknownEmail
		}
		return LoginResult{}, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordSalt, user.PasswordHash)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		return LoginResult{}, ErrWrongPassword
	}

	// MFA gates token issuance only when there is a phone to deliver
	// the code to.
	if user.MfaEnabled && user.PhoneNumber != "" {
		if err := s.mfa.Issue(ctx, user); err != nil {
			return LoginResult{}, err
		}
		return LoginResult{MfaRequired: true, User: identityOf(user)}, nil
	}

	return s.issueSession(ctx, user)
}

// VerifyMfaAndIssue completes the second login step. The password was
// already proven; a valid pending code is all that stands between the
// user and a token pair.
func (s *Service) VerifyMfaAndIssue(ctx context.Context, email, code string) (LoginResult, error) {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)

	if email == "" || code == "" {
		return LoginResult{}, ErrMfaNotChallenged
	}

	user, err := s.repo.GetActiveUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoginResult{}, ErrMfaNotChallenged
		}
		return LoginResult{}, err
	}

	if err := s.mfa.Verify(ctx, user, code); err != nil {
		return LoginResult{}, err
	}

	return s.issueSession(ctx, user)
}

// Refresh redeems a raw refresh token for a new session. The presented
// token is consumed whether or not anything else goes right afterwards;
// every failure mode collapses into ErrInvalidRefreshToken so callers
// cannot distinguish missing from expired from already-used.
func (s *Service) Refresh(ctx context.Context, rawToken string) (LoginResult, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return LoginResult{}, ErrInvalidRefreshToken
	}

	rec, ok, err := s.tokens.Resolve(ctx, rawToken)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok || s.tokens.Expired(rec) {
		return LoginResult{}, ErrInvalidRefreshToken
	}

	user, err := s.repo.GetUserByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoginResult{}, ErrInvalidRefreshToken
		}
		return LoginResult{}, err
	}
	if !user.Active {
		return LoginResult{}, ErrInvalidRefreshToken
	}

	newRefresh, err := s.tokens.Rotate(ctx, rec)
	if err != nil {
		return LoginResult{}, err
	}

	if _, err := s.tokens.PurgeExpired(ctx, user.ID); err != nil {
		s.log.Error("purge expired refresh tokens failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}

	access, err := s.codec.IssueAccessToken(user)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Tokens: TokenPair{AccessToken: access, RefreshToken: newRefresh},
		User:   identityOf(user),
	}, nil
}

// Logout drops every refresh token the user holds. Calling it with
// nothing to drop is still success.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.tokens.RemoveAll(ctx, userID)
}

// EnableMfa turns the second step on for the calling account only; the
// id comes from the authenticated identity, never from request input.
func (s *Service) EnableMfa(ctx context.Context, userID int64, phoneNumber string) error {
	phoneNumber = strings.TrimSpace(phoneNumber)

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}

	if phoneNumber == "" {
		phoneNumber = user.PhoneNumber
	}
	if phoneNumber == "" {
		return ErrPhoneRequired
	}
	if !phoneRegex.MatchString(phoneNumber) {
		return ErrPhoneInvalid
	}

	found, err := s.repo.EnableMfa(ctx, user.ID, phoneNumber)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	return nil
}

// DisableMfa turns the second step off for the calling account and
// discards any pending challenge with it.
func (s *Service) DisableMfa(ctx context.Context, userID int64) error {
	found, err := s.repo.DisableMfa(ctx, userID)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	return nil
}

type RegisterInput struct {
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
	DOB             string
	PhoneNumber     string
	MfaEnabled      bool
}

type RegisterResult struct {
	// AlreadyRegistered means the email was taken. The caller still
	// reports success so registration cannot be used to probe accounts;
	// the existing owner gets a heads-up email instead.
	AlreadyRegistered bool
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	in.Email = normalizeEmail(in.Email)
	in.Password = strings.TrimSpace(in.Password)
	in.ConfirmPassword = strings.TrimSpace(in.ConfirmPassword)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)

	if in.Email == "" || in.Password == "" {
		return RegisterResult{}, ErrMissingCredentials
	}
	if in.Password != in.ConfirmPassword {
		return RegisterResult{}, ErrPasswordMismatch
	}
	if in.MfaEnabled {
		if in.PhoneNumber == "" {
			return RegisterResult{}, ErrPhoneRequired
		}
		if !phoneRegex.MatchString(in.PhoneNumber) {
			return RegisterResult{}, ErrPhoneInvalid
		}
	}

	if _, err := s.repo.GetUserByEmail(ctx, in.Email); err == nil {
		s.sendEmail(ctx, in.Email, "Account already exists",
			"Someone tried to register with your email address. If this was not you, no action is needed.")
		return RegisterResult{AlreadyRegistered: true}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return RegisterResult{}, err
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return RegisterResult{}, err
	}
	// The very first account becomes the administrator.
	role := RoleUser
	if count == 0 {
		role = RoleAdmin
	}

	salt, err := s.hasher.NewSalt()
	if err != nil {
		return RegisterResult{}, err
	}
	hash, err := s.hasher.Hash(in.Password, salt)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("hash password: %w", err)
	}

	verification, err := NewOpaqueSecret(verificationTokenBytes)
	if err != nil {
		return RegisterResult{}, err
	}

	user := User{
		Email:             in.Email,
		PasswordHash:      hash,
		PasswordSalt:      salt,
		FirstName:         strings.TrimSpace(in.FirstName),
		LastName:          strings.TrimSpace(in.LastName),
		DOB:               strings.TrimSpace(in.DOB),
		Role:              role,
		Active:            true,
		VerificationToken: &verification,
		MfaEnabled:        in.MfaEnabled,
		PhoneNumber:       in.PhoneNumber,
		CreatedAt:         time.Now().UTC(),
	}
	if _, err := s.repo.CreateUser(ctx, user); err != nil {
		return RegisterResult{}, err
	}

	s.sendEmail(ctx, in.Email, "Confirm your email",
		fmt.Sprintf("Welcome! Use this token to confirm your email address: %s", verification))

	return RegisterResult{}, nil
}

// ConfirmEmail redeems a verification token. When the account carries a
// date of birth, the caller must repeat it.
func (s *Service) ConfirmEmail(ctx context.Context, token, dob string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrVerificationTokenInvalid
	}

	user, err := s.repo.GetUserByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrVerificationTokenInvalid
		}
		return err
	}

	if user.Verified != nil {
		return ErrAlreadyVerified
	}
	if user.DOB != "" && strings.TrimSpace(dob) != user.DOB {
		return ErrDobMismatch
	}

	return s.repo.MarkVerified(ctx, user.ID, time.Now().UTC())
}

// ForgotPassword always reports success so the endpoint cannot be used
// to enumerate accounts. Only existing active accounts get a token.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	user, err := s.repo.GetActiveUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}

	token, err := NewOpaqueSecret(verificationTokenBytes)
	if err != nil {
		return err
	}
	if err := s.repo.SetResetToken(ctx, user.ID, token, time.Now().UTC().Add(resetTokenTTL)); err != nil {
		return err
	}

	s.sendEmail(ctx, user.Email, "Reset your password",
		fmt.Sprintf("Use this token to reset your password within the next hour: %s", token))

	return nil
}

func (s *Service) ResetPassword(ctx context.Context, token, password, confirmPassword string) error {
	token = strings.TrimSpace(token)
	password = strings.TrimSpace(password)
	confirmPassword = strings.TrimSpace(confirmPassword)

	if password == "" || password != confirmPassword {
		return ErrPasswordMismatch
	}
	if token == "" {
		return ErrResetTokenInvalid
	}

	user, err := s.repo.GetUserByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if user.ResetTokenExpires == nil || time.Now().After(*user.ResetTokenExpires) {
		return ErrResetTokenExpired
	}

	salt, err := s.hasher.NewSalt()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(password, salt)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.UpdatePassword(ctx, user.ID, hash, salt); err != nil {
		return err
	}

	// Existing sessions die with the old password.
	if err := s.tokens.RemoveAll(ctx, user.ID); err != nil {
		s.log.Error("revoke sessions after password reset failed", map[string]any{
			"user_id": user.ID,
			"error":   err.Error(),
		})
	}

	return nil
}

func (s *Service) Info(ctx context.Context, userID int64) (User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return user, nil
}

func (s *Service) ListAll(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

func (s *Service) issueSession(ctx context.Context, user User) (LoginResult, error) {
	access, err := s.codec.IssueAccessToken(user)
	if err != nil {
		return LoginResult{}, err
	}

	refresh, err := s.tokens.Issue(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{
		Tokens: TokenPair{AccessToken: access, RefreshToken: refresh},
		User:   identityOf(user),
	}, nil
}

// sendEmail is best effort. Mail problems are logged, never surfaced.
func (s *Service) sendEmail(ctx context.Context, to, subject, body string) {
	if err := s.email.SendEmail(ctx, to, subject, body); err != nil {
		s.log.Error("email dispatch failed", map[string]any{
			"to":      to,
			"subject": subject,
			"error":   err.Error(),
		})
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

var (
	ErrMissingCredentials = errors.New("email and password are required")
	ErrUnknownEmail       = errors.New("no active account for email")
	ErrWrongPassword      = errors.New("password does not match")
	ErrUserNotFound       = errors.New("user not found")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrPhoneRequired      = errors.New("phone number is required for mfa")
	ErrPhoneInvalid       = errors.New("phone number must be E.164")

	ErrVerificationTokenInvalid = errors.New("invalid verification token")
	ErrAlreadyVerified          = errors.New("email already verified")
	ErrDobMismatch              = errors.New("date of birth does not match")

	ErrResetTokenInvalid = errors.New("invalid reset token")
	ErrResetTokenExpired = errors.New("reset token expired")
)
