package auth

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-api/internal/observability"
)

func newMfaFixture(t *testing.T) (*MfaChallenge, *memRepo, *fakeSMS) {
	t.Helper()
	repo := newMemRepo()
	sms := &fakeSMS{}
	challenge := NewMfaChallenge(repo, sms, observability.NewLogger(), 5*time.Minute)
	return challenge, repo, sms
}

func TestIssueStoresCodeAndDispatchesSMS(t *testing.T) {
	challenge, repo, sms := newMfaFixture(t)
	user := repo.addUser(User{Email: "jane@example.com", PhoneNumber: "+14155550100", MfaEnabled: true, Active: true})

	require.NoError(t, challenge.Issue(context.Background(), user))

	stored := repo.user(user.ID)
	require.NotNil(t, stored.MfaCode)
	require.NotNil(t, stored.MfaCodeExpires)
	assert.Regexp(t, regexp.MustCompile(`^[1-9]\d{5}$`), *stored.MfaCode)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), *stored.MfaCodeExpires, 5*time.Second)

	require.Len(t, sms.sent, 1)
	assert.Equal(t, "+14155550100", sms.sent[0].To)
	assert.Contains(t, sms.sent[0].Message, *stored.MfaCode)
}

func TestIssueSurvivesSMSFailure(t *testing.T) {
	challenge, repo, sms := newMfaFixture(t)
	sms.err = errors.New("gateway down")
	user := repo.addUser(User{Email: "jane@example.com", PhoneNumber: "+14155550100", MfaEnabled: true, Active: true})

	require.NoError(t, challenge.Issue(context.Background(), user))

	// The code is stored and still verifiable even though nothing was
	// delivered.
	stored := repo.user(user.ID)
	require.NotNil(t, stored.MfaCode)
	require.NoError(t, challenge.Verify(context.Background(), stored, *stored.MfaCode))
}

func TestIssueSupersedesPendingChallenge(t *testing.T) {
	challenge, repo, _ := newMfaFixture(t)
	user := repo.addUser(User{Email: "jane@example.com", PhoneNumber: "+14155550100", MfaEnabled: true, Active: true})

	require.NoError(t, challenge.Issue(context.Background(), user))
	first := *repo.user(user.ID).MfaCode

	require.NoError(t, challenge.Issue(context.Background(), user))
	second := *repo.user(user.ID).MfaCode

	if first == second {
		t.Skip("codes collided; nothing to assert")
	}

	// The first code was replaced and no longer verifies.
	err := challenge.Verify(context.Background(), repo.user(user.ID), first)
	assert.ErrorIs(t, err, ErrMfaWrongCode)

	require.NoError(t, challenge.Verify(context.Background(), repo.user(user.ID), second))
}

func TestVerifyWithoutChallenge(t *testing.T) {
	challenge, repo, _ := newMfaFixture(t)
	user := repo.addUser(User{Email: "jane@example.com", MfaEnabled: true, Active: true})

	err := challenge.Verify(context.Background(), user, "123456")
	assert.ErrorIs(t, err, ErrMfaNotChallenged)

	err = challenge.Verify(context.Background(), user, "")
	assert.ErrorIs(t, err, ErrMfaNotChallenged)
}

func TestVerifyWrongCode(t *testing.T) {
	challenge, repo, _ := newMfaFixture(t)
	user := repo.addUser(User{Email: "jane@example.com", PhoneNumber: "+14155550100", MfaEnabled: true, Active: true})

	require.NoError(t, challenge.Issue(context.Background(), user))
	stored := repo.user(user.ID)

	wrong := "000000"
	if *stored.MfaCode == wrong {
		wrong = "000001"
	}
	err := challenge.Verify(context.Background(), stored, wrong)
	assert.ErrorIs(t, err, ErrMfaWrongCode)

	// A failed attempt does not consume the challenge.
	require.NoError(t, challenge.Verify(context.Background(), repo.user(user.ID), *stored.MfaCode))
}

func TestVerifyExpiryBoundaryIsExclusive(t *testing.T) {
	challenge, repo, _ := newMfaFixture(t)
	user := repo.addUser(User{Email: "jane@example.com", PhoneNumber: "+14155550100", MfaEnabled: true, Active: true})

	require.NoError(t, challenge.Issue(context.Background(), user))
	stored := repo.user(user.ID)

	// Exactly at the expiry instant the code is already dead.
	challenge.now = func() time.Time { return *stored.MfaCodeExpires }
	err := challenge.Verify(context.Background(), stored, *stored.MfaCode)
	assert.ErrorIs(t, err, ErrMfaCodeExpired)

	// One nanosecond earlier it is still alive.
	challenge.now = func() time.Time { return stored.MfaCodeExpires.Add(-time.Nanosecond) }
	require.NoError(t, challenge.Verify(context.Background(), stored, *stored.MfaCode))
}

func TestVerifyWrongCodeOnExpiredChallenge(t *testing.T) {
	challenge, repo, _ := newMfaFixture(t)
	user := repo.addUser(User{Email: "jane@example.com", PhoneNumber: "+14155550100", MfaEnabled: true, Active: true})

	require.NoError(t, challenge.Issue(context.Background(), user))
	stored := repo.user(user.ID)
	challenge.now = func() time.Time { return stored.MfaCodeExpires.Add(time.Minute) }

	wrong := "000000"
	if *stored.MfaCode == wrong {
		wrong = "000001"
	}

	// The mismatch wins over the expiry.
	err := challenge.Verify(context.Background(), stored, wrong)
	assert.ErrorIs(t, err, ErrMfaWrongCode)

	err = challenge.Verify(context.Background(), stored, *stored.MfaCode)
	assert.ErrorIs(t, err, ErrMfaCodeExpired)
}

func TestVerifySuccessClearsChallenge(t *testing.T) {
	challenge, repo, _ := newMfaFixture(t)
	user := repo.addUser(User{Email: "jane@example.com", PhoneNumber: "+14155550100", MfaEnabled: true, Active: true})

	require.NoError(t, challenge.Issue(context.Background(), user))
	stored := repo.user(user.ID)
	code := *stored.MfaCode

	require.NoError(t, challenge.Verify(context.Background(), stored, code))

	after := repo.user(user.ID)
	assert.Nil(t, after.MfaCode)
	assert.Nil(t, after.MfaCodeExpires)

	err := challenge.Verify(context.Background(), after, code)
	assert.ErrorIs(t, err, ErrMfaNotChallenged)
}

func TestNewMfaCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := newMfaCode()
		require.NoError(t, err)
		require.Regexp(t, regexp.MustCompile(`^[1-9]\d{5}$`), code)
	}
}
