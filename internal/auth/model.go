package auth

import "time"

type Role string

const (
	RoleAdmin Role = "Admin"
	RoleUser  Role = "User"
)

type User struct {
	ID                int64
	Email             string
	PasswordHash      string
	PasswordSalt      string
	FirstName         string
	LastName          string
	DOB               string
	Role              Role
	Active            bool
	Verified          *time.Time
	VerificationToken *string
	ResetToken        *string
	ResetTokenExpires *time.Time
	MfaEnabled        bool
	PhoneNumber       string
	MfaCode           *string
	MfaCodeExpires    *time.Time
	CreatedAt         time.Time
}

// FullName joins first and last name the way the access-token "name"
// claim carries it.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// RefreshTokenRecord is the persisted form of a refresh token. The raw
// token value is never stored; only the salted hash is.
type RefreshTokenRecord struct {
	ID        string
	UserID    int64
	TokenHash string
	TokenSalt string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TokenPair is what a successful login, MFA verification or refresh
// hands back to the client.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the restricted user summary included in token responses.
type Identity struct {
	UserID    int64
	FirstName string
	LastName  string
	Email     string
}

func identityOf(u User) Identity {
	return Identity{
		UserID:    u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}
