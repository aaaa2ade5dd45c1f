package linkedin

import (
	"context"
	"strings"
)

// Credentials are the LinkedIn login email and password.
type Credentials struct {
	Email    string
	Password string
}

// String keeps the password out of logs.
func (c Credentials) String() string {
	return "Credentials{Email:" + c.Email + ", Password:[redacted]}"
}

// CredentialsSource supplies login credentials on demand.
type CredentialsSource interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// StaticCredentials is a CredentialsSource backed by fixed values, usually
// read from configuration.
type StaticCredentials struct {
	Email    string
	Password string
}

// Credentials returns ErrCredentialsMissing if either value is empty.
func (s StaticCredentials) Credentials(ctx context.Context) (Credentials, error) {
	email := strings.TrimSpace(s.Email)
	if email == "" || s.Password == "" {
		return Credentials{}, ErrCredentialsMissing
	}
	return Credentials{Email: email, Password: s.Password}, nil
}
