// Package identity is the boundary to the credential provider. The
// dashboard only needs two answers from it: who is the current caller, and
// that they stop being the caller on logout. Staff authorization is checked
// against the employee roster, not here.
package identity

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	// ErrAuthenticationFailed means the credentials were rejected.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrAuthorizationDenied means the caller authenticated but is not a
	// recognized staff identity. Forces logout; no retry.
	ErrAuthorizationDenied = errors.New("not authorized as staff")
)

// Provider authenticates credentials and returns the caller's identity key.
type Provider interface {
	Authenticate(email, password string) (userID string, err error)
}

// Credential is one configured login.
type Credential struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StaticProvider authenticates against a fixed credential list, typically
// seeded from config. Deployments with a real identity provider substitute
// their own Provider.
type StaticProvider struct {
	byEmail map[string]Credential
}

func NewStaticProvider(creds []Credential) *StaticProvider {
	p := &StaticProvider{byEmail: make(map[string]Credential, len(creds))}
	for _, c := range creds {
		p.byEmail[strings.ToLower(strings.TrimSpace(c.Email))] = c
	}
	return p
}

func (p *StaticProvider) Authenticate(email, password string) (string, error) {
	c, ok := p.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", ErrAuthenticationFailed
	}
	if subtle.ConstantTimeCompare([]byte(c.Password), []byte(password)) != 1 {
		return "", ErrAuthenticationFailed
	}
	return c.UserID, nil
}
