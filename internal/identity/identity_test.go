package identity

import (
	"errors"
	"testing"
)

func TestStaticProviderAuthenticate(t *testing.T) {
	p := NewStaticProvider([]Credential{
		{UserID: "u-1", Email: "alice@example.com", Password: "s3cret"},
		{UserID: "u-2", Email: "Bob@Example.COM", Password: "hunter2"},
	})

	id, err := p.Authenticate("alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id != "u-1" {
		t.Fatalf("expected u-1, got %q", id)
	}
}

func TestStaticProviderEmailNormalization(t *testing.T) {
	p := NewStaticProvider([]Credential{
		{UserID: "u-2", Email: "Bob@Example.COM", Password: "hunter2"},
	})

	id, err := p.Authenticate("  bob@example.com ", "hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if id != "u-2" {
		t.Fatalf("expected u-2, got %q", id)
	}
}

func TestStaticProviderRejections(t *testing.T) {
	p := NewStaticProvider([]Credential{
		{UserID: "u-1", Email: "alice@example.com", Password: "s3cret"},
	})

	if _, err := p.Authenticate("alice@example.com", "wrong"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed for bad password, got %v", err)
	}
	if _, err := p.Authenticate("nobody@example.com", "s3cret"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed for unknown email, got %v", err)
	}
	if _, err := p.Authenticate("alice@example.com", ""); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed for empty password, got %v", err)
	}
}
