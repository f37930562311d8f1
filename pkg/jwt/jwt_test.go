package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestSignAndValidate(t *testing.T) {
	v, err := NewVerifier("secret", "somsomparty")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}

	token, err := v.Sign(42, time.Minute)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	claims, err := v.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	id, err := claims.UserID()
	if err != nil || id != 42 {
		t.Fatalf("UserID = %d, %v", id, err)
	}
}

func TestValidateRejects(t *testing.T) {
	v, _ := NewVerifier("secret", "somsomparty")
	other, _ := NewVerifier("other", "somsomparty")
	wrongIssuer, _ := NewVerifier("secret", "elsewhere")

	expired, _ := v.Sign(1, -time.Minute)
	if _, err := v.ValidateToken(expired); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expired token: err = %v", err)
	}

	foreign, _ := other.Sign(1, time.Minute)
	if _, err := v.ValidateToken(foreign); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign signature: err = %v", err)
	}

	issued, _ := wrongIssuer.Sign(1, time.Minute)
	if _, err := v.ValidateToken(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong issuer: err = %v", err)
	}

	if _, err := v.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: err = %v", err)
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("", ""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestClaimsUserID(t *testing.T) {
	for _, sub := range []string{"", "abc", "0", "-3"} {
		c := &Claims{}
		c.Subject = sub
		if _, err := c.UserID(); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("subject %q: err = %v", sub, err)
		}
	}
}
