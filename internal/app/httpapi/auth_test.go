package httpapi

import (
	"testing"
	"time"

	"github.com/blr-market/marketplace/internal/app/domain/account"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	acct := account.Account{ID: "42", Name: "Gattaca", Role: account.RoleStandard}

	token, err := issuer.Issue(acct)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.AccountID != "42" || claims.Username != "Gattaca" || claims.Role != string(account.RoleStandard) {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer("secret-a", time.Hour).Issue(account.Account{ID: "42"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := NewTokenIssuer("secret-b", time.Hour).Parse(token); err == nil {
		t.Fatalf("expected verification failure with wrong secret")
	}
}

func TestTokenExpiry(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	issuer.ttl = -time.Minute

	token, err := issuer.Issue(account.Account{ID: "42"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(token); err == nil {
		t.Fatalf("expected expired token error")
	}
}
