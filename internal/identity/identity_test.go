package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nema-ac/worminal/internal/models"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestSetTokenDerivesIdentity(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	tok := signedToken(t, jwt.MapClaims{"user_id": "u1", "username": "alice"})

	if err := p.SetToken(tok); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}

	ident := p.Identity()
	if !ident.Authenticated || ident.UserID != "u1" || ident.Username != "alice" {
		t.Errorf("Identity() = %+v", ident)
	}
	if p.Token() != tok {
		t.Error("Token() does not round-trip")
	}
}

func TestSetTokenRejectsGarbage(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	if err := p.SetToken("not-a-jwt"); err == nil {
		t.Error("SetToken(garbage) error = nil")
	}
	if p.Identity().Authenticated {
		t.Error("garbage token authenticated the provider")
	}
}

func TestSetTokenRequiresUserID(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	tok := signedToken(t, jwt.MapClaims{"username": "alice"})
	if err := p.SetToken(tok); err == nil {
		t.Error("SetToken without user_id claim error = nil")
	}
}

func TestChangeListeners(t *testing.T) {
	t.Parallel()

	p := NewProvider()
	var got []bool
	p.OnChange(func(ident models.Identity) {
		got = append(got, ident.Authenticated)
	})

	tok := signedToken(t, jwt.MapClaims{"user_id": "u1", "username": "alice"})
	if err := p.SetToken(tok); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	p.Clear()

	want := []bool{true, false}
	if len(got) != len(want) {
		t.Fatalf("listener fired %d times, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d authenticated = %v, want %v", i, got[i], want[i])
		}
	}
	if p.Token() != "" || p.Identity().Authenticated {
		t.Error("Clear() left credentials behind")
	}
}
