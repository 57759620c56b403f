package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSigningSecret = []byte("unit-test-signing-secret")

func newTestIssuer(clock func() time.Time) *TokenIssuer {
	return NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSigningSecret,
		Issuer:        "momentum-auth",
		Audience:      "momentum-api",
		TokenTTL:      30 * time.Minute,
		Clock:         clock,
	})
}

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuedAt := time.Unix(1760000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return issuedAt })

	token, expiresIn, err := issuer.IssueToken(context.Background(), "user-42", "moderator")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if expiresIn != int64((30 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expiry seconds: %d", expiresIn)
	}

	identity, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if identity.UserID != "user-42" {
		t.Fatalf("unexpected user id: %s", identity.UserID)
	}
	if !identity.IsModerator() {
		t.Fatalf("expected moderator identity, got role %q", identity.Role)
	}
}

func TestIssueTokenDefaultsBlankRoleToMember(t *testing.T) {
	issuer := newTestIssuer(func() time.Time { return time.Unix(1760000000, 0).UTC() })

	token, _, err := issuer.IssueToken(context.Background(), "user-42", "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	identity, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("failed to validate token: %v", err)
	}
	if identity.Role != RoleMember {
		t.Fatalf("expected member role, got %q", identity.Role)
	}
	if identity.IsModerator() {
		t.Fatal("member identity must not pass moderator check")
	}
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	issuer := newTestIssuer(func() time.Time { return time.Unix(1760000000, 0).UTC() })

	if _, _, err := issuer.IssueToken(context.Background(), "user-42", "owner"); !errors.Is(err, errUnknownRole) {
		t.Fatalf("expected unknown role error, got %v", err)
	}
}

func TestIssueTokenRejectsBlankSubject(t *testing.T) {
	issuer := newTestIssuer(func() time.Time { return time.Unix(1760000000, 0).UTC() })

	if _, _, err := issuer.IssueToken(context.Background(), "  ", "member"); !errors.Is(err, errMissingSubjectClaim) {
		t.Fatalf("expected missing subject error, got %v", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	issuedAt := time.Unix(1760000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return issuedAt })

	token, _, err := issuer.IssueToken(context.Background(), "user-42", "member")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	lateClock := func() time.Time { return issuedAt.Add(31 * time.Minute) }
	lateIssuer := newTestIssuer(lateClock)
	if _, err := lateIssuer.ValidateToken(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestValidateTokenRejectsWrongAudience(t *testing.T) {
	issuedAt := time.Unix(1760000000, 0).UTC()
	foreignIssuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: testSigningSecret,
		Issuer:        "momentum-auth",
		Audience:      "another-api",
		Clock:         func() time.Time { return issuedAt },
	})

	token, _, err := foreignIssuer.IssueToken(context.Background(), "user-42", "member")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	issuer := newTestIssuer(func() time.Time { return issuedAt })
	if _, err := issuer.ValidateToken(token); err == nil {
		t.Fatal("expected audience mismatch to fail validation")
	}
}

func TestValidateTokenRejectsTamperedSignature(t *testing.T) {
	issuedAt := time.Unix(1760000000, 0).UTC()
	issuer := newTestIssuer(func() time.Time { return issuedAt })

	token, _, err := issuer.IssueToken(context.Background(), "user-42", "member")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	otherSecret := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("a-different-secret"),
		Issuer:        "momentum-auth",
		Audience:      "momentum-api",
		Clock:         func() time.Time { return issuedAt },
	})
	if _, err := otherSecret.ValidateToken(token); err == nil {
		t.Fatal("expected signature mismatch to fail validation")
	}
}

func TestParseRoleNormalizesCase(t *testing.T) {
	role, err := ParseRole(" Moderator ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleModerator {
		t.Fatalf("expected moderator, got %q", role)
	}
}
