package sessiontoken

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

const (
	testSessionId = "550e8400-e29b-41d4-a716-446655440000"
	testUserId    = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
)

func TestIssueAndValidate(t *testing.T) {

	svc := NewService(testSecret)

	token, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if svc.ActiveCount() != 1 {
		t.Errorf("active count = %d, expected 1", svc.ActiveCount())
	}

	info, err := svc.Validate(token)
	if err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}

	if info.SessionId != testSessionId || info.UserId != testUserId {
		t.Errorf("validate returned (%s, %s), expected (%s, %s)",
			info.SessionId, info.UserId, testSessionId, testUserId)
	}
}

// TestIssuedTokenClaims verifies the signed artifact carries the fixed claim
// set and is verifiable with the shared symmetric secret alone.
func TestIssuedTokenClaims(t *testing.T) {

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(testSecret, WithClock(func() time.Time { return issued }))

	token, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return testSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return issued }))
	if err != nil {
		t.Fatalf("failed to parse issued token: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}

	if claims["sub"] != testUserId {
		t.Errorf("sub = %v, expected %s", claims["sub"], testUserId)
	}
	if claims["sessionId"] != testSessionId {
		t.Errorf("sessionId = %v, expected %s", claims["sessionId"], testSessionId)
	}
	if claims["aud"] != TokenAudience {
		t.Errorf("aud = %v, expected %s", claims["aud"], TokenAudience)
	}
	if claims["iss"] != TokenIssuer {
		t.Errorf("iss = %v, expected %s", claims["iss"], TokenIssuer)
	}

	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	if iat != issued.Unix() {
		t.Errorf("iat = %d, expected %d", iat, issued.Unix())
	}
	if exp != issued.Add(DefaultTtl).Unix() {
		t.Errorf("exp = %d, expected %d", exp, issued.Add(DefaultTtl).Unix())
	}
}

func TestIssueWithoutSecret(t *testing.T) {

	svc := NewService(nil)

	if _, err := svc.Issue(testSessionId, testUserId); !errors.Is(err, ErrNoSigningSecret) {
		t.Errorf("expected ErrNoSigningSecret, got %v", err)
	}
}

func TestValidateIncrementsUseCount(t *testing.T) {

	svc := NewService(testSecret, WithMaxUses(3))

	token, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	// three validations succeed, the fourth exceeds the bound
	for i := 0; i < 3; i++ {
		if _, err := svc.Validate(token); err != nil {
			t.Fatalf("validation %d failed: %v", i+1, err)
		}
	}

	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound after use limit, got %v", err)
	}

	// exhaustion evicts the entry entirely
	if svc.ActiveCount() != 0 {
		t.Errorf("active count = %d after exhaustion, expected 0", svc.ActiveCount())
	}
}

func TestValidateExpiredToken(t *testing.T) {

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(testSecret,
		WithTtl(time.Hour),
		WithClock(func() time.Time { return now }),
	)

	token, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	// still valid exactly at expiry
	now = now.Add(time.Hour)
	if _, err := svc.Validate(token); err != nil {
		t.Errorf("token at exact expiry should validate, got %v", err)
	}

	// invalid one second past expiry, and lazily evicted
	now = now.Add(time.Second)
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound past expiry, got %v", err)
	}
	if svc.ActiveCount() != 0 {
		t.Errorf("expired token was not evicted, active count = %d", svc.ActiveCount())
	}
}

func TestRevoke(t *testing.T) {

	svc := NewService(testSecret)

	token, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	svc.Revoke(token)

	// revoked and never-issued are indistinguishable
	if _, err := svc.Validate(token); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound after revocation, got %v", err)
	}

	// revoking an absent token is a no-op
	svc.Revoke(token)
	svc.Revoke("never-issued")
}

func TestRevokeSession(t *testing.T) {

	otherSessionId := "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	// advance the clock between issuances so each artifact is distinct:
	// the payload is deterministic, so same-second issuance for the same
	// session and user reuses the identical signed string
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(testSecret, WithClock(func() time.Time { return now }))

	first, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	now = now.Add(time.Second)
	second, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	now = now.Add(time.Second)
	other, err := svc.Issue(otherSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if revoked := svc.RevokeSession(testSessionId); revoked != 2 {
		t.Errorf("RevokeSession removed %d tokens, expected 2", revoked)
	}

	for _, token := range []string{first, second} {
		if _, err := svc.Validate(token); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("expected session token to be revoked, got %v", err)
		}
	}

	// the other session's token stays validator-reachable
	if _, err := svc.Validate(other); err != nil {
		t.Errorf("unrelated session token should still validate, got %v", err)
	}

	if revoked := svc.RevokeSession("no-such-session"); revoked != 0 {
		t.Errorf("RevokeSession for unknown session removed %d tokens, expected 0", revoked)
	}
}

func TestSweepExpired(t *testing.T) {

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(testSecret,
		WithTtl(time.Hour),
		WithClock(func() time.Time { return now }),
	)

	expired, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	// second token issued later, still live when the sweep runs
	now = now.Add(30 * time.Minute)
	live, err := svc.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	now = now.Add(45 * time.Minute)
	if evicted := svc.SweepExpired(); evicted != 1 {
		t.Errorf("sweep evicted %d tokens, expected 1", evicted)
	}

	if _, err := svc.Validate(expired); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected swept token to be gone, got %v", err)
	}
	if _, err := svc.Validate(live); err != nil {
		t.Errorf("live token should survive the sweep, got %v", err)
	}
}

// TestInstancesAreIndependent checks that two services never share registry
// state: a token issued by one is unknown to the other.
func TestInstancesAreIndependent(t *testing.T) {

	a := NewService(testSecret)
	b := NewService(testSecret)

	token, err := a.Issue(testSessionId, testUserId)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	if _, err := b.Validate(token); !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("expected foreign registry to reject the token, got %v", err)
	}
}
