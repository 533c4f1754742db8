package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/relayops/relay/model"
)

const (
	testSharedKey = "shared-worker-key"
	testSecret    = "signing-secret"
)

func newTestAuthority(t *testing.T, now time.Time, opts ...AuthorityOption) (*Authority, *MemoryTokenStore) {
	t.Helper()
	tokens := NewMemoryTokenStore()
	opts = append(opts, WithClock(func() time.Time { return now }))
	a := NewAuthority(tokens, NewSigner(testSecret), testSharedKey,
		24*time.Hour, 5*time.Minute, opts...)
	return a, tokens
}

func signedHeaders(a *Authority, token string, body []byte, at time.Time) http.Header {
	h := make(http.Header)
	h.Set(HeaderAPIKey, testSharedKey)
	h.Set(HeaderToken, token)
	h.Set(HeaderTimestamp, Timestamp(at))
	h.Set(HeaderSignature, a.Signer().Sign(body))
	return h
}

func TestAuthority_IssueAndVerify(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t, now)
	ctx := context.Background()

	token, err := a.Issue(ctx, "user-1", "proc-1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if len(token.Token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token.Token))
	}

	body := []byte(`{"progress": 50}`)
	id, err := a.Verify(ctx, signedHeaders(a, token.Token, body, now), body)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if id.UserID != "user-1" || id.ProcessID != "proc-1" {
		t.Errorf("identity = %+v, want user-1/proc-1", id)
	}
}

func TestAuthority_VerifyFailsAfterComplete(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t, now)
	ctx := context.Background()

	token, err := a.Issue(ctx, "user-1", "proc-1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	body := []byte(`{}`)
	if _, err := a.Verify(ctx, signedHeaders(a, token.Token, body, now), body); err != nil {
		t.Fatalf("first Verify error: %v", err)
	}

	if err := a.Complete(ctx, token.Token); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	// Complete is idempotent.
	if err := a.Complete(ctx, token.Token); err != nil {
		t.Fatalf("second Complete error: %v", err)
	}

	_, err = a.Verify(ctx, signedHeaders(a, token.Token, body, now), body)
	assertCode(t, err, model.ErrAuth)
}

func TestAuthority_StaleTimestampRejected(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t, now)
	ctx := context.Background()

	token, _ := a.Issue(ctx, "user-1", "proc-1")
	body := []byte(`{}`)

	// Signature is valid; only the timestamp is stale.
	h := signedHeaders(a, token.Token, body, now.Add(-6*time.Minute))
	_, err := a.Verify(ctx, h, body)
	assertCode(t, err, model.ErrReplay)
}

func TestAuthority_MutatedBodyRejected(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t, now)
	ctx := context.Background()

	token, _ := a.Issue(ctx, "user-1", "proc-1")
	body := []byte(`{"progress": 50}`)
	h := signedHeaders(a, token.Token, body, now)

	mutated := []byte(`{"progress": 51}`)
	_, err := a.Verify(ctx, h, mutated)
	assertCode(t, err, model.ErrAuth)
}

func TestAuthority_UnknownAndMissingEvidence(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t, now)
	ctx := context.Background()
	body := []byte(`{}`)

	// Wrong API key.
	h := signedHeaders(a, "whatever", body, now)
	h.Set(HeaderAPIKey, "wrong")
	_, err := a.Verify(ctx, h, body)
	assertCode(t, err, model.ErrAuth)

	// Unknown token.
	h = signedHeaders(a, "does-not-exist", body, now)
	_, err = a.Verify(ctx, h, body)
	assertCode(t, err, model.ErrAuth)

	// Missing timestamp.
	h = signedHeaders(a, "tok", body, now)
	h.Del(HeaderTimestamp)
	_, err = a.Verify(ctx, h, body)
	assertCode(t, err, model.ErrAuth)
}

func TestAuthority_ExpiredToken(t *testing.T) {
	issued := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	a, _ := newTestAuthority(t, issued)
	ctx := context.Background()

	token, _ := a.Issue(ctx, "user-1", "proc-1")

	// Re-create the authority with a clock past the token TTL. The
	// timestamp header is fresh relative to the new clock; only the token
	// itself has aged out.
	later := issued.Add(25 * time.Hour)
	stale := NewAuthority(tokenStoreOf(a), NewSigner(testSecret), testSharedKey,
		24*time.Hour, 5*time.Minute, WithClock(func() time.Time { return later }))

	body := []byte(`{}`)
	_, err := stale.Verify(ctx, signedHeaders(stale, token.Token, body, later), body)
	assertCode(t, err, model.ErrAuth)
}

func TestAuthority_APIKeyPermissions(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	keys := NewMemoryAPIKeyStore()
	a, _ := newTestAuthority(t, now, WithAPIKeyStore(keys))
	ctx := context.Background()

	key, err := a.IssueAPIKey(ctx, "worker-main", []string{model.PermissionAutomation}, time.Hour)
	if err != nil {
		t.Fatalf("IssueAPIKey error: %v", err)
	}

	if _, err := a.VerifyAPIKey(ctx, key.Key, model.PermissionAutomation); err != nil {
		t.Fatalf("VerifyAPIKey error: %v", err)
	}

	// Missing permission.
	_, err = a.VerifyAPIKey(ctx, key.Key, model.PermissionRefreshAPIKey)
	assertCode(t, err, model.ErrForbidden)

	// Revoked key.
	if err := a.RevokeAPIKey(ctx, key.Key); err != nil {
		t.Fatalf("RevokeAPIKey error: %v", err)
	}
	_, err = a.VerifyAPIKey(ctx, key.Key, model.PermissionAutomation)
	assertCode(t, err, model.ErrAuth)
}

func TestAuthority_ScopedKeyAcceptedOnVerify(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	keys := NewMemoryAPIKeyStore()
	a, _ := newTestAuthority(t, now, WithAPIKeyStore(keys))
	ctx := context.Background()

	scoped, _ := a.IssueAPIKey(ctx, "renewed", []string{model.PermissionAutomation}, time.Hour)
	token, _ := a.Issue(ctx, "user-1", "proc-1")

	body := []byte(`{}`)
	h := signedHeaders(a, token.Token, body, now)
	h.Set(HeaderAPIKey, scoped.Key)
	if _, err := a.Verify(ctx, h, body); err != nil {
		t.Fatalf("Verify with scoped key error: %v", err)
	}
}

func TestSigner_Deterministic(t *testing.T) {
	s := NewSigner("secret")
	body := []byte(`{"a":1}`)

	sig1 := s.Sign(body)
	sig2 := s.Sign(body)
	if sig1 != sig2 {
		t.Errorf("signatures differ: %q vs %q", sig1, sig2)
	}
	if !s.Verify(body, sig1) {
		t.Error("Verify(original) = false")
	}
	if s.Verify([]byte(`{"a":2}`), sig1) {
		t.Error("Verify(mutated) = true, want false")
	}
	if s.Verify(body, "not-hex") {
		t.Error("Verify(garbage signature) = true, want false")
	}
}

func TestParseTimestamp(t *testing.T) {
	unix, err := ParseTimestamp("1748772000")
	if err != nil {
		t.Fatalf("ParseTimestamp(unix) error: %v", err)
	}
	if unix.Unix() != 1748772000 {
		t.Errorf("unix = %d", unix.Unix())
	}

	rfc, err := ParseTimestamp("2025-06-01T10:00:00Z")
	if err != nil {
		t.Fatalf("ParseTimestamp(rfc3339) error: %v", err)
	}
	if rfc.UTC().Hour() != 10 {
		t.Errorf("hour = %d", rfc.UTC().Hour())
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}

// tokenStoreOf exposes the store of an authority built by newTestAuthority.
func tokenStoreOf(a *Authority) TokenStore {
	return a.tokens
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		t.Fatalf("error type = %T, want *model.ErrorEnvelope", err)
	}
	if ee.Code != code {
		t.Fatalf("error code = %s, want %s", ee.Code, code)
	}
}
