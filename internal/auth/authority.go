package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/relayops/relay/model"
)

// Identity is the proven origin of a verified worker request.
type Identity struct {
	UserID    string
	ProcessID string
	Token     string
}

// Authority issues and verifies per-process single-use tokens and signed
// worker requests. Splitting "prove you are the worker" (API key) from
// "prove this specific message, at this time, for this process" (signature +
// timestamp + token) limits the blast radius of a leaked token to one
// process while still allowing automated key renewal.
type Authority struct {
	tokens    TokenStore
	apiKeys   APIKeyStore
	signer    *Signer
	sharedKey string
	tokenTTL  time.Duration
	freshness time.Duration
	now       func() time.Time
}

// AuthorityOption configures an Authority.
type AuthorityOption func(*Authority)

// WithClock overrides the authority's clock. For testing.
func WithClock(now func() time.Time) AuthorityOption {
	return func(a *Authority) { a.now = now }
}

// WithAPIKeyStore enables verification against capability-scoped worker keys
// in addition to the shared key.
func WithAPIKeyStore(store APIKeyStore) AuthorityOption {
	return func(a *Authority) { a.apiKeys = store }
}

// NewAuthority creates a token authority.
func NewAuthority(
	tokens TokenStore,
	signer *Signer,
	sharedKey string,
	tokenTTL, freshness time.Duration,
	opts ...AuthorityOption,
) *Authority {
	a := &Authority{
		tokens:    tokens,
		signer:    signer,
		sharedKey: sharedKey,
		tokenTTL:  tokenTTL,
		freshness: freshness,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Signer returns the request signer shared with the outbound worker client.
func (a *Authority) Signer() *Signer {
	return a.signer
}

// Issue generates a cryptographically random single-use token bound to the
// process/user pair and persists it with the configured expiry window.
func (a *Authority) Issue(ctx context.Context, userID, processID string) (model.ProcessToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return model.ProcessToken{}, err
	}

	now := a.now().UTC()
	token := model.ProcessToken{
		Token:     hex.EncodeToString(buf),
		ProcessID: processID,
		UserID:    userID,
		ExpiresAt: now.Add(a.tokenTTL),
		CreatedAt: now,
	}
	if err := a.tokens.Create(ctx, token); err != nil {
		return model.ProcessToken{}, err
	}
	return token, nil
}

// Verify checks the four pieces of evidence on an inbound worker request:
// API key, timestamp freshness, token validity, and the HMAC signature over
// the literal received body bytes. It returns the identity bound to the
// token on success.
func (a *Authority) Verify(ctx context.Context, header http.Header, rawBody []byte) (Identity, error) {
	if err := a.checkAPIKey(ctx, header.Get(HeaderAPIKey), model.PermissionAutomation); err != nil {
		return Identity{}, err
	}
	if err := a.checkFreshness(header); err != nil {
		return Identity{}, err
	}

	tokenStr := header.Get(HeaderToken)
	if tokenStr == "" {
		return Identity{}, model.NewAuthError("missing token")
	}
	token, err := a.tokens.Get(ctx, tokenStr)
	if err != nil {
		return Identity{}, model.NewAuthError("unknown token")
	}
	if token.Completed {
		return Identity{}, model.NewAuthError("token already consumed")
	}
	if token.Expired(a.now()) {
		return Identity{}, model.NewAuthError("token expired")
	}

	if !a.signer.Verify(rawBody, header.Get(HeaderSignature)) {
		return Identity{}, model.NewAuthError("signature mismatch")
	}

	return Identity{
		UserID:    token.UserID,
		ProcessID: token.ProcessID,
		Token:     token.Token,
	}, nil
}

// VerifySigned checks a token-less signed request: API key holding the
// named permission, timestamp freshness, and the HMAC signature over the
// raw body. Used by endpoints not bound to a process, such as key renewal.
func (a *Authority) VerifySigned(ctx context.Context, header http.Header, rawBody []byte, permission string) error {
	if err := a.checkAPIKey(ctx, header.Get(HeaderAPIKey), permission); err != nil {
		return err
	}
	if err := a.checkFreshness(header); err != nil {
		return err
	}
	if !a.signer.Verify(rawBody, header.Get(HeaderSignature)) {
		return model.NewAuthError("signature mismatch")
	}
	return nil
}

// checkFreshness bounds the request timestamp to the freshness window in
// either direction.
func (a *Authority) checkFreshness(header http.Header) error {
	ts := header.Get(HeaderTimestamp)
	if ts == "" {
		return model.NewAuthError("missing timestamp")
	}
	sent, err := ParseTimestamp(ts)
	if err != nil {
		return model.NewAuthError("malformed timestamp")
	}
	if age := a.now().Sub(sent); age > a.freshness || age < -a.freshness {
		return model.NewReplayError("request timestamp outside freshness window")
	}
	return nil
}

// Complete idempotently marks a token consumed. Subsequent verifications of
// the token fail with AUTH_ERROR.
func (a *Authority) Complete(ctx context.Context, token string) error {
	return a.tokens.MarkCompleted(ctx, token)
}

// VerifyAPIKey checks a capability-scoped key: it must be known, unrevoked,
// unexpired, and hold the required permission.
func (a *Authority) VerifyAPIKey(ctx context.Context, key, permission string) (model.WorkerAPIKey, error) {
	if a.apiKeys == nil {
		return model.WorkerAPIKey{}, model.NewAuthError("api keys not configured")
	}
	stored, err := a.apiKeys.Get(ctx, key)
	if err != nil {
		return model.WorkerAPIKey{}, model.NewAuthError("unknown api key")
	}
	if !stored.Usable(a.now()) {
		return model.WorkerAPIKey{}, model.NewAuthError("api key revoked or expired")
	}
	if !stored.HasPermission(permission) {
		return model.WorkerAPIKey{}, model.NewForbiddenError("api key lacks permission " + permission)
	}
	return stored, nil
}

// IssueAPIKey generates and persists a capability-scoped worker key.
func (a *Authority) IssueAPIKey(ctx context.Context, name string, permissions []string, ttl time.Duration) (model.WorkerAPIKey, error) {
	if a.apiKeys == nil {
		return model.WorkerAPIKey{}, model.NewAuthError("api keys not configured")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return model.WorkerAPIKey{}, err
	}

	now := a.now().UTC()
	key := model.WorkerAPIKey{
		Key:         hex.EncodeToString(buf),
		Name:        name,
		Permissions: permissions,
		CreatedAt:   now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		key.ExpiresAt = &exp
	}
	if err := a.apiKeys.Create(ctx, key); err != nil {
		return model.WorkerAPIKey{}, err
	}
	return key, nil
}

// RevokeAPIKey marks a capability-scoped key revoked.
func (a *Authority) RevokeAPIKey(ctx context.Context, key string) error {
	if a.apiKeys == nil {
		return model.NewAuthError("api keys not configured")
	}
	return a.apiKeys.Revoke(ctx, key)
}

// checkAPIKey accepts the shared worker key or any usable stored key that
// carries the required permission.
func (a *Authority) checkAPIKey(ctx context.Context, presented, permission string) error {
	if presented == "" {
		return model.NewAuthError("missing api key")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(a.sharedKey)) == 1 {
		return nil
	}
	if a.apiKeys != nil {
		if _, err := a.VerifyAPIKey(ctx, presented, permission); err == nil {
			return nil
		}
	}
	return model.NewAuthError("invalid api key")
}
