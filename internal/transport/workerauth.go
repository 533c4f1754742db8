package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/relayops/relay/internal/auth"
	"github.com/relayops/relay/model"
)

// maxWorkerBody bounds inbound worker request bodies.
const maxWorkerBody = 1 << 20

type workerIdentityKey struct{}
type rawBodyKey struct{}

// IdentityFrom extracts the verified worker identity from the context.
func IdentityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(workerIdentityKey{}).(auth.Identity)
	return id
}

// RawBodyFrom extracts the raw request body captured by the worker auth
// middleware. Handlers decode from these bytes instead of re-reading the
// request body.
func RawBodyFrom(ctx context.Context) []byte {
	body, _ := ctx.Value(rawBodyKey{}).([]byte)
	return body
}

// readRawBody consumes the request body once and rewinds it so later
// decoding still works. The signature must cover exactly these bytes.
func readRawBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWorkerBody))
	if err != nil {
		return nil, model.NewBadRequestError("unreadable request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// WorkerAuth verifies the four-header signed-request scheme on worker
// routes and stores the bound identity plus the raw body in the context.
func WorkerAuth(authority *auth.Authority) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := readRawBody(r)
			if err != nil {
				WriteError(w, err)
				return
			}

			identity, err := authority.Verify(r.Context(), r.Header, body)
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), workerIdentityKey{}, identity)
			ctx = context.WithValue(ctx, rawBodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WorkerKeyAuth verifies a token-less signed worker request whose API key
// must hold the named permission. Used for routes not bound to a process.
func WorkerKeyAuth(authority *auth.Authority, permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := readRawBody(r)
			if err != nil {
				WriteError(w, err)
				return
			}

			if err := authority.VerifySigned(r.Context(), r.Header, body, permission); err != nil {
				WriteError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), rawBodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
