// Package auth allows for authenticating requests against some external
// identity provider. The production deployment fronts the daemon with a
// wallet-signature middleware; inside the process only the resolved
// identity string circulates.
package auth

import (
	"context"
	"net/http"

	"github.com/oneconcern/paramon/pkg/status"
)

// Authable knows how to retrieve a principal from a request
type Authable interface {
	Principal(r *http.Request) (string, error)
}

// DefaultIdentityHeader is the header trusted by the header resolver
const DefaultIdentityHeader = "X-Identity"

// NewHeader resolves the identity from a trusted request header, standing
// in for the external signature-verifying middleware
func NewHeader(header string) Authable {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return &headerAuth{header: header}
}

type headerAuth struct {
	header string
}

func (h *headerAuth) Principal(r *http.Request) (string, error) {
	identity := r.Header.Get(h.header)
	if identity == "" {
		return "", status.ErrAuthorization.WrapMsg("missing %s header", h.header)
	}
	return identity, nil
}

type ctxKey struct{}

// WithIdentity stores the resolved identity on a request context
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

// IdentityFromContext retrieves the identity stored by the middleware
func IdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(ctxKey{}).(string)
	return identity, ok && identity != ""
}
