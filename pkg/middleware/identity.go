package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/collab/pkg/contextkeys"
	"github.com/platinummonkey/collab/pkg/httputil"
)

// DefaultIdentityHeader is set by the authentication gateway in front of the service
const DefaultIdentityHeader = "X-Authenticated-User-Id"

// IdentityMiddleware reads the acting user from a header the gateway has
// already authenticated. The service performs no authentication itself.
type IdentityMiddleware struct {
	header   string
	optional bool // If true, allow requests without an identity
}

// NewIdentityMiddleware creates identity middleware reading header. An empty
// header selects DefaultIdentityHeader.
func NewIdentityMiddleware(header string, optional bool) *IdentityMiddleware {
	if header == "" {
		header = DefaultIdentityHeader
	}
	return &IdentityMiddleware{
		header:   header,
		optional: optional,
	}
}

// Header returns the header the middleware trusts
func (m *IdentityMiddleware) Header() string {
	return m.header
}

// Handler wraps an HTTP handler with identity extraction
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(m.header))
		if userID == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing "+m.header+" header")
			return
		}

		ctx := contextkeys.WithUserID(r.Context(), userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID returns the acting user for r, or "" when none was supplied
func UserID(r *http.Request) string {
	return contextkeys.GetUserID(r.Context())
}
