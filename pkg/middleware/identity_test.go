package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r)))
	})
}

func TestIdentityMiddleware(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		optional bool
		set      map[string]string
		wantCode int
		wantBody string
	}{
		{"default header", "", false, map[string]string{DefaultIdentityHeader: "alice"}, http.StatusOK, "alice"},
		{"trimmed", "", false, map[string]string{DefaultIdentityHeader: "  bob "}, http.StatusOK, "bob"},
		{"custom header", "X-User", false, map[string]string{"X-User": "carol"}, http.StatusOK, "carol"},
		{"custom header ignores default", "X-User", false, map[string]string{DefaultIdentityHeader: "alice"}, http.StatusUnauthorized, ""},
		{"missing", "", false, nil, http.StatusUnauthorized, ""},
		{"blank", "", false, map[string]string{DefaultIdentityHeader: "   "}, http.StatusUnauthorized, ""},
		{"optional", "", true, nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewIdentityMiddleware(tt.header, tt.optional)
			r := httptest.NewRequest(http.MethodGet, "/projects/p1/role", nil)
			for k, v := range tt.set {
				r.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			m.Handler(echoUser()).ServeHTTP(w, r)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantBody, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), m.Header())
			}
		})
	}
}
