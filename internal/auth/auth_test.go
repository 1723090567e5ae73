package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/gascontrol/internal/auth/config"
	"github.com/iurnickita/gascontrol/internal/token"
)

func TestMiddleware(t *testing.T) {
	a := NewAuth(config.Config{Secret: "secret"}, nil)

	var got string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = Operator(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	valid, err := token.BuildJWTString("secret", "", "gasero-1", time.Hour)
	require.NoError(t, err)
	forged, err := token.BuildJWTString("other", "", "gasero-1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		code     int
		operator string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, "gasero-1"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"not bearer", "Basic abc", http.StatusUnauthorized, ""},
		{"forged", "Bearer " + forged, http.StatusForbidden, ""},
		{"garbage", "Bearer xyz", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = ""
			request := httptest.NewRequest(http.MethodGet, "/api/fiados", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, request)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.operator, got)
		})
	}
}
