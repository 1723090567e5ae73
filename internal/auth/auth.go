package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/iurnickita/gascontrol/internal/auth/config"
	"github.com/iurnickita/gascontrol/internal/token"
)

type Auth interface {
	Middleware(h http.Handler) http.Handler
}

type contextKey struct{}

var operatorKey contextKey

const bearerPrefix = "Bearer "

type auth struct {
	cfg    config.Config
	zaplog *zap.Logger
}

func NewAuth(cfg config.Config, zaplog *zap.Logger) Auth {
	if zaplog == nil {
		zaplog = zap.NewNop()
	}
	return &auth{cfg: cfg, zaplog: zaplog}
}

// Middleware admits requests carrying a valid bearer token and stores the
// operator id in the request context. No token → 401, bad token → 403.
func (a *auth) Middleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			http.Error(w, "authorization required", http.StatusUnauthorized)
			return
		}

		// получение id оператора
		operator, err := token.GetOperator(strings.TrimPrefix(header, bearerPrefix), a.cfg.Secret, a.cfg.Issuer)
		if err != nil {
			a.zaplog.Debug("token rejected", zap.Error(err))
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		// передаём управление хендлеру
		h.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), operator)))
	})
}

func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}

// Operator returns the operator id stored by Middleware, or "".
func Operator(ctx context.Context) string {
	operator, _ := ctx.Value(operatorKey).(string)
	return operator
}
