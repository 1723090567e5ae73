package logger

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/iurnickita/gascontrol/internal/logger/config"
)

// bodies longer than this are logged truncated
const maxLoggedBody = 2048

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	// текстовый уровень в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	return zapcfg.Build()
}

// RequestLogMdlw logs every incoming HTTP request and its response.
func RequestLogMdlw(zaplog *zap.Logger) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var bodyBytes []byte
			if r.Body != nil {
				// в лог идёт только начало тела, обработчик получает его целиком
				bodyBytes, _ = io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
				r.Body = prefixedBody{
					Reader: io.MultiReader(bytes.NewReader(bodyBytes), r.Body),
					Closer: r.Body,
				}
			}

			zaplog.Info("got incoming HTTP request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.ByteString("body", truncate(bodyBytes)),
			)

			wl := NewResponseWriterLogger(w)

			handlerStart := time.Now()
			h.ServeHTTP(wl, r)
			handlerDuration := time.Since(handlerStart)

			zaplog.Info("send HTTP response",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Int("code", wl.statusCode),
				zap.ByteString("body", truncate(wl.body)),
				zap.Int("length", wl.length),
				zap.Duration("duration", handlerDuration),
			)
		})
	}
}

// prefixedBody replays the bytes already read for the log before the rest of
// the original body.
type prefixedBody struct {
	io.Reader
	io.Closer
}

func truncate(b []byte) []byte {
	if len(b) > maxLoggedBody {
		return b[:maxLoggedBody]
	}
	return b
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
	body       []byte
}

func NewResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{w, http.StatusOK, 0, []byte{}}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	if len(wl.body) < maxLoggedBody {
		wl.body = append(wl.body, b...)
	}
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}
