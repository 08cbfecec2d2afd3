package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bobmcallan/aviary/internal/common"
	"github.com/bobmcallan/aviary/internal/interfaces"
	"github.com/bobmcallan/aviary/internal/models"
)

// responseWriter wraps http.ResponseWriter to capture the status code
// written, for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// recoveryMiddleware catches panics in handlers and returns 500.
func recoveryMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().Str("panic", fmt.Sprintf("%v", rec)).Str("path", r.URL.Path).Msg("panic recovered in HTTP handler")
					WriteError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// apiRequestMiddleware logs every request as api-request with method, path,
// query, and body, per the admission surface contract.
func apiRequestMiddleware(observer interfaces.Observer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body string
			if r.Body != nil {
				raw, _ := io.ReadAll(io.LimitReader(r.Body, 1<<16))
				r.Body.Close()
				r.Body = io.NopCloser(strings.NewReader(string(raw)))
				body = string(raw)
			}

			if observer != nil {
				_, _ = observer.Log(r.Context(), models.ActionAPIRequest, models.SeverityLog, map[string]any{
					"method": r.Method,
					"path":   r.URL.Path,
					"query":  r.URL.RawQuery,
					"body":   body,
				})
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs request method/path/status/duration.
func loggingMiddleware(logger *common.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			event := logger.Debug()
			if rw.statusCode >= 500 {
				event = logger.Error()
			} else if rw.statusCode >= 400 {
				event = logger.Warn()
			}
			event.Str("method", r.Method).Str("path", r.URL.Path).Int("status", rw.statusCode).Dur("duration", time.Since(start)).Msg("http request")
		})
	}
}

// admissionTokenMiddleware rejects requests lacking a valid admission-scoped
// JWT, signed with secret, when a secret is configured. With no secret
// configured, every request passes through unchanged.
func admissionTokenMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")
			if err := validateAdmissionToken(tokenString, secret); err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				WriteError(w, http.StatusUnauthorized, "missing or invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// applyMiddleware wraps handler with the full middleware stack, innermost
// first.
func applyMiddleware(handler http.Handler, logger *common.Logger, observer interfaces.Observer, admissionTokenSecret string) http.Handler {
	handler = apiRequestMiddleware(observer)(handler)
	handler = admissionTokenMiddleware(admissionTokenSecret)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)
	return handler
}
