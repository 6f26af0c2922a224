// Package http serves the DevLens REST API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	dlerrors "github.com/devlens/devlens/internal/errors"
)

type ctxKey struct{}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws so that the first one sees the request first.
func Chain(mws ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// DefaultMiddleware is the chain every API route runs behind. outer runs
// before it, in order.
func DefaultMiddleware(outer ...func(http.Handler) http.Handler) Middleware {
	mws := make([]Middleware, 0, len(outer)+3)
	for _, mw := range outer {
		mws = append(mws, mw)
	}
	return Chain(append(mws, RequestID, AccessLog, Recover)...)
}

// RequestID propagates X-Request-ID, minting a UUIDv7 when the client did
// not send one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// GetRequestID returns the id RequestID stored on ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// AccessLog logs one line per request. Health probes are not logged.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("HTTP: %s %s %d %s id=%s", r.Method, r.URL.Path, rec.status,
			time.Since(start).Round(time.Microsecond), GetRequestID(r.Context()))
	})
}

// Recover turns a handler panic into a 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Printf("HTTP: panic serving %s %s: %v", r.Method, r.URL.Path, v)
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{
					Error:     "internal server error",
					Code:      dlerrors.CodeUnexpected,
					RequestID: GetRequestID(r.Context()),
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// instrument reports the final status of every request on route.
func instrument(route string, observe func(route string, status int), next http.Handler) http.Handler {
	if observe == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		observe(route, rec.status)
	})
}

// writeDomainError maps err onto a status code and writes it. Only 5xx
// errors are logged; client mistakes are the client's to see.
func writeDomainError(w http.ResponseWriter, err error, requestID string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("HTTP: request %s failed: %v", requestID, err)
	}

	message := err.Error()
	var de *dlerrors.DevLensError
	if errors.As(err, &de) {
		message = de.Message
	}
	writeJSON(w, status, ErrorResponse{
		Error:     message,
		Code:      dlerrors.GetCode(err),
		RequestID: requestID,
	})
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch dlerrors.KindOf(err) {
	case dlerrors.KindNotFound:
		return http.StatusNotFound
	case dlerrors.KindInvalid:
		return http.StatusBadRequest
	case dlerrors.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("HTTP: encode response: %v", err)
	}
}
