package httpapi

import (
	"context"
	"crypto/rand"
	"net/http"
	"strings"
)

type ctxKey int

const requestIDKey ctxKey = 1

const (
	requestIDLen = 8
	alphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

func newRequestID() string {
	rnd := make([]byte, requestIDLen)
	_, _ = rand.Read(rnd)
	for i, v := range rnd {
		rnd[i] = alphabet[int(v)%len(alphabet)]
	}
	return string(rnd)
}

func validRequestID(rid string) bool {
	if len(rid) != requestIDLen {
		return false
	}
	for _, c := range rid {
		if !strings.ContainsRune(alphabet, c) {
			return false
		}
	}
	return true
}

// RequestID tags every request with an 8 character id, reusing a well-formed
// X-Request-ID header from the client. The id is echoed in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if !validRequestID(rid) {
			rid = newRequestID()
		}
		w.Header().Set("X-Request-ID", rid)
		ctx := context.WithValue(r.Context(), requestIDKey, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the id RequestID stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	rid, _ := ctx.Value(requestIDKey).(string)
	return rid
}
