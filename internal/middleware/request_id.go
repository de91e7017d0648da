// Package middleware provides HTTP middleware components.
package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// RequestIDHeader is the HTTP header carrying the request ID.
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength bounds client-supplied IDs before they reach the logs.
const maxRequestIDLength = 64

type requestInfoKey struct{}

// requestInfo is filled in as the request moves down the chain and read back
// by the access log and the panic handler once it returns.
type requestInfo struct {
	id string

	mu     sync.Mutex
	userID string
}

func (ri *requestInfo) setUserID(id string) {
	ri.mu.Lock()
	ri.userID = id
	ri.mu.Unlock()
}

func (ri *requestInfo) user() string {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	return ri.userID
}

// RequestID tags each request with an ID. A well-formed X-Request-ID from the
// client is kept; anything else is replaced with a fresh UUID. The ID is
// echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestInfoKey{}, &requestInfo{id: id})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID, or "" outside RequestID.
func GetRequestID(ctx context.Context) string {
	if ri := infoFrom(ctx); ri != nil {
		return ri.id
	}
	return ""
}

// SetUserID records the authenticated user on the request so the access log
// can attribute it. It is a no-op outside RequestID.
func SetUserID(ctx context.Context, userID string) {
	if ri := infoFrom(ctx); ri != nil {
		ri.setUserID(userID)
	}
}

// GetUserID returns the user recorded by SetUserID.
func GetUserID(ctx context.Context) string {
	if ri := infoFrom(ctx); ri != nil {
		return ri.user()
	}
	return ""
}

func infoFrom(ctx context.Context) *requestInfo {
	ri, _ := ctx.Value(requestInfoKey{}).(*requestInfo)
	return ri
}

// validRequestID accepts short IDs made of letters, digits, '-', '_' and '.'.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}
