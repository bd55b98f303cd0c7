/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/rs/xid"
)

const (
	headerRequestID         = "X-Request-ID"
	headerInternalRequestID = "X-Int-Request-ID"
)

// DefaultMaxRequestIDLength is the longest X-Request-ID value accepted from clients.
const DefaultMaxRequestIDLength = 128

// RequestIDOpts represents options for RequestIDWithOpts middleware.
type RequestIDOpts struct {
	// GenerateID produces the external ID when the client did not send one. xid by default.
	GenerateID func() string
	// GenerateInternalID produces the internal ID of every request. xid by default.
	GenerateInternalID func() string
	// MaxLength bounds the client-provided ID. Longer values are replaced with a generated one.
	// DefaultMaxRequestIDLength is used when 0.
	MaxLength int
}

// RequestID tags every request with two IDs: the external one (taken from X-Request-ID or generated)
// and the internal one (always generated). Both are put into the request context and echoed
// in X-Request-ID and X-Int-Request-ID response headers, so a request rejected by CallLimit
// can still be correlated with client-side logs.
func RequestID() func(next http.Handler) http.Handler {
	return RequestIDWithOpts(RequestIDOpts{})
}

// RequestIDWithOpts is a more configurable version of RequestID middleware.
func RequestIDWithOpts(opts RequestIDOpts) func(next http.Handler) http.Handler {
	genExternal := opts.GenerateID
	if genExternal == nil {
		genExternal = generateXID
	}
	genInternal := opts.GenerateInternalID
	if genInternal == nil {
		genInternal = generateXID
	}
	maxLen := opts.MaxLength
	if maxLen <= 0 {
		maxLen = DefaultMaxRequestIDLength
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			extID := r.Header.Get(headerRequestID)
			if extID == "" || len(extID) > maxLen {
				extID = genExternal()
			}
			intID := genInternal()

			rw.Header().Set(headerRequestID, extID)
			rw.Header().Set(headerInternalRequestID, intID)

			ctx := NewContextWithRequestID(r.Context(), extID)
			ctx = NewContextWithInternalRequestID(ctx, intID)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

func generateXID() string {
	return xid.New().String()
}
