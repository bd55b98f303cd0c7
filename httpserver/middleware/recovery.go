/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/restapi"
)

// RecoveryDefaultStackSize is how many bytes of the panicking goroutine's stack are logged by default.
const RecoveryDefaultStackSize = 8192

// RecoveryOpts represents options for RecoveryWithOpts middleware.
type RecoveryOpts struct {
	// StackSize bounds the logged stack trace. 0 disables stack logging.
	StackSize int
}

// Recovery turns a handler panic into a 500 JSON error and logs the panic value with a stack trace
// (when a logger is in the request context). http.ErrAbortHandler is re-panicked so the server can abort the connection.
// Permits of the call limiter are already released when the panic reaches this middleware.
func Recovery(errDomain string) func(next http.Handler) http.Handler {
	return RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: RecoveryDefaultStackSize})
}

// RecoveryWithOpts is a more configurable version of Recovery middleware.
func RecoveryWithOpts(errDomain string, opts RecoveryOpts) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					handlePanic(rw, r, p, errDomain, opts.StackSize)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

func handlePanic(rw http.ResponseWriter, r *http.Request, p interface{}, errDomain string, stackSize int) {
	logger := GetLoggerFromContext(r.Context())
	if p == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
		if logger != nil {
			logger.Warn("request has been aborted", log.Error(http.ErrAbortHandler))
		}
		panic(p)
	}
	if logger != nil {
		var fields []log.Field
		if stackSize > 0 {
			buf := make([]byte, stackSize)
			fields = append(fields, log.String("stack", string(buf[:runtime.Stack(buf, false)])))
		}
		logger.Error(fmt.Sprintf("Panic: %+v", p), fields...)
	}
	restapi.RespondInternalError(rw, errDomain, logger)
}
