/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/zanata/restlimit/limits"
	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/restapi"
)

// StatusClientClosedRequest is a non-standard status code that is logged
// when the client goes away while the request is waiting for an active permit.
const StatusClientClosedRequest = 499

// Log fields for CallLimit middleware.
const (
	CallLimitLogFieldMaxConcurrent = "call_limit_max_concurrent"
	CallLimitLogFieldMaxActive     = "call_limit_max_active"
)

// CallLimiter is the admission control used by CallLimit middleware. It is implemented by *limits.CallLimiter.
type CallLimiter interface {
	TryAcquireAndRunContext(ctx context.Context, work limits.Work) (admitted bool, err error)
	MaxConcurrent() int
	MaxActive() int
}

var _ CallLimiter = (*limits.CallLimiter)(nil)

// CallLimitParams contains data that relates to the call limiting procedure
// and could be used for rejecting or handling an occurred error.
type CallLimitParams struct {
	ResponseStatusCode int
	GetRetryAfter      CallLimitGetRetryAfterFunc
	ErrDomain          string
	MaxConcurrent      int
	MaxActive          int
}

// CallLimitGetRetryAfterFunc is a function that is called to get a value for Retry-After response HTTP header
// when the request is denied.
type CallLimitGetRetryAfterFunc func(r *http.Request) time.Duration

// CallLimitOnRejectFunc is a function that is called for rejecting HTTP request when no concurrent permit is free.
type CallLimitOnRejectFunc func(rw http.ResponseWriter, r *http.Request, params CallLimitParams, next http.Handler, logger log.FieldLogger)

// CallLimitOnErrorFunc is a function that is called when the request could not be admitted
// because its context was done while waiting for an active permit.
type CallLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params CallLimitParams, err error, next http.Handler, logger log.FieldLogger)

// CallLimitOpts represents an options for the middleware to limit concurrent and active HTTP requests.
type CallLimitOpts struct {
	// ResponseStatusCode is used for denied requests. 503 is used by default.
	ResponseStatusCode int
	GetRetryAfter      CallLimitGetRetryAfterFunc
	OnReject           CallLimitOnRejectFunc
	OnError            CallLimitOnErrorFunc
}

type callLimitHandler struct {
	limiter        CallLimiter
	next           http.Handler
	errDomain      string
	respStatusCode int
	getRetryAfter  CallLimitGetRetryAfterFunc
	onReject       CallLimitOnRejectFunc
	onError        CallLimitOnErrorFunc
}

// CallLimit is a middleware that passes every HTTP request through the call limiter.
// A request that gets no concurrent permit is rejected with 503 immediately,
// an admitted request waits for an active permit before the next handler is called.
func CallLimit(limiter CallLimiter, errDomain string) func(next http.Handler) http.Handler {
	return CallLimitWithOpts(limiter, errDomain, CallLimitOpts{})
}

// CallLimitWithOpts is a configurable version of a middleware to limit concurrent and active HTTP requests.
func CallLimitWithOpts(limiter CallLimiter, errDomain string, opts CallLimitOpts) func(next http.Handler) http.Handler {
	respStatusCode := opts.ResponseStatusCode
	if respStatusCode == 0 {
		respStatusCode = http.StatusServiceUnavailable
	}
	onReject := opts.OnReject
	if onReject == nil {
		onReject = DefaultCallLimitOnReject
	}
	onError := opts.OnError
	if onError == nil {
		onError = DefaultCallLimitOnError
	}
	return func(next http.Handler) http.Handler {
		return &callLimitHandler{
			limiter:        limiter,
			next:           next,
			errDomain:      errDomain,
			respStatusCode: respStatusCode,
			getRetryAfter:  opts.GetRetryAfter,
			onReject:       onReject,
			onError:        onError,
		}
	}
}

func (h *callLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	admitted, err := h.limiter.TryAcquireAndRunContext(r.Context(), func(_ context.Context) error {
		h.next.ServeHTTP(rw, r)
		return nil
	})
	if err != nil {
		h.onError(rw, r, h.makeParams(), err, h.next, GetLoggerFromContext(r.Context()))
		return
	}
	if !admitted {
		h.onReject(rw, r, h.makeParams(), h.next, GetLoggerFromContext(r.Context()))
	}
}

func (h *callLimitHandler) makeParams() CallLimitParams {
	return CallLimitParams{
		ResponseStatusCode: h.respStatusCode,
		GetRetryAfter:      h.getRetryAfter,
		ErrDomain:          h.errDomain,
		MaxConcurrent:      h.limiter.MaxConcurrent(),
		MaxActive:          h.limiter.MaxActive(),
	}
}

// DefaultCallLimitOnReject sends HTTP response with JSON error when no concurrent permit is free.
func DefaultCallLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params CallLimitParams, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger = logger.With(
			log.Int(CallLimitLogFieldMaxConcurrent, params.MaxConcurrent),
			log.String(userAgentLogFieldKey, r.UserAgent()),
		)
	}
	if params.GetRetryAfter != nil {
		rw.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(params.GetRetryAfter(r).Seconds()))))
	}
	apiErr := restapi.NewTooManyConcurrentRequestsError(params.ErrDomain)
	restapi.RespondError(rw, params.ResponseStatusCode, apiErr, logger)
}

// DefaultCallLimitOnError handles a request whose context was done while it was waiting for an active permit.
// If the client has gone, nothing is written to the body and 499 status is used for logging.
// Otherwise (e.g. the deadline of the request is exceeded) the request is rejected as denied.
func DefaultCallLimitOnError(
	rw http.ResponseWriter, r *http.Request, params CallLimitParams, err error, next http.Handler, logger log.FieldLogger,
) {
	if errors.Is(err, context.Canceled) {
		if logger != nil {
			logger.Warn("request is canceled while waiting for active permit",
				log.Int(CallLimitLogFieldMaxActive, params.MaxActive), log.Error(err))
		}
		rw.WriteHeader(StatusClientClosedRequest)
		return
	}
	if logger != nil {
		logger.Error("request is not admitted while waiting for active permit",
			log.Int(CallLimitLogFieldMaxActive, params.MaxActive), log.Error(err))
	}
	DefaultCallLimitOnReject(rw, r, params, next, logger)
}
