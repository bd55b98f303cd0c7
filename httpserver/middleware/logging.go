/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zanata/restlimit/log"
)

const (
	userAgentLogFieldKey = "user_agent"

	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
)

// uriMasker hides credentials that clients pass as query parameters.
var uriMasker = log.NewMasker(log.DefaultMaskingRules)

// LoggingOpts represents options for LoggingWithOpts middleware.
type LoggingOpts struct {
	// RequestStart enables logging of a separate "request started" message.
	RequestStart bool

	// ExcludedEndpoints are paths for which successful responses are not logged.
	ExcludedEndpoints []string

	// AddRequestInfoToLogger adds method, URI and remote address to the logger that is put into request's context.
	AddRequestInfoToLogger bool
}

type loggingHandler struct {
	next     http.Handler
	logger   log.FieldLogger
	opts     LoggingOpts
	excluded map[string]struct{}
}

// Logging logs every HTTP request on completion (status, duration, bytes sent) and puts a logger with
// request IDs into the request context. Handlers and other middlewares (CallLimit, Recovery)
// get it with GetLoggerFromContext.
func Logging(logger log.FieldLogger) func(next http.Handler) http.Handler {
	return LoggingWithOpts(logger, LoggingOpts{})
}

// LoggingWithOpts is a more configurable version of Logging middleware.
func LoggingWithOpts(logger log.FieldLogger, opts LoggingOpts) func(next http.Handler) http.Handler {
	excluded := make(map[string]struct{}, len(opts.ExcludedEndpoints))
	for _, endpoint := range opts.ExcludedEndpoints {
		excluded[endpoint] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return &loggingHandler{next: next, logger: logger, opts: opts, excluded: excluded}
	}
}

func (h *loggingHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := GetRequestStartTimeFromContext(ctx)
	if startTime.IsZero() {
		startTime = time.Now()
		ctx = NewContextWithRequestStartTime(ctx, startTime)
	}

	idLogger := h.logger.With(
		log.String("request_id", GetRequestIDFromContext(ctx)),
		log.String("int_request_id", GetInternalRequestIDFromContext(ctx)),
	)
	reqLogger := idLogger.With(requestLogFields(r)...)
	ctxLogger := idLogger
	if h.opts.AddRequestInfoToLogger {
		ctxLogger = reqLogger
	}

	_, excluded := h.excluded[r.URL.Path]
	if h.opts.RequestStart && !excluded {
		reqLogger.Info("request started")
	}

	wrw := WrapResponseWriterIfNeeded(rw, r.ProtoMajor)
	h.next.ServeHTTP(wrw, r.WithContext(NewContextWithLogger(ctx, ctxLogger)))

	status := wrw.Status()
	if status == 0 {
		status = http.StatusOK
	}
	// Errors are logged even for excluded endpoints.
	if excluded && status < http.StatusBadRequest {
		return
	}
	elapsed := time.Since(startTime)
	reqLogger.Info(fmt.Sprintf("response completed in %.3fs", elapsed.Seconds()),
		log.Int64("duration_ms", elapsed.Milliseconds()),
		log.Int("status", status),
		log.Int("bytes_sent", wrw.BytesWritten()),
	)
}

func requestLogFields(r *http.Request) []log.Field {
	fields := make([]log.Field, 0, 6)
	fields = append(fields,
		log.String("method", r.Method),
		log.String("uri", uriMasker.Mask(r.RequestURI)),
		log.String("remote_addr", r.RemoteAddr),
		log.Int64("content_length", r.ContentLength),
		log.String(userAgentLogFieldKey, r.UserAgent()),
	)
	if origin := originAddr(r); origin != "" {
		fields = append(fields, log.String("origin_addr", origin))
	}
	return fields
}

// originAddr returns the client address reported by a proxy: the first X-Forwarded-For entry or X-Real-IP.
func originAddr(r *http.Request) string {
	if forwardedFor := r.Header.Get(headerForwardedFor); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	return strings.TrimSpace(r.Header.Get(headerRealIP))
}
