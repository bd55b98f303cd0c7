/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"time"

	"github.com/zanata/restlimit/log"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyInternalRequestID
	ctxKeyLogger
	ctxKeyRequestStartTime
)

// ctxValue is a typed accessor for a single request-scoped value.
// Missing values are read as the zero value of T.
type ctxValue[T any] ctxKey

func (k ctxValue[T]) put(ctx context.Context, v T) context.Context {
	return context.WithValue(ctx, ctxKey(k), v)
}

func (k ctxValue[T]) get(ctx context.Context) T {
	v, _ := ctx.Value(ctxKey(k)).(T)
	return v
}

var (
	requestIDValue         = ctxValue[string](ctxKeyRequestID)
	internalRequestIDValue = ctxValue[string](ctxKeyInternalRequestID)
	loggerValue            = ctxValue[log.FieldLogger](ctxKeyLogger)
	requestStartTimeValue  = ctxValue[time.Time](ctxKeyRequestStartTime)
)

// NewContextWithRequestID returns ctx carrying the external request ID (X-Request-ID).
func NewContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return requestIDValue.put(ctx, requestID)
}

// GetRequestIDFromContext returns the external request ID or "".
func GetRequestIDFromContext(ctx context.Context) string {
	return requestIDValue.get(ctx)
}

// NewContextWithInternalRequestID returns ctx carrying the ID generated by this service for the request.
func NewContextWithInternalRequestID(ctx context.Context, internalRequestID string) context.Context {
	return internalRequestIDValue.put(ctx, internalRequestID)
}

// GetInternalRequestIDFromContext returns the internal request ID or "".
func GetInternalRequestIDFromContext(ctx context.Context) string {
	return internalRequestIDValue.get(ctx)
}

// NewContextWithLogger returns ctx carrying the request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger log.FieldLogger) context.Context {
	return loggerValue.put(ctx, logger)
}

// GetLoggerFromContext returns the request-scoped logger or nil when Logging middleware was not applied.
func GetLoggerFromContext(ctx context.Context) log.FieldLogger {
	return loggerValue.get(ctx)
}

// NewContextWithRequestStartTime returns ctx carrying the moment the request was received.
func NewContextWithRequestStartTime(ctx context.Context, startTime time.Time) context.Context {
	return requestStartTimeValue.put(ctx, startTime)
}

// GetRequestStartTimeFromContext returns the request start time or the zero time.
func GetRequestStartTimeFromContext(ctx context.Context) time.Time {
	return requestStartTimeValue.get(ctx)
}
