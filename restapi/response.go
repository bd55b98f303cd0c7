/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/zanata/restlimit/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData is the body of every error response: {"error": {...}}.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

// RespondJSON writes respData as JSON with 200 status code.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON writes respData as JSON (HTML characters are not escaped) with the given status code.
// Content-Type is set only when the handler has not set it. A nil respData gives an empty body.
// If respData cannot be marshaled, 500 is sent instead. logger may be nil.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(respData); err != nil {
		logIfPossible(logger, "error while marshaling json for response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	body.Truncate(body.Len() - 1) // Encode always appends '\n'.

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err := body.WriteTo(rw); err != nil {
		logIfPossible(logger, "error while writing response body", err)
	}
}

// RespondError responds with {"error": err} and the given status code.
// The error is logged and counted in the response_errors_total metric (if initialized).
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		logger.Error("error in response", err.logFields()...)
	}
	collectResponseErrorMetrics(err)
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{Err: err}, logger)
}

// RespondInternalError responds with 500 and the internal error of the domain.
func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

func (e *Error) logFields() []log.Field {
	fields := []log.Field{log.String("error_code", e.Code), log.String("error_message", e.Message)}
	if len(e.Context) == 0 {
		return fields
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ctxLines := make([]string, len(keys))
	for i, k := range keys {
		ctxLines[i] = fmt.Sprintf("%s: %v", k, e.Context[k])
	}
	return append(fields, log.Strings("error_context", ctxLines))
}

func logIfPossible(logger log.FieldLogger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, log.Error(err))
	}
}
