/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zanata/restlimit/log"
	"github.com/zanata/restlimit/log/logtest"
	"github.com/zanata/restlimit/restapi"
	"github.com/zanata/restlimit/testutil"
)

func TestRecoveryHandler_ServeHTTP(t *testing.T) {
	const errDomain = "MyService"

	panicking := func(p interface{}) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			panic(p)
		})
	}

	t.Run("recovery w/o logging", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		resp := httptest.NewRecorder()
		handler := Recovery(errDomain)(panicking("test"))

		require.NotPanics(t, func() { handler.ServeHTTP(resp, req) })
		testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, errDomain, restapi.ErrCodeInternal)
	})

	t.Run("recovery with logging", func(t *testing.T) {
		logger := logtest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		resp := httptest.NewRecorder()
		handler := RecoveryWithOpts(errDomain, RecoveryOpts{StackSize: 10})(panicking("test"))

		require.NotPanics(t, func() { handler.ServeHTTP(resp, req) })
		testutil.RequireErrorInRecorder(t, resp, http.StatusInternalServerError, errDomain, restapi.ErrCodeInternal)

		logEntry, found := logger.FindEntry("Panic: test")
		require.True(t, found)
		require.Equal(t, log.LevelError, logEntry.Level)
		stackField, found := logEntry.FindField("stack")
		require.True(t, found)
		require.Len(t, stackField.Bytes, 10)
	})

	t.Run("http.ErrAbortHandler is propagated", func(t *testing.T) {
		logger := logtest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		resp := httptest.NewRecorder()
		handler := Recovery(errDomain)(panicking(http.ErrAbortHandler))

		require.PanicsWithValue(t, http.ErrAbortHandler, func() { handler.ServeHTTP(resp, req) })
		_, found := logger.FindEntry("request has been aborted")
		require.True(t, found)
	})
}
