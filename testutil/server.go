/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

// LocalAddrWithFreePort returns a 127.0.0.1:<port> address where nobody listens at the moment of the call.
func LocalAddrWithFreePort() string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(err)
	}
	defer func() { _ = ln.Close() }()
	return fmt.Sprintf("127.0.0.1:%d", ln.Addr().(*net.TCPAddr).Port)
}

// WaitForListener polls addr until it accepts a TCP connection or timeout elapses.
func WaitForListener(addr string, timeout time.Duration) error {
	policy := backoff.NewConstantBackOff(10 * time.Millisecond)
	dial := func() error {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	}
	deadline := time.Now().Add(timeout)
	return backoff.Retry(func() error {
		err := dial()
		if err != nil && time.Now().After(deadline) {
			return backoff.Permanent(fmt.Errorf("%s is not listening after %s: %w", addr, timeout, err))
		}
		return err
	}, policy)
}

// RequireNoPendingError asserts that the buffered channel holds no error right now.
// It never blocks.
func RequireNoPendingError(t require.TestingT, errs <-chan error, msgAndArgs ...interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	select {
	case err := <-errs:
		require.NoError(t, err, msgAndArgs...)
	default:
	}
}
