/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package logtest provides Recorder, an in-memory log.FieldLogger.
// Tests pass it wherever a logger is expected and then assert on messages and fields,
// e.g. that a denied call was logged with the configured cap.
package logtest
