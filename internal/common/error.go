// Package common defines shared constants and sentinel errors used across
// the library's packages. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Transport errors.
	ErrorUnauthorized = errors.New("unauthorized")

	// Protocol codec errors (crypto package).
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrMalformedEnvelope    = errors.New("malformed envelope")
	ErrProtocolTooOld       = errors.New("protocol version outdated")
	ErrProtocolTooNew       = errors.New("protocol version newer than supported")
	ErrKeyCostTooLow        = errors.New("pw_cost below minimum for protocol version")

	// Sync engine errors.
	ErrSyncLocked = errors.New("sync is locked")
)
