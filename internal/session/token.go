// Package session owns the top-level state machine that wires together a
// checker generation, the finder, the control endpoint, and the watcher
// for the lifetime of one tuick invocation.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Token is the Reload Token: a random value a session mints at startup
// and publishes to its own children via TUICK_RELOAD_KEY. It authorises
// requests to the Control Endpoint's /reload route.
type Token string

// NewToken generates a fresh 128-bit Reload Token.
func NewToken() (Token, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("session: generate token: %w", err)
	}
	return Token(base64.RawURLEncoding.EncodeToString(buf)), nil
}

// String returns the token's wire representation, suitable for the
// TUICK_RELOAD_KEY environment variable or the X-Tuick-Reload-Key header.
func (t Token) String() string {
	return string(t)
}

// NewUUID generates a session ID, used in the save-file name and log
// correlation.
func NewUUID() uuid.UUID {
	return uuid.New()
}
