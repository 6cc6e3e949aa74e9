package homeassistant

import (
	"errors"
	"fmt"
)

// Domain errors for the homeassistant package.
var (
	// ErrAuthFailed is returned when Home Assistant rejects the access token.
	ErrAuthFailed = errors.New("homeassistant: authentication failed")

	// ErrCommandFailed is returned when a command result reports success=false.
	ErrCommandFailed = errors.New("homeassistant: command failed")

	// ErrProtocol is returned when the server sends an unexpected message.
	ErrProtocol = errors.New("homeassistant: unexpected message")

	// ErrInvalidURL is returned when the configured URL cannot be turned
	// into a websocket endpoint.
	ErrInvalidURL = errors.New("homeassistant: invalid url")
)

// CommandError carries the error code and message of a failed command.
// It matches ErrCommandFailed with errors.Is.
type CommandError struct {
	Command string
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("homeassistant: %s failed: %s (%s)", e.Command, e.Message, e.Code)
}

// Unwrap lets errors.Is match ErrCommandFailed.
func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}
