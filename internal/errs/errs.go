package errs

import "errors"

// Domain sentinel errors; the coordinator maps them onto typed error events
// sent back to the originating connection.
var (
	ErrGameNotFound       = errors.New("game not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidFormat      = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
)
