package session

import (
	"errors"
	"fmt"
	"strings"

	"tablehall/internal/constants"
	"tablehall/internal/wire"
)

// PlayerData is bound to a Session once its handshake succeeds. Its unique
// ID is allocated by the lobby thread and never reused within a process
// lifetime.
type PlayerData struct {
	ID     uint32
	Name   string
	Type   wire.PlayerType
	Rights wire.PlayerRights
}

// ErrInvalidName is the sentinel wrapped by ValidateName's specific reasons.
var ErrInvalidName = errors.New("session: invalid player name")

// ValidateName enforces the handshake naming rules: non-empty, no longer
// than MaxNameSize, must not start with '#', and must not begin with the
// reserved "Computer" prefix used for server-created AI participants.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > constants.MaxNameSize {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, constants.MaxNameSize)
	}
	if name[0] == '#' {
		return fmt.Errorf("%w: starts with reserved character '#'", ErrInvalidName)
	}
	if strings.HasPrefix(name, constants.ComputerPlayerName) {
		return fmt.Errorf("%w: starts with reserved prefix %q", ErrInvalidName, constants.ComputerPlayerName)
	}
	return nil
}
