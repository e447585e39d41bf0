package lobby

import (
	"log/slog"

	"tablehall/internal/wire"
)

// ServerCallback is the lobby's one-way notification interface to whatever
// sits above the networking core (a GUI, a metrics sink, ...). Invoked from
// LobbyThread's own goroutine; implementations must not block.
type ServerCallback interface {
	SignalNetServerSuccess(actionID uint32)
	SignalNetServerError(errorCode wire.ErrorCode, osErrorCode int)
	SignalNetServerPlayerJoined(name string)
	SignalNetServerPlayerLeft(name string)
}

type loggingCallback struct {
	logger *slog.Logger
}

// NewLoggingCallback returns the default ServerCallback: it just logs each
// event at an appropriate level.
func NewLoggingCallback(logger *slog.Logger) ServerCallback {
	return loggingCallback{logger: logger}
}

func (c loggingCallback) SignalNetServerSuccess(actionID uint32) {
	c.logger.Info("lobby action succeeded", "actionId", actionID)
}

func (c loggingCallback) SignalNetServerError(errorCode wire.ErrorCode, osErrorCode int) {
	c.logger.Warn("lobby net error", "errorCode", errorCode, "osErrorCode", osErrorCode)
}

func (c loggingCallback) SignalNetServerPlayerJoined(name string) {
	c.logger.Info("player joined lobby", "player", name)
}

func (c loggingCallback) SignalNetServerPlayerLeft(name string) {
	c.logger.Info("player left lobby", "player", name)
}
