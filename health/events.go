package health

import (
	"log/slog"

	"github.com/ice-blockchain/go-dsrouter"
)

type PingFailedEvent struct {
	dsrouter.EventSource
	Failures int
	Error    error
}

func (e PingFailedEvent) EventName() string    { return "ping_failed" }
func (e PingFailedEvent) Message() string      { return "Datasource ping failed" }
func (e PingFailedEvent) LogLevel() slog.Level { return slog.LevelDebug }
func (e PingFailedEvent) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("component", e.Component),
		slog.String("datasource", e.DataSource),
		slog.Int("failures", e.Failures),
		slog.Any("error", e.Error),
	}
}
