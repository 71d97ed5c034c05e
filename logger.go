package dsrouter

import (
	"context"
	"log"
	"log/slog"

	"github.com/go-logr/logr"
)

// Logger receives routing events.
type Logger interface {
	Report(event LogEvent)
}

type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
}

func NewSlogLogger(logger *slog.Logger) SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return SlogLogger{
		logger: logger,
		ctx:    context.Background(),
	}
}

func (l *SlogLogger) WithContext(ctx context.Context) SlogLogger {
	return SlogLogger{
		logger: l.logger,
		ctx:    ctx,
	}
}

func (l SlogLogger) Report(event LogEvent) {
	l.logger.LogAttrs(l.ctx, event.LogLevel(), event.Message(), event.LogAttrs()...)
}

type SimpleLogger struct{}

func (l SimpleLogger) Report(event LogEvent) {
	log.Printf("[%s] %s [event=%s]", event.LogLevel(), event.Message(), event.EventName())

	for _, attr := range event.LogAttrs() {
		switch attr.Key {
		case "error":
			log.Printf("  Error: %v", attr.Value.Any())
		case "datasource":
			log.Printf("  Datasource: %v", attr.Value.Any())
		}
	}
}

// LogrLogger reports events to a logr.Logger. Debug events are logged at
// V(1).
type LogrLogger struct {
	logger logr.Logger
}

func NewLogrLogger(logger logr.Logger) LogrLogger {
	return LogrLogger{logger: logger}
}

func (l LogrLogger) Report(event LogEvent) {
	var err error
	attrs := event.LogAttrs()
	kv := make([]interface{}, 0, 2*len(attrs)+2)
	for _, attr := range attrs {
		if attr.Key == "error" {
			if e, ok := attr.Value.Any().(error); ok {
				err = e
				continue
			}
		}
		kv = append(kv, attr.Key, attr.Value.Any())
	}
	kv = append(kv, "event", event.EventName())

	switch level := event.LogLevel(); {
	case level >= slog.LevelError:
		l.logger.Error(err, event.Message(), kv...)
	case level < slog.LevelInfo:
		l.logger.V(1).Info(event.Message(), kv...)
	default:
		if err != nil {
			kv = append(kv, "error", err.Error())
		}
		l.logger.Info(event.Message(), kv...)
	}
}

type nopLogger struct{}

func (nopLogger) Report(LogEvent) {}

// NopLogger drops all events.
var NopLogger Logger = nopLogger{}
