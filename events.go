package dsrouter

import (
	"fmt"
	"log/slog"
	"time"
)

type LogEvent interface {
	EventName() string
	Message() string
	LogLevel() slog.Level
	LogAttrs() []slog.Attr
}

// EventSource identifies where an event happened.
type EventSource struct {
	Component   string
	DataSource  string
	OperationID string
	EventTime   time.Time
}

func NewEventSource(component, dataSource, operationID string) EventSource {
	return EventSource{
		Component:   component,
		DataSource:  dataSource,
		OperationID: operationID,
		EventTime:   time.Now(),
	}
}

func (e EventSource) baseAttrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("component", e.Component),
		slog.Time("event_time", e.EventTime),
	}
	if e.DataSource != "" {
		attrs = append(attrs, slog.String("datasource", e.DataSource))
	}
	if e.OperationID != "" {
		attrs = append(attrs, slog.String("operation_id", e.OperationID))
	}
	return attrs
}

type RouteResolvedEvent struct {
	EventSource
	Operation string
	Forced    bool
}

func (e RouteResolvedEvent) EventName() string { return "route_resolved" }
func (e RouteResolvedEvent) Message() string {
	return fmt.Sprintf("%s routed to %s", e.Operation, e.DataSource)
}
func (e RouteResolvedEvent) LogLevel() slog.Level { return slog.LevelDebug }
func (e RouteResolvedEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	attrs = append(attrs,
		slog.String("operation", e.Operation),
		slog.Bool("forced", e.Forced),
	)
	return attrs
}

type ReadFallbackEvent struct {
	EventSource
}

func (e ReadFallbackEvent) EventName() string    { return "read_fallback" }
func (e ReadFallbackEvent) Message() string      { return "No healthy slave, read routed to master" }
func (e ReadFallbackEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e ReadFallbackEvent) LogAttrs() []slog.Attr {
	return e.baseAttrs()
}

type WriteRoutingViolationEvent struct {
	EventSource
	Role Role
}

func (e WriteRoutingViolationEvent) EventName() string { return "write_routing_violation" }
func (e WriteRoutingViolationEvent) Message() string {
	return fmt.Sprintf("Write forced to %s datasource", e.Role)
}
func (e WriteRoutingViolationEvent) LogLevel() slog.Level { return slog.LevelError }
func (e WriteRoutingViolationEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	attrs = append(attrs, slog.String("role", e.Role.String()))
	return attrs
}

type AcquisitionFailedEvent struct {
	EventSource
	Error error
}

func (e AcquisitionFailedEvent) EventName() string    { return "acquisition_failed" }
func (e AcquisitionFailedEvent) Message() string      { return "Failed to acquire connection" }
func (e AcquisitionFailedEvent) LogLevel() slog.Level { return slog.LevelError }
func (e AcquisitionFailedEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	if e.Error != nil {
		attrs = append(attrs, slog.Any("error", e.Error))
	}
	return attrs
}

type OperationCanceledEvent struct {
	EventSource
	Error error
}

func (e OperationCanceledEvent) EventName() string    { return "operation_canceled" }
func (e OperationCanceledEvent) Message() string      { return "Operation was canceled" }
func (e OperationCanceledEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e OperationCanceledEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	if e.Error != nil {
		attrs = append(attrs, slog.Any("error", e.Error))
	}
	return attrs
}

type HealthChangedEvent struct {
	EventSource
	Healthy bool
}

func (e HealthChangedEvent) EventName() string { return "health_changed" }
func (e HealthChangedEvent) Message() string {
	if e.Healthy {
		return "Datasource became healthy"
	}
	return "Datasource became unhealthy"
}
func (e HealthChangedEvent) LogLevel() slog.Level {
	if e.Healthy {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}
func (e HealthChangedEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	attrs = append(attrs, slog.Bool("healthy", e.Healthy))
	return attrs
}

type PoolEvent struct {
	EventSource
	Event string
	Error error
}

func (e PoolEvent) EventName() string { return "pool_" + e.Event }
func (e PoolEvent) Message() string {
	switch e.Event {
	case "opened":
		return "Datasource pool opened"
	case "open_failed":
		return "Failed to open datasource pool"
	case "closed":
		return "Datasource pool closed"
	default:
		return "Datasource pool event: " + e.Event
	}
}
func (e PoolEvent) LogLevel() slog.Level {
	if e.Error != nil {
		return slog.LevelError
	}
	return slog.LevelInfo
}
func (e PoolEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	if e.Error != nil {
		attrs = append(attrs, slog.Any("error", e.Error))
	}
	return attrs
}

type RetryEvent struct {
	EventSource
	Attempt int
	Next    time.Duration
	Error   error
}

func (e RetryEvent) EventName() string { return "retry" }
func (e RetryEvent) Message() string {
	return fmt.Sprintf("Attempt %d failed, retrying in %s", e.Attempt, e.Next)
}
func (e RetryEvent) LogLevel() slog.Level { return slog.LevelWarn }
func (e RetryEvent) LogAttrs() []slog.Attr {
	attrs := e.baseAttrs()
	attrs = append(attrs,
		slog.Int("attempt", e.Attempt),
		slog.Duration("next", e.Next),
	)
	if e.Error != nil {
		attrs = append(attrs, slog.Any("error", e.Error))
	}
	return attrs
}
