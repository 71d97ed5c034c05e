package dsrouter_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/require"

	"github.com/ice-blockchain/go-dsrouter"
)

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := dsrouter.NewSlogLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})))

	logger.Report(dsrouter.RouteResolvedEvent{
		EventSource: dsrouter.NewEventSource("pool", "s1", "op-1"),
		Operation:   "read",
	})
	logger.Report(dsrouter.ReadFallbackEvent{
		EventSource: dsrouter.NewEventSource("pool", "m1", "op-2"),
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "level=DEBUG")
	require.Contains(t, lines[0], `msg="read routed to s1"`)
	require.Contains(t, lines[0], "datasource=s1")
	require.Contains(t, lines[0], "operation_id=op-1")
	require.Contains(t, lines[0], "forced=false")
	require.Contains(t, lines[1], "level=WARN")
	require.Contains(t, lines[1], "component=pool")
}

func TestLogrLogger(t *testing.T) {
	var lines []string
	logger := dsrouter.NewLogrLogger(funcr.New(func(prefix, args string) {
		lines = append(lines, args)
	}, funcr.Options{}))

	logger.Report(dsrouter.AcquisitionFailedEvent{
		EventSource: dsrouter.NewEventSource("pool", "s1", ""),
		Error:       errors.New("pool exhausted"),
	})
	logger.Report(dsrouter.HealthChangedEvent{
		EventSource: dsrouter.NewEventSource("pool", "s2", ""),
		Healthy:     true,
	})
	// Debug events are dropped at the default verbosity.
	logger.Report(dsrouter.RouteResolvedEvent{
		EventSource: dsrouter.NewEventSource("pool", "s1", ""),
		Operation:   "read",
	})

	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"msg"="Failed to acquire connection"`)
	require.Contains(t, lines[0], `"error"="pool exhausted"`)
	require.Contains(t, lines[0], `"datasource"="s1"`)
	require.Contains(t, lines[1], `"healthy"=true`)
	require.Contains(t, lines[1], `"event"="health_changed"`)
}

func TestNopLogger(t *testing.T) {
	require.NotPanics(t, func() {
		dsrouter.NopLogger.Report(dsrouter.PoolEvent{Event: "opened"})
	})
}
