// Command dsrouter-check loads a datasource config, opens the routing pool,
// checks the health of every datasource if the config enables health checks
// and shows where statements are routed.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/config"
	"github.com/ice-blockchain/go-dsrouter/health"
	"github.com/ice-blockchain/go-dsrouter/pool"
	"github.com/ice-blockchain/go-dsrouter/routing"
)

type options struct {
	ConfigPath  string
	Reads       int
	Query       string
	Statements  []string
	PingTimeout time.Duration
	LogLevel    string
	Metrics     bool
}

func newOptions() *options {
	return &options{
		ConfigPath:  "dsrouter.yaml",
		Reads:       4,
		Query:       "SELECT 1",
		PingTimeout: 5 * time.Second,
		LogLevel:    "warn",
	}
}

func (opts *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "Path to the yaml config.")
	fs.IntVar(&opts.Reads, "reads", opts.Reads, "Number of reads to route.")
	fs.StringVar(&opts.Query, "query", opts.Query, "Query used for reads.")
	fs.StringArrayVar(&opts.Statements, "statement", nil,
		"Statement routed by its kind, may be repeated. Prefix with {{writable}} or {{non-writable}} to force the kind.")
	fs.DurationVar(&opts.PingTimeout, "ping-timeout", opts.PingTimeout, "Timeout of the health check.")
	fs.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "Log level: debug, info, warn or error.")
	fs.BoolVar(&opts.Metrics, "metrics", opts.Metrics, "Print routing metrics on exit.")
}

func (opts *options) validate() error {
	if opts.Reads < 0 {
		return errors.New("--reads must not be negative")
	}
	if opts.PingTimeout <= 0 {
		return errors.New("--ping-timeout must be greater than 0")
	}
	return nil
}

func main() {
	opts := newOptions()
	fs := pflag.NewFlagSet("dsrouter-check", pflag.ExitOnError)
	opts.addFlags(fs)
	_ = fs.Parse(os.Args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "dsrouter-check:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	if err := opts.validate(); err != nil {
		return err
	}
	// Health checks ping datasources concurrently.
	out = &syncWriter{w: out}

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.LogLevel)); err != nil {
		return err
	}
	logger := dsrouter.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	metrics := pool.NewMetrics()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(metrics)

	poolOpts := cfg.PoolOpts()
	poolOpts.Logger = logger
	poolOpts.Metrics = metrics

	provider := tracingProvider{Provider: pool.NewSQLProvider(), out: out}
	connPool, err := pool.Connect(ctx, registry, provider, poolOpts)
	if err != nil {
		return err
	}
	defer connPool.Close()

	if cfg.Health.Enabled {
		healthOpts := cfg.HealthOpts()
		healthOpts.Logger = logger
		poller, err := health.NewPoller(registry, connPool, healthOpts)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
		poller.CheckNow(pingCtx)
		cancel()
	} else {
		fmt.Fprintln(out, "health checks are disabled")
	}

	printInfo(out, connPool.GetInfo())

	for i := 0; i < opts.Reads; i++ {
		fmt.Fprintf(out, "read #%d\n", i+1)
		if _, err := connPool.Read(ctx, opts.Query); err != nil {
			fmt.Fprintf(out, "  failed: %s\n", err)
		}
	}

	connector := pool.NewRWBalancedConnector(connPool, dsrouter.PreferRO)
	for _, stmt := range opts.Statements {
		fmt.Fprintf(out, "statement %q\n", stmt)
		res, err := connector.Execute(ctx, stmt)
		switch {
		case err != nil:
			fmt.Fprintf(out, "  failed: %s\n", err)
		case res.Rows != nil:
			fmt.Fprintf(out, "  %d rows\n", res.Rows.Len())
		default:
			fmt.Fprintf(out, "  %d rows affected\n", res.RowsAffected)
		}
	}

	if opts.Metrics {
		families, err := promRegistry.Gather()
		if err != nil {
			return err
		}
		for _, family := range families {
			if _, err := expfmt.MetricFamilyToText(out, family); err != nil {
				return err
			}
		}
	}

	return connPool.Close()
}

func printInfo(out io.Writer, info map[string]*pool.ConnectionInfo) {
	ids := make([]string, 0, len(info))
	for id := range info {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(out, "%-16s %-8s %s\n", "DATASOURCE", "ROLE", "HEALTHY")
	for _, id := range ids {
		fmt.Fprintf(out, "%-16s %-8s %t\n", id, info[id].Role, info[id].Healthy)
	}
}

type syncWriter struct {
	mutex sync.Mutex
	w     io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.w.Write(p)
}

// tracingProvider prints the routing of every connection acquisition.
type tracingProvider struct {
	pool.Provider
	out io.Writer
}

func (p tracingProvider) Open(ctx context.Context, d dsrouter.Descriptor) (pool.DataSource, error) {
	src, err := p.Provider.Open(ctx, d)
	if err != nil {
		return nil, err
	}
	return tracingDataSource{DataSource: src, id: d.ID, out: p.out}, nil
}

type tracingDataSource struct {
	pool.DataSource
	id  string
	out io.Writer
}

func (s tracingDataSource) Ping(ctx context.Context) error {
	fmt.Fprintf(s.out, "  pinged %s\n", s.id)
	return s.DataSource.Ping(ctx)
}

func (s tracingDataSource) Acquire(ctx context.Context) (pool.Conn, error) {
	fmt.Fprintf(s.out, "  routed to %s (operation %s)\n",
		routing.DataSourceID(ctx), routing.FromContext(ctx).OperationID())
	return s.DataSource.Acquire(ctx)
}
