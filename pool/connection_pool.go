// Package pool routes database operations between a master datasource and
// its slaves.
//
// Main features:
//
// - Writes and batch writes always go to the master.
//
// - Reads are balanced over healthy slaves and fall back to the master if
// there is none.
//
// - The datasource chosen for an operation is bound to the operation context
// (see package routing) and cleared when the operation ends.
//
// - ForceRoute pins exactly one operation to a datasource.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/ice-blockchain/go-dsrouter"
	"github.com/ice-blockchain/go-dsrouter/balancer"
	"github.com/ice-blockchain/go-dsrouter/routing"
)

var (
	ErrWrongAcquireTimeout = errors.New("wrong acquire timeout, must not be negative")
	ErrNilProvider         = errors.New("provider should not be nil")
	ErrUnknownMode         = errors.New("unknown mode")
)

// Opts are options of a RoutingPool.
type Opts struct {
	// AcquireTimeout bounds the time to borrow a physical connection. Zero
	// means that only the caller context bounds it.
	AcquireTimeout time.Duration
	// Policy names the slave balancing policy, round robin by default.
	Policy balancer.Policy
	// Balancer overrides Policy.
	Balancer balancer.Balancer
	// Logger is used to log routing events. Events are dropped if nil.
	Logger dsrouter.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// ConnectionInfo reports the state of a datasource.
type ConnectionInfo struct {
	Role    dsrouter.Role
	Healthy bool
	// Opened reports whether the physical pool is open.
	Opened bool
}

// RoutingPool is a facade over the physical pools of all registered
// datasources. It is safe for concurrent use.
type RoutingPool struct {
	registry *dsrouter.Registry
	provider Provider
	balancer balancer.Balancer
	opts     Opts

	// sources is filled by Connect and never modified after it.
	sources map[string]DataSource
	watcher dsrouter.Watcher
	state   lifecycle
}

var _ Pooler = (*RoutingPool)(nil)

// Connect opens physical pools of all datasources of the registry. The
// registry must contain a master. Connect fails if any pool fails to open.
func Connect(ctx context.Context, registry *dsrouter.Registry, provider Provider, opts Opts) (*RoutingPool, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, dsrouter.ErrEmptyRegistry
	}
	if provider == nil {
		return nil, ErrNilProvider
	}
	if _, err := registry.Master(); err != nil {
		return nil, &dsrouter.ConfigError{Msg: "master datasource is not registered"}
	}
	if opts.AcquireTimeout < 0 {
		return nil, ErrWrongAcquireTimeout
	}
	if opts.Logger == nil {
		opts.Logger = dsrouter.NopLogger
	}

	lb := opts.Balancer
	if lb == nil {
		var err error
		if lb, err = balancer.New(opts.Policy); err != nil {
			return nil, err
		}
	}

	connPool := &RoutingPool{
		registry: registry,
		provider: provider,
		balancer: lb,
		opts:     opts,
		sources:  make(map[string]DataSource, registry.Len()),
	}
	if err := connPool.open(ctx); err != nil {
		return nil, err
	}

	for _, d := range registry.All() {
		opts.Metrics.setHealth(d)
	}
	connPool.watcher = registry.Watch(connPool.healthChanged)
	connPool.state.set(routingState)

	return connPool, nil
}

func (p *RoutingPool) open(ctx context.Context) error {
	var mutex sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range p.registry.All() {
		g.Go(func() error {
			src, err := p.provider.Open(gctx, d)
			if err != nil {
				p.opts.Logger.Report(dsrouter.PoolEvent{
					EventSource: dsrouter.NewEventSource(component, d.ID, ""),
					Event:       "open_failed",
					Error:       err,
				})
				return fmt.Errorf("failed to open datasource %q: %w", d.ID, err)
			}

			mutex.Lock()
			p.sources[d.ID] = src
			mutex.Unlock()

			p.opts.Logger.Report(dsrouter.PoolEvent{
				EventSource: dsrouter.NewEventSource(component, d.ID, ""),
				Event:       "opened",
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		_ = p.closeSources()
		return err
	}
	return nil
}

// Read executes a query on a healthy slave chosen by the balancer, or on the
// master if there is no healthy slave.
func (p *RoutingPool) Read(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	var rows *Rows
	err := p.execute(ctx, opRead, func(ctx context.Context, conn Conn) (err error) {
		rows, err = conn.Query(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ReadMaster executes a query on the master, e.g. a locking read or a read
// that must observe the caller's own writes. It is routed as a write.
func (p *RoutingPool) ReadMaster(ctx context.Context, query string, args ...interface{}) (*Rows, error) {
	var rows *Rows
	err := p.execute(ctx, opReadMaster, func(ctx context.Context, conn Conn) (err error) {
		rows, err = conn.Query(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Write executes a statement on the master and returns the number of
// affected rows.
func (p *RoutingPool) Write(ctx context.Context, stmt string, args ...interface{}) (int64, error) {
	var affected int64
	err := p.execute(ctx, opWrite, func(ctx context.Context, conn Conn) (err error) {
		affected, err = conn.Exec(ctx, stmt, args...)
		return err
	})
	return affected, err
}

// BatchWrite executes stmt once per argument list on a single master
// connection. Counts of the executed statements are returned together with
// the driver error if the batch fails part way.
func (p *RoutingPool) BatchWrite(ctx context.Context, stmt string, argsList [][]interface{}) ([]int64, error) {
	var counts []int64
	err := p.execute(ctx, opBatchWrite, func(ctx context.Context, conn Conn) (err error) {
		counts, err = conn.ExecBatch(ctx, stmt, argsList)
		return err
	})
	return counts, err
}

// ForceRoute returns a context pinning the next operation run with it to the
// datasource id. The operations after it are routed as usual. A write forced
// to a slave fails with WriteRoutingViolation.
func (p *RoutingPool) ForceRoute(ctx context.Context, id string) (context.Context, error) {
	if _, err := p.registry.Lookup(id); err != nil {
		return ctx, err
	}
	if _, ok := p.sources[id]; !ok {
		return ctx, &dsrouter.NotFoundError{ID: id}
	}
	return routing.Force(ctx, id), nil
}

// Current returns the datasource of the operation running with ctx, or the
// master if ctx carries no routing.
func (p *RoutingPool) Current(ctx context.Context) string {
	if id := routing.DataSourceID(ctx); id != routing.Unset {
		return id
	}
	master, err := p.registry.Master()
	if err != nil {
		return routing.Unset
	}
	return master.ID
}

// ConnectedNow reports whether the pool has a healthy datasource for the
// mode. It does not move the balancer.
func (p *RoutingPool) ConnectedNow(mode dsrouter.Mode) (bool, error) {
	if !p.state.routing() {
		return false, nil
	}

	master := len(p.registry.Healthy(dsrouter.MasterRole)) > 0
	slave := len(p.healthySlaves()) > 0

	switch mode {
	case dsrouter.ANY, dsrouter.PreferRW, dsrouter.PreferRO:
		return master || slave, nil
	case dsrouter.RW:
		return master, nil
	case dsrouter.RO:
		return slave, nil
	default:
		return false, ErrUnknownMode
	}
}

// GetInfo gets information of datasources (health state, role).
func (p *RoutingPool) GetInfo() map[string]*ConnectionInfo {
	info := make(map[string]*ConnectionInfo, len(p.sources))
	opened := p.state.routing()
	for _, d := range p.registry.All() {
		_, ok := p.sources[d.ID]
		info[d.ID] = &ConnectionInfo{
			Role:    d.Role,
			Healthy: d.Healthy,
			Opened:  ok && opened,
		}
	}
	return info
}

// Ping checks the physical pool of a datasource. The call is not routed.
func (p *RoutingPool) Ping(ctx context.Context, id string) error {
	if !p.state.routing() {
		return dsrouter.ErrClosed
	}
	src, ok := p.sources[id]
	if !ok {
		return &dsrouter.NotFoundError{ID: id}
	}
	return src.Ping(ctx)
}

// Registry returns the registry the pool routes over.
func (p *RoutingPool) Registry() *dsrouter.Registry {
	return p.registry
}

// Close closes physical pools of all datasources. Operations started after
// Close fail with ErrClosed. Subsequent calls do nothing.
func (p *RoutingPool) Close() error {
	if !p.state.cas(routingState, closedState) {
		return nil
	}
	p.watcher.Unregister()
	return p.closeSources()
}

func (p *RoutingPool) closeSources() error {
	var errs *multierror.Error
	for _, d := range p.registry.All() {
		src, ok := p.sources[d.ID]
		if !ok {
			continue
		}
		err := src.Close()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close datasource %q: %w", d.ID, err))
		}
		p.opts.Logger.Report(dsrouter.PoolEvent{
			EventSource: dsrouter.NewEventSource(component, d.ID, ""),
			Event:       "closed",
			Error:       err,
		})
	}
	return errs.ErrorOrNil()
}

func (p *RoutingPool) healthChanged(d dsrouter.Descriptor) {
	p.opts.Metrics.setHealth(d)
	p.opts.Logger.Report(dsrouter.HealthChangedEvent{
		EventSource: dsrouter.NewEventSource(component, d.ID, ""),
		Healthy:     d.Healthy,
	})
}

// execute runs fn on a connection of the datasource resolved for op. The
// datasource id is bound to the context passed to fn and is cleared when
// execute returns, whatever the outcome.
func (p *RoutingPool) execute(ctx context.Context, op operation, fn func(ctx context.Context, conn Conn) error) (err error) {
	if !p.state.routing() {
		return dsrouter.ErrClosed
	}

	ctx, scope := routing.Begin(ctx)
	scope.Advance(routing.Routing)
	defer func() {
		scope.Clear()
		if err != nil {
			scope.Advance(routing.Failed)
		} else {
			scope.Advance(routing.Completed)
		}
	}()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return p.canceled(scope, routing.Unset, ctxErr)
	}

	d, forced, err := p.resolve(ctx, scope, op)
	if err != nil {
		return err
	}
	scope.Set(d.ID)
	p.opts.Logger.Report(dsrouter.RouteResolvedEvent{
		EventSource: dsrouter.NewEventSource(component, d.ID, scope.OperationID()),
		Operation:   string(op),
		Forced:      forced,
	})

	src, ok := p.sources[d.ID]
	if !ok {
		return &dsrouter.NotFoundError{ID: d.ID}
	}

	conn, err := p.acquire(ctx, scope, d.ID, src)
	if err != nil {
		return err
	}
	defer conn.Release()

	scope.Advance(routing.Executing)
	start := time.Now()
	err = fn(ctx, conn)
	if err != nil && ctx.Err() != nil {
		err = p.canceled(scope, d.ID, ctx.Err())
	}
	p.opts.Metrics.observe(d.ID, op, time.Since(start), err)
	return err
}

// resolve chooses a datasource for op. A pending override of ctx takes
// precedence over the default routing and is consumed.
func (p *RoutingPool) resolve(ctx context.Context, scope *routing.Scope, op operation) (dsrouter.Descriptor, bool, error) {
	if id, ok := routing.Take(ctx); ok {
		d, err := p.registry.Lookup(id)
		if err != nil {
			return dsrouter.Descriptor{}, true, err
		}
		if op.mode() == dsrouter.RW && !d.IsMaster() {
			p.opts.Logger.Report(dsrouter.WriteRoutingViolationEvent{
				EventSource: dsrouter.NewEventSource(component, d.ID, scope.OperationID()),
				Role:        d.Role,
			})
			return dsrouter.Descriptor{}, true, &dsrouter.WriteRoutingViolation{ID: d.ID, Role: d.Role}
		}
		return d, true, nil
	}

	d, err := p.getNextDataSource(scope, op.mode())
	return d, false, err
}

func (p *RoutingPool) getNextDataSource(scope *routing.Scope, mode dsrouter.Mode) (dsrouter.Descriptor, error) {
	switch mode {
	case dsrouter.RW, dsrouter.PreferRW:
		return p.registry.Master()
	case dsrouter.RO, dsrouter.PreferRO:
		slaves := p.healthySlaves()
		id, err := p.balancer.Select(balancer.Candidates(slaves))
		if err == nil {
			for _, d := range slaves {
				if d.ID == id {
					return d, nil
				}
			}
			return dsrouter.Descriptor{}, &dsrouter.NotFoundError{ID: id}
		}
		if mode == dsrouter.RO || !errors.Is(err, dsrouter.ErrNoHealthyCandidate) {
			return dsrouter.Descriptor{}, err
		}

		master, err := p.registry.Master()
		if err != nil {
			return dsrouter.Descriptor{}, err
		}
		// Reads of a master-only setup are not a fallback.
		if len(p.sources) > 1 {
			p.opts.Metrics.readFallback()
			p.opts.Logger.Report(dsrouter.ReadFallbackEvent{
				EventSource: dsrouter.NewEventSource(component, master.ID, scope.OperationID()),
			})
		}
		return master, nil
	default:
		return dsrouter.Descriptor{}, ErrUnknownMode
	}
}

// healthySlaves returns healthy slaves which have a physical pool. Slaves
// registered after Connect are not routed to.
func (p *RoutingPool) healthySlaves() []dsrouter.Descriptor {
	slaves := p.registry.Healthy(dsrouter.SlaveRole)
	opened := slaves[:0]
	for _, d := range slaves {
		if _, ok := p.sources[d.ID]; ok {
			opened = append(opened, d)
		}
	}
	return opened
}

func (p *RoutingPool) acquire(ctx context.Context, scope *routing.Scope, id string, src DataSource) (Conn, error) {
	acquireCtx := ctx
	if p.opts.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, p.opts.AcquireTimeout)
		defer cancel()
	}

	conn, err := src.Acquire(acquireCtx)
	if err == nil {
		return conn, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, p.canceled(scope, id, ctxErr)
	}

	err = &dsrouter.ConnectionAcquisitionError{ID: id, Timeout: p.opts.AcquireTimeout, Err: err}
	p.opts.Metrics.acquisitionFailed(id)
	p.opts.Logger.Report(dsrouter.AcquisitionFailedEvent{
		EventSource: dsrouter.NewEventSource(component, id, scope.OperationID()),
		Error:       err,
	})
	return nil, err
}

func (p *RoutingPool) canceled(scope *routing.Scope, id string, ctxErr error) error {
	p.opts.Logger.Report(dsrouter.OperationCanceledEvent{
		EventSource: dsrouter.NewEventSource(component, id, scope.OperationID()),
		Error:       ctxErr,
	})
	return &dsrouter.CancellationError{ID: id, Err: ctxErr}
}
