// Package health keeps health flags of registry datasources up to date by
// pinging them periodically.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/ice-blockchain/go-dsrouter"
)

const component = "health"

var (
	ErrWrongInterval = errors.New("wrong interval, must be greater than 0")
	ErrStarted       = errors.New("poller is already started")
)

// Pinger checks a datasource. *pool.RoutingPool implements it.
type Pinger interface {
	Ping(ctx context.Context, id string) error
}

// Opts are options of a Poller.
type Opts struct {
	// Interval between two checks of all datasources.
	Interval time.Duration
	// Timeout of a single ping. Defaults to Interval.
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failed pings after which
	// a datasource is marked unhealthy. Defaults to 1. A single successful
	// ping marks it healthy again.
	FailureThreshold int
	// Clock defaults to the real clock.
	Clock  clockwork.Clock
	Logger dsrouter.Logger
}

// Poller pings all registry datasources every Interval and updates their
// health flags.
type Poller struct {
	registry *dsrouter.Registry
	pinger   Pinger
	opts     Opts

	mutex    sync.Mutex
	failures map[string]int
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewPoller(registry *dsrouter.Registry, pinger Pinger, opts Opts) (*Poller, error) {
	if opts.Interval <= 0 {
		return nil, ErrWrongInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.Interval
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = dsrouter.NopLogger
	}
	return &Poller{
		registry: registry,
		pinger:   pinger,
		opts:     opts,
		failures: make(map[string]int),
	}, nil
}

// Start runs checks in background until Stop is called or ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.cancel != nil {
		return ErrStarted
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go p.run(ctx, p.done)
	return nil
}

// Stop stops background checks and waits for the running check to finish.
func (p *Poller) Stop() {
	p.mutex.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mutex.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := p.opts.Clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.CheckNow(ctx)
		}
	}
}

// CheckNow pings all datasources concurrently and updates the registry.
func (p *Poller) CheckNow(ctx context.Context) {
	var g errgroup.Group
	for _, d := range p.registry.All() {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
			defer cancel()

			err := p.pinger.Ping(pingCtx, d.ID)
			if ctx.Err() != nil {
				return nil
			}
			p.update(d.ID, err)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Poller) update(id string, pingErr error) {
	p.mutex.Lock()
	if pingErr == nil {
		delete(p.failures, id)
	} else {
		p.failures[id]++
	}
	failures := p.failures[id]
	p.mutex.Unlock()

	if pingErr != nil {
		p.opts.Logger.Report(PingFailedEvent{
			EventSource: dsrouter.NewEventSource(component, id, ""),
			Failures:    failures,
			Error:       pingErr,
		})
	}

	healthy := failures < p.opts.FailureThreshold
	if err := p.registry.Update(id, healthy); err != nil {
		p.opts.Logger.Report(PingFailedEvent{
			EventSource: dsrouter.NewEventSource(component, id, ""),
			Error:       err,
		})
	}
}
