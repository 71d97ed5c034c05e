package pool

import (
	"sync/atomic"
)

// lifecycle is the state of a RoutingPool. A pool is opening while Connect
// opens its physical pools, routing once they are all open, and closed after
// Close. Only a routing pool accepts operations; there is no way back from
// closed.
type lifecycle uint32

const (
	openingState lifecycle = iota
	routingState
	closedState
)

func (l *lifecycle) set(next lifecycle) {
	atomic.StoreUint32((*uint32)(l), uint32(next))
}

func (l *lifecycle) cas(prev, next lifecycle) bool {
	return atomic.CompareAndSwapUint32((*uint32)(l), uint32(prev), uint32(next))
}

func (l *lifecycle) get() lifecycle {
	return lifecycle(atomic.LoadUint32((*uint32)(l)))
}

func (l *lifecycle) routing() bool {
	return l.get() == routingState
}
