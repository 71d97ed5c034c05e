package balancer

import (
	"sync/atomic"

	"github.com/ice-blockchain/go-dsrouter"
)

// RoundRobinBalancer picks candidates in sequential order.
//
// The cursor is wrapped modulo the size of the candidate set passed to each
// call, so a changed set takes effect on the very next call. Every call
// takes its own cursor value, so concurrent callers split the candidates
// evenly.
type RoundRobinBalancer struct {
	current atomic.Uint64
}

func NewRoundRobin() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

func (r *RoundRobinBalancer) Select(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", dsrouter.ErrNoHealthyCandidate
	}
	return candidates[r.nextIndex(len(candidates))].ID, nil
}

func (r *RoundRobinBalancer) nextIndex(size int) uint64 {
	next := r.current.Add(1)
	return (next - 1) % uint64(size)
}
