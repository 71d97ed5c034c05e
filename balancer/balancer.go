// Package balancer selects a datasource among equivalent healthy candidates.
//
// A balancer is master-agnostic: it never sees roles or health, only the
// ordered candidate set the caller passes to Select. An empty set is an
// error, the caller decides how to fall back.
package balancer

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ice-blockchain/go-dsrouter"
)

// Candidate is a healthy datasource the balancer may choose.
type Candidate struct {
	ID     string
	Weight decimal.Decimal
}

// Balancer is the interface that must be implemented by a balancing policy.
// Implementations are safe for concurrent use.
type Balancer interface {
	// Select returns an id of one of the candidates or
	// dsrouter.ErrNoHealthyCandidate if the set is empty.
	Select(candidates []Candidate) (string, error)
}

// Policy is a name of a balancing policy.
type Policy string

const (
	RoundRobin Policy = "round_robin"
	Random     Policy = "random"
	Weighted   Policy = "weighted"
)

// Factory creates a new balancer instance.
type Factory func() Balancer

//nolint:gochecknoglobals
var factories = map[Policy]Factory{
	RoundRobin: func() Balancer { return NewRoundRobin() },
	Random:     func() Balancer { return NewRandom() },
	Weighted:   func() Balancer { return NewWeighted() },
}

// New creates a balancer for the policy. An empty policy means RoundRobin.
// An unknown policy is a configuration error.
func New(policy Policy) (Balancer, error) {
	if policy == "" {
		policy = RoundRobin
	}
	factory, ok := factories[policy]
	if !ok {
		return nil, &dsrouter.ConfigError{
			Msg: fmt.Sprintf("unknown balancer policy %q, expected one of %v", policy, Policies()),
		}
	}
	return factory(), nil
}

// Policies returns names of the known policies.
func Policies() []Policy {
	ret := make([]Policy, 0, len(factories))
	for policy := range factories {
		ret = append(ret, policy)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Candidates converts descriptors to candidates keeping the order.
func Candidates(descriptors []dsrouter.Descriptor) []Candidate {
	ret := make([]Candidate, len(descriptors))
	for i, d := range descriptors {
		ret[i] = Candidate{ID: d.ID, Weight: d.Weight}
	}
	return ret
}
