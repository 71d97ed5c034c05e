package balancer

import (
	"math/rand/v2"

	"github.com/ice-blockchain/go-dsrouter"
)

// RandomBalancer picks a candidate uniformly at random.
type RandomBalancer struct{}

func NewRandom() RandomBalancer {
	return RandomBalancer{}
}

func (RandomBalancer) Select(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", dsrouter.ErrNoHealthyCandidate
	}
	return candidates[rand.IntN(len(candidates))].ID, nil //nolint:gosec // does not need to be cryptographically secure
}
