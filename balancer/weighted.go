package balancer

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/ice-blockchain/go-dsrouter"
)

// DefaultWeight is used for candidates without a positive weight.
var DefaultWeight = decimal.NewFromInt(1) //nolint:gochecknoglobals

// WeightedBalancer picks a candidate at random with a probability
// proportional to its weight. Cumulative weights are summed in decimal, so
// weights like 0.1 and 0.2 split the range exactly.
type WeightedBalancer struct {
	float func() float64
}

func NewWeighted() *WeightedBalancer {
	return &WeightedBalancer{float: rand.Float64} //nolint:gosec // does not need to be cryptographically secure
}

func (w *WeightedBalancer) Select(candidates []Candidate) (string, error) {
	if len(candidates) == 0 {
		return "", dsrouter.ErrNoHealthyCandidate
	}

	weights := make([]decimal.Decimal, len(candidates))
	total := decimal.Zero
	for i, c := range candidates {
		weight := c.Weight
		if !weight.IsPositive() {
			weight = DefaultWeight
		}
		weights[i] = weight
		total = total.Add(weight)
	}

	point := decimal.NewFromFloat(w.float()).Mul(total)
	cumulative := decimal.Zero
	for i, weight := range weights {
		cumulative = cumulative.Add(weight)
		if point.LessThan(cumulative) {
			return candidates[i].ID, nil
		}
	}
	return candidates[len(candidates)-1].ID, nil
}
