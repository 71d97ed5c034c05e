package balancer

// NewWeightedWithSource creates a weighted balancer with a fixed source of
// random numbers in [0, 1).
func NewWeightedWithSource(float func() float64) *WeightedBalancer {
	return &WeightedBalancer{float: float}
}
