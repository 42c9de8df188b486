package drone

import "math/rand"

// DropPolicy decides whether a droppable packet is discarded given the
// drone's current drop rate.
type DropPolicy interface {
	Drop(rate float64) bool
}

type DropPolicyFunc func(rate float64) bool

func (f DropPolicyFunc) Drop(rate float64) bool {
	return f(rate)
}

var (
	DropAlways DropPolicy = DropPolicyFunc(func(float64) bool { return true })
	DropNever  DropPolicy = DropPolicyFunc(func(float64) bool { return false })
)

// RandomDropPolicy drops with probability rate. It is not safe for
// concurrent use; give every drone its own.
type RandomDropPolicy struct {
	rng *rand.Rand
}

func NewRandomDropPolicy(seed int64) *RandomDropPolicy {
	return &RandomDropPolicy{rng: rand.New(rand.NewSource(seed))}
}

func (p *RandomDropPolicy) Drop(rate float64) bool {
	return p.rng.Float64() < rate
}
