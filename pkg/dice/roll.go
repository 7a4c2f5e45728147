package dice

import "math/rand/v2"

// Source is the randomness behind every die.
type Source interface {
	// IntN returns a uniform int in [0, n). n is always positive.
	IntN(n int) int
}

type defaultSource struct{}

func (defaultSource) IntN(n int) int {
	return rand.IntN(n)
}

// DefaultSource draws from the runtime's generator and is safe for
// concurrent use.
var DefaultSource Source = defaultSource{}

// NewSeededSource returns a deterministic Source. It must not be shared
// between goroutines.
func NewSeededSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Roll is one die result. Original is set only when the die was rerolled
// and holds the discarded first draw.
type Roll struct {
	Value    int
	Original *int
}

// Rerolled reports whether the first draw was replaced.
func (r Roll) Rerolled() bool {
	return r.Original != nil
}

// RollDie draws one value in [1, size]. A draw at or below threshold is
// replaced by exactly one more draw.
func RollDie(src Source, size, threshold int) Roll {
	first := src.IntN(size) + 1
	if first > threshold {
		return Roll{Value: first}
	}
	return Roll{
		Value:    src.IntN(size) + 1,
		Original: &first,
	}
}
