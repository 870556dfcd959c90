package market

import (
	"math/rand"
	"time"
)

// Clock stamps ticks; swapped for a fixed clock in tests.
type Clock interface {
	Now() time.Time
}

// Rand draws the uniform [0,1) values that drive price moves.
type Rand interface {
	Float64() float64
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// RealRand is not safe for concurrent use; the engine only draws while holding its tick lock.
type RealRand struct{ *rand.Rand }

func NewRealRand() RealRand {
	return RealRand{rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r RealRand) Float64() float64 { return r.Rand.Float64() }
