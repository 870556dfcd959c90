package testutils

import (
	"sync"
	"time"
)

// MockClock is a settable clock, safe to read from the engine goroutine.
type MockClock struct {
	CurrentTime time.Time
	Mu          sync.Mutex
}

func (m *MockClock) Now() time.Time {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return m.CurrentTime
}

func (m *MockClock) Advance(d time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}

// MockRand replays Seq in order, then returns ValFloat forever.
type MockRand struct {
	ValFloat float64
	Seq      []float64
	Mu       sync.Mutex
}

func (m *MockRand) Float64() float64 {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Seq) > 0 {
		v := m.Seq[0]
		m.Seq = m.Seq[1:]
		return v
	}
	return m.ValFloat
}

func (m *MockRand) Set(v float64) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.ValFloat = v
}

func (m *MockClock) Sleep(d time.Duration) { m.Advance(d) }
