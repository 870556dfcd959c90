package market

import "github.com/shubham-shewale/market-sim/pkg/models"

// ring is a fixed-capacity FIFO of history points. Pushing past capacity
// overwrites the oldest entry.
type ring struct {
	buf  []models.HistoryPoint
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]models.HistoryPoint, capacity)}
}

func (r *ring) push(p models.HistoryPoint) {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = p
		r.size++
		return
	}
	r.buf[r.head] = p
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) len() int { return r.size }

// points returns a fresh oldest-first copy.
func (r *ring) points() []models.HistoryPoint {
	out := make([]models.HistoryPoint, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
