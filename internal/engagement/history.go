package engagement

import (
	"sync"

	"github.com/ashureev/attention-labs/internal/domain"
)

// HistoryLog is a fixed-size ring of classified samples.
// When full, appending overwrites the oldest sample.
type HistoryLog struct {
	buf  []domain.Sample
	size int
	head int // next write position
	n    int
	mu   sync.RWMutex
}

// NewHistoryLog creates a history log holding at most size samples.
// A non-positive size falls back to domain.HistoryCapacity.
func NewHistoryLog(size int) *HistoryLog {
	if size <= 0 {
		size = domain.HistoryCapacity
	}
	return &HistoryLog{
		buf:  make([]domain.Sample, size),
		size: size,
	}
}

// Append adds a sample at the tail, evicting the oldest on overflow.
func (h *HistoryLog) Append(s domain.Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.head] = s
	h.head = (h.head + 1) % h.size
	if h.n < h.size {
		h.n++
	}
}

// Snapshot returns a copy of the samples in arrival order.
func (h *HistoryLog) Snapshot() []domain.Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]domain.Sample, h.n)
	if h.n == 0 {
		return out
	}
	tail := (h.head - h.n + h.size) % h.size
	if tail+h.n <= h.size {
		copy(out, h.buf[tail:tail+h.n])
		return out
	}
	// Wrap-around: tail -> end + start -> head
	k := copy(out, h.buf[tail:])
	copy(out[k:], h.buf[:h.head])
	return out
}

// Last returns the most recent sample.
func (h *HistoryLog) Last() (domain.Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.n == 0 {
		return domain.Sample{}, false
	}
	return h.buf[(h.head-1+h.size)%h.size], true
}

// Len returns the number of retained samples.
func (h *HistoryLog) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Reset clears the log.
func (h *HistoryLog) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.head = 0
	h.n = 0
	clear(h.buf)
}

// Capacity returns the maximum number of samples retained.
func (h *HistoryLog) Capacity() int {
	return h.size
}
