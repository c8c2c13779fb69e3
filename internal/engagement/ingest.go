package engagement

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/attention-labs/internal/domain"
)

// SampleSource produces raw sensor samples until stopped.
type SampleSource interface {
	// Samples returns the channel samples are delivered on. It is closed
	// when the source is exhausted or stopped.
	Samples() <-chan domain.RawSample
	// Stop releases the source. It is safe to call more than once.
	Stop()
}

// Normalize turns a raw sensor observation into a classified sample
// stamped with now. raw.At is ignored: dwell and cooldown are measured on
// the monitor clock only. Non-finite or out-of-range attention values and
// blank emotion labels are treated as absent.
func Normalize(raw domain.RawSample, now time.Time) domain.Sample {
	var attention *float64
	if raw.Attention != nil {
		a := *raw.Attention
		if !math.IsNaN(a) && !math.IsInf(a, 0) && a >= 0 && a <= 1 {
			attention = &a
		}
	}

	var emotion *string
	if raw.Emotion != nil {
		if e := strings.TrimSpace(*raw.Emotion); e != "" {
			emotion = &e
		}
	}

	return domain.Sample{
		Timestamp: now,
		Attention: attention,
		Emotion:   emotion,
		Level:     domain.Classify(attention),
	}
}

// ChannelSource is a SampleSource backed by an in-process channel.
type ChannelSource struct {
	ch   chan domain.RawSample
	done chan struct{}
	once sync.Once
	mu   sync.RWMutex // held for reading while sending on ch
}

// NewChannelSource creates a channel source with the given buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		ch:   make(chan domain.RawSample, buffer),
		done: make(chan struct{}),
	}
}

// Push delivers a sample. It returns false if the source was stopped or
// ctx is done first.
func (c *ChannelSource) Push(ctx context.Context, raw domain.RawSample) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.ch <- raw:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// Samples implements SampleSource.
func (c *ChannelSource) Samples() <-chan domain.RawSample {
	return c.ch
}

// Close marks the end of input; buffered samples are still delivered.
func (c *ChannelSource) Close() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		close(c.ch)
		c.mu.Unlock()
	})
}

// Stop implements SampleSource.
func (c *ChannelSource) Stop() {
	c.Close()
}
