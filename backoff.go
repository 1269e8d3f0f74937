package mqttv5client

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// JitterMode selects how randomness is applied to reconnect delays.
type JitterMode int

const (
	// JitterDefault is the same as JitterFull.
	JitterDefault JitterMode = iota
	// JitterNone uses the plain exponential delay.
	JitterNone
	// JitterFull picks uniformly between zero and the exponential delay.
	JitterFull
	// JitterDecorrelated picks between the minimum and three times the previous delay.
	JitterDecorrelated
)

var jitterModeNames = map[JitterMode]string{
	JitterDefault:      "default",
	JitterNone:         "none",
	JitterFull:         "full",
	JitterDecorrelated: "decorrelated",
}

func (j JitterMode) String() string {
	if s, ok := jitterModeNames[j]; ok {
		return s
	}
	return fmt.Sprintf("JitterMode(%d)", int(j))
}

// UnmarshalText lets configuration files name the mode.
func (j *JitterMode) UnmarshalText(text []byte) error {
	return unmarshalEnum(jitterModeNames, text, "jitter mode", j)
}

// MarshalText is the inverse of UnmarshalText.
func (j JitterMode) MarshalText() ([]byte, error) {
	return []byte(j.String()), nil
}

// reconnectBackoff computes successive reconnect delays.
type reconnectBackoff struct {
	minDelay time.Duration
	maxDelay time.Duration
	mode     JitterMode
	attempts int
	prev     time.Duration

	// randN returns a value in [0, n). Tests replace it.
	randN func(n int64) int64
}

func newReconnectBackoff(minDelay, maxDelay time.Duration, mode JitterMode) *reconnectBackoff {
	return &reconnectBackoff{
		minDelay: minDelay,
		maxDelay: maxDelay,
		mode:     mode,
		randN:    rand.Int64N,
	}
}

// exponential returns minDelay * 2^attempts capped at maxDelay.
func (b *reconnectBackoff) exponential() time.Duration {
	d := b.minDelay
	for i := 0; i < b.attempts && d < b.maxDelay; i++ {
		d *= 2
	}
	return min(d, b.maxDelay)
}

func (b *reconnectBackoff) random(upper time.Duration) time.Duration {
	if upper <= 0 {
		return 0
	}
	return time.Duration(b.randN(int64(upper) + 1))
}

// next returns the delay before the upcoming attempt and advances the state.
func (b *reconnectBackoff) next() time.Duration {
	var d time.Duration

	switch b.mode {
	case JitterNone:
		d = b.exponential()
	case JitterDecorrelated:
		if b.prev == 0 {
			d = b.minDelay
		} else {
			upper := min(b.prev*3, b.maxDelay)
			d = b.minDelay + b.random(max(upper-b.minDelay, 0))
		}
	default:
		d = b.random(b.exponential())
	}

	d = min(d, b.maxDelay)
	b.prev = d
	b.attempts++
	return d
}

// reset returns the backoff to its initial state.
func (b *reconnectBackoff) reset() {
	b.attempts = 0
	b.prev = 0
}
