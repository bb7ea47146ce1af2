package client

import (
	mathrand "math/rand"
	"time"
)

// Reconnect spaces out reconnect attempts with jitter so that many clients
// dropped by the same outage do not redial in lockstep.
type Reconnect struct {
	timeout time.Duration
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		timeout: timeout,
	}
}

func (self *Reconnect) After() <-chan time.Time {
	jitter := time.Duration(mathrand.Int63n(1 + int64(self.timeout)/2))
	return time.After(self.timeout + jitter)
}
