package ts

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock wraps clockwork.Clock so that Now returns run timestamps directly.
type Clock struct {
	realClock clockwork.Clock
}

func NewRealClock() *Clock {
	return NewClock(clockwork.NewRealClock())
}

// NewClock wraps c, usually a clockwork.FakeClock in tests.
func NewClock(c clockwork.Clock) *Clock {
	return &Clock{realClock: c}
}

// Now provides a UTC timestamp truncated to the second.  Runs are stamped
// with it, and the database keeps no more precision than that anyway.
func (c *Clock) Now() time.Time {
	return c.realClock.Now().UTC().Truncate(time.Second)
}

func (c *Clock) RealClock() clockwork.Clock {
	return c.realClock
}
