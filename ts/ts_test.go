package ts

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestNowTruncatesToUTCSecond(t *testing.T) {
	loc := time.FixedZone("PST", -8*60*60)
	fake := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 4, 5, 6, 789_000_000, loc))
	c := NewClock(fake)

	got := c.Now()
	assert.Equal(t, time.Date(2026, 3, 1, 12, 5, 6, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())

	fake.Advance(1500 * time.Millisecond)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 5, 8, 0, time.UTC), c.Now())
	assert.Same(t, fake, c.RealClock())
}
