package clock

import "time"

// FakeClock returns a fixed instant so payment timestamps and sweep markers
// are deterministic in tests.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward for tests that cross a time boundary.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
