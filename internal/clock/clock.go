package clock

import (
	"sync"
	"time"
)

// Real reports wall-clock time in a fixed location. Injected everywhere the
// scheduler or planner needs "now" so tests can substitute Fake.
type Real struct {
	loc *time.Location
}

func NewReal(loc *time.Location) *Real {
	if loc == nil {
		loc = time.Local
	}
	return &Real{loc: loc}
}

func (c *Real) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *Real) Location() *time.Location {
	return c.loc
}

// Fake is a settable clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Fake) Location() *time.Location {
	return c.Now().Location()
}

// Advance moves the fake clock forward.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set pins the fake clock to t.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
