package testutil

import (
	"strconv"
	"sync"
	"time"
)

// StubClock is a manually driven ingest.Clock. When Step is non-zero every
// call to Now moves the clock forward by Step after reading it, which gives
// runs a measurable duration without sleeping.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock is the clock most ingest tests use: 2024-06-15 18:45:30 UTC,
// which names raw backup folders 2024-06-15_184530.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 6, 15, 18, 45, 30, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Set jumps the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// StubIDGenerator hands out run-1, run-2, ... in call order.
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

func NewStubIDGenerator() *StubIDGenerator { return &StubIDGenerator{} }

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "run-" + strconv.Itoa(g.n)
}
