package testutil

import (
	"fmt"
	"time"
)

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// NewFixedClock returns a clock pinned to a stable test instant.
func NewFixedClock() *FixedClock {
	return &FixedClock{T: time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// SequenceIDGenerator produces predictable IDs ("id-0001", "id-0002", ...)
// so tests can assert on row identity.
type SequenceIDGenerator struct {
	n int
}

func (g *SequenceIDGenerator) New() string {
	g.n++
	return fmt.Sprintf("id-%04d", g.n)
}
