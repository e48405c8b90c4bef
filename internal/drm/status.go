package drm

import (
	"errors"
	"sync/atomic"
)

// Status is the DRM readiness of an audiobook.
type Status uint8

const (
	Pending Status = iota
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseStatus converts the String form back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return Pending, nil
	case "succeeded":
		return Succeeded, nil
	case "failed":
		return Failed, nil
	}
	return Pending, errors.New("unknown drm status " + s)
}

// Attempt identifies one verification cycle of a Cell.
type Attempt uint64

const statusBits = 2

// Cell is an atomically updated DRM status. The zero value is Pending with no attempt running.
type Cell struct {
	word atomic.Uint64 // attempt<<statusBits | status
}

// NewCell returns a cell initialized to status.
func NewCell(status Status) *Cell {
	c := &Cell{}
	c.word.Store(uint64(status))
	return c
}

// Load returns the current status.
func (c *Cell) Load() Status {
	return Status(c.word.Load() & (1<<statusBits - 1))
}

// Ready reports whether protected content may be decoded.
func (c *Cell) Ready() bool {
	return c.Load() == Succeeded
}

// Begin starts a new pending cycle and returns its attempt token.
func (c *Cell) Begin() Attempt {
	for {
		old := c.word.Load()
		next := (old>>statusBits + 1)
		if c.word.CompareAndSwap(old, next<<statusBits|uint64(Pending)) {
			return Attempt(next)
		}
	}
}

// Complete closes attempt with Succeeded when err is nil and Failed otherwise. It returns false
// when the attempt is stale or was already completed.
func (c *Cell) Complete(attempt Attempt, err error) bool {
	status := Succeeded
	if err != nil {
		status = Failed
	}
	want := uint64(attempt)<<statusBits | uint64(Pending)
	return c.word.CompareAndSwap(want, uint64(attempt)<<statusBits|uint64(status))
}

// Set forces status outside any attempt. Used when restoring a persisted status. Set starts a
// new attempt number, so an attempt begun earlier can no longer complete.
func (c *Cell) Set(status Status) {
	for {
		old := c.word.Load()
		next := (old>>statusBits + 1)
		if c.word.CompareAndSwap(old, next<<statusBits|uint64(status)) {
			return
		}
	}
}

// Result is the outcome of one verification attempt.
type Result struct {
	BookID    string
	AttemptID string
	Status    Status
	Err       error
}
