package batch

import "sync/atomic"

// Controller steers a running batch. It is safe for concurrent use.
// Cancel is cooperative: the current item finishes first.
type Controller struct {
	paused    atomic.Bool
	cancelled atomic.Bool
}

func (c *Controller) Pause()  { c.paused.Store(true) }
func (c *Controller) Resume() { c.paused.Store(false) }
func (c *Controller) Cancel() { c.cancelled.Store(true) }

func (c *Controller) Paused() bool    { return c.paused.Load() }
func (c *Controller) Cancelled() bool { return c.cancelled.Load() }
