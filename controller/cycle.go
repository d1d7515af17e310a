package controller

import (
	"context"
	"sync"
	"time"
)

// cycleController paces the poll loop. Interval changes wake a pending Wait
// so the new cadence applies immediately.
type cycleController struct {
	mu       sync.RWMutex
	interval time.Duration
	notify   chan struct{}
}

func newCycleController(interval time.Duration) *cycleController {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &cycleController{
		interval: interval,
		notify:   make(chan struct{}, 1),
	}
}

func (c *cycleController) Wait(ctx context.Context) (time.Time, error) {
	for {
		c.mu.RLock()
		interval := c.interval
		c.mu.RUnlock()

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return time.Time{}, ctx.Err()
		case <-timer.C:
			return time.Now(), nil
		case <-c.notify:
			if !timer.Stop() {
				<-timer.C
			}
			continue
		}
	}
}

func (c *cycleController) SetInterval(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	c.mu.Lock()
	if c.interval == d {
		c.mu.Unlock()
		return
	}
	c.interval = d
	c.mu.Unlock()
	c.signal()
}

func (c *cycleController) Interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.interval
}

func (c *cycleController) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
