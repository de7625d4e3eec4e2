// internal/game/timer.go
package game

import (
	"sync"
	"time"
)

// TurnClock owns the per-room turn countdowns. Arming a room atomically
// replaces any existing countdown for it, and a monotonically increasing
// generation token guarantees a stale timer can never fire after a newer
// arm or a cancel — even when the old timer's function has already been
// scheduled and is waiting on the lock.
type TurnClock struct {
	mu    sync.Mutex
	gen   uint64
	armed map[string]*armedTimer
}

type armedTimer struct {
	gen   uint64
	timer *time.Timer
}

// NewTurnClock creates an empty clock. One per process; rooms share it,
// keyed by room code.
func NewTurnClock() *TurnClock {
	return &TurnClock{armed: make(map[string]*armedTimer)}
}

// Arm schedules fire to run once after d, cancelling any countdown already
// armed for the room. fire runs on a timer goroutine; callers funnel it
// through their own serialization lane.
func (c *TurnClock) Arm(roomCode string, d time.Duration, fire func()) {
	c.mu.Lock()
	if prev, ok := c.armed[roomCode]; ok {
		prev.timer.Stop()
	}
	c.gen++
	gen := c.gen
	at := &armedTimer{gen: gen}
	at.timer = time.AfterFunc(d, func() {
		c.mu.Lock()
		cur, ok := c.armed[roomCode]
		if !ok || cur.gen != gen {
			// Superseded by a newer arm or a cancel while we waited.
			c.mu.Unlock()
			return
		}
		delete(c.armed, roomCode)
		c.mu.Unlock()
		fire()
	})
	c.armed[roomCode] = at
	c.mu.Unlock()
}

// Cancel stops any countdown armed for the room. A timer that already
// started firing is suppressed by the generation check.
func (c *TurnClock) Cancel(roomCode string) {
	c.mu.Lock()
	if at, ok := c.armed[roomCode]; ok {
		at.timer.Stop()
		delete(c.armed, roomCode)
	}
	c.mu.Unlock()
}
