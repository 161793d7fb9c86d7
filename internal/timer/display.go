package timer

import (
	"sync"
	"time"
)

// DefaultTickInterval is the display refresh period.
const DefaultTickInterval = time.Second

// Frame is one rendering of the job timer.
type Frame struct {
	Elapsed   int64
	Formatted string
	Percent   float64
	Overrun   bool
	State     State
	Status    string
	Controls  Controls
	At        time.Time
}

// Renderer displays frames and alert-style notices.
type Renderer interface {
	Render(Frame)
	Notice(err error)
}

// Progress returns the completion percentage capped at 100 and whether the
// total has run past the target. A non-positive target counts as complete
// once any time is recorded.
func Progress(total, target int64) (percent float64, overrun bool) {
	if target <= 0 {
		if total > 0 {
			return 100, true
		}
		return 0, false
	}
	percent = float64(total) / float64(target) * 100
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return percent, total > target
}

// DisplayLoop calls onTick every interval while active. Start and Stop are
// idempotent, so a transition that is already ticking never gains a second
// ticker.
type DisplayLoop struct {
	interval time.Duration
	onTick   func(time.Time)

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewDisplayLoop creates an inactive loop. A non-positive interval falls
// back to DefaultTickInterval.
func NewDisplayLoop(interval time.Duration, onTick func(time.Time)) *DisplayLoop {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &DisplayLoop{interval: interval, onTick: onTick}
}

// Start launches the ticking goroutine unless one is already active.
func (l *DisplayLoop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopCh != nil {
		return
	}
	stopCh := make(chan struct{})
	l.stopCh = stopCh
	l.wg.Add(1)
	go l.run(stopCh)
}

// Stop cancels the active ticker. It does not wait for an in-progress tick;
// use Wait for that.
func (l *DisplayLoop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopCh == nil {
		return
	}
	close(l.stopCh)
	l.stopCh = nil
}

// Active reports whether a ticker is running.
func (l *DisplayLoop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopCh != nil
}

// Wait blocks until every ticker goroutine started so far has exited.
func (l *DisplayLoop) Wait() {
	l.wg.Wait()
}

func (l *DisplayLoop) run(stopCh chan struct{}) {
	defer l.wg.Done()
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case t := <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			l.onTick(t)
		}
	}
}
