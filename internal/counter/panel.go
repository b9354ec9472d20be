package counter

import (
	"sync"
	"time"
)

// Scheduler requests animation frames. The callback receives the frame
// timestamp and must run asynchronously, never from inside RequestFrame.
// The returned cancel func is safe to call after the frame has fired.
type Scheduler interface {
	RequestFrame(fn func(now time.Duration)) (cancel func())
}

// Viewport reports when the panel becomes visible. Like Scheduler, the
// callback is asynchronous. disconnect stops observation.
type Viewport interface {
	Observe(onVisible func()) (disconnect func())
}

// Counter is one animated number inside a panel. Display must not call back
// into the Panel.
type Counter struct {
	Target   int64
	Duration time.Duration
	Display  func(value int64)
}

func (c Counter) duration() time.Duration {
	if c.Duration <= 0 {
		return DefaultDuration
	}
	return c.Duration
}

// Panel owns the viewport observation and the frame request that drive a
// group of counters. Mount starts observing, the first visibility arms the
// panel, and Dispose releases whatever is still held. After Dispose no
// display is updated again.
type Panel struct {
	mu       sync.Mutex
	viewport Viewport
	frames   Scheduler
	counters []Counter
	values   []int64

	mounted  bool
	armed    bool
	complete bool
	disposed bool

	started bool
	start   time.Duration

	disconnect  func()
	cancelFrame func()
}

func NewPanel(viewport Viewport, frames Scheduler, counters ...Counter) *Panel {
	return &Panel{
		viewport: viewport,
		frames:   frames,
		counters: counters,
		values:   make([]int64, len(counters)),
	}
}

// Mount pins every display to 0 and starts watching the viewport. Later
// calls do nothing.
func (p *Panel) Mount() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mounted || p.disposed {
		return
	}
	p.mounted = true
	for i, c := range p.counters {
		if c.Display != nil {
			c.Display(p.values[i])
		}
	}
	if p.armed {
		return
	}
	p.disconnect = p.viewport.Observe(p.Arm)
}

// Arm starts the count-up. Only the first call has an effect.
func (p *Panel) Arm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.armed || p.disposed {
		return
	}
	p.armed = true
	p.releaseObserverLocked()
	if len(p.counters) == 0 {
		p.complete = true
		return
	}
	p.cancelFrame = p.frames.RequestFrame(p.tick)
}

func (p *Panel) tick(now time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelFrame = nil
	if p.disposed || p.complete {
		return
	}
	if !p.started {
		p.start, p.started = now, true
	}
	elapsed := now - p.start

	complete := true
	for i, c := range p.counters {
		v := Value(c.Target, elapsed, c.duration())
		if v != p.values[i] {
			p.values[i] = v
			if c.Display != nil {
				c.Display(v)
			}
		}
		if elapsed < c.duration() {
			complete = false
		}
	}
	if complete {
		p.complete = true
		return
	}
	p.cancelFrame = p.frames.RequestFrame(p.tick)
}

// Dispose releases the viewport observation and any pending frame request.
func (p *Panel) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.disposed = true
	p.releaseObserverLocked()
	if p.cancelFrame != nil {
		p.cancelFrame()
		p.cancelFrame = nil
	}
}

func (p *Panel) releaseObserverLocked() {
	if p.disconnect != nil {
		p.disconnect()
		p.disconnect = nil
	}
}

// Armed reports whether the count-up has been triggered.
func (p *Panel) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}

// Complete reports whether every counter has reached its target.
func (p *Panel) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.complete
}

// Holding reports whether the panel still holds an observer or a frame
// request.
func (p *Panel) Holding() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnect != nil || p.cancelFrame != nil
}

// Values returns the currently displayed numbers.
func (p *Panel) Values() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, len(p.values))
	copy(out, p.values)
	return out
}
