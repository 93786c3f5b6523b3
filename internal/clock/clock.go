// Package clock drives the render-rate simulation tick.
package clock

import (
	"sync"
	"time"
)

// Tick is one simulation step.
type Tick struct {
	Seq     uint64
	Elapsed time.Duration
	Delta   time.Duration
}

// TickFunc is called on every tick, in registration order.
type TickFunc func(Tick)

// Driver issues ticks at a fixed step. Ticks can come from the internal
// goroutine (Start) or be stepped manually (Step); both paths serialize.
type Driver struct {
	step time.Duration

	fmu   sync.RWMutex
	funcs []TickFunc

	// serializes tick delivery
	rmu sync.Mutex

	tmu     sync.Mutex
	seq     uint64
	elapsed time.Duration

	lmu  sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewDriver creates a stopped driver ticking rate times per second. A
// non-positive rate defaults to 60.
func NewDriver(rate int) *Driver {
	if rate <= 0 {
		rate = 60
	}
	return &Driver{step: time.Second / time.Duration(rate)}
}

// Interval returns the fixed tick duration.
func (d *Driver) Interval() time.Duration {
	return d.step
}

// OnTick registers f.
func (d *Driver) OnTick(f TickFunc) {
	d.fmu.Lock()
	defer d.fmu.Unlock()
	d.funcs = append(d.funcs, f)
}

// Step issues one tick synchronously.
func (d *Driver) Step() Tick {
	return d.tickOnce()
}

// Advance issues n ticks synchronously and returns the last one.
func (d *Driver) Advance(n int) Tick {
	var t Tick
	for i := 0; i < n; i++ {
		t = d.tickOnce()
	}
	return t
}

// Now returns the last issued tick.
func (d *Driver) Now() Tick {
	d.tmu.Lock()
	defer d.tmu.Unlock()
	return Tick{Seq: d.seq, Elapsed: d.elapsed, Delta: d.step}
}

func (d *Driver) tickOnce() Tick {
	d.rmu.Lock()
	defer d.rmu.Unlock()

	d.tmu.Lock()
	d.seq++
	d.elapsed += d.step
	t := Tick{Seq: d.seq, Elapsed: d.elapsed, Delta: d.step}
	d.tmu.Unlock()

	d.fmu.RLock()
	funcs := make([]TickFunc, len(d.funcs))
	copy(funcs, d.funcs)
	d.fmu.RUnlock()

	for _, f := range funcs {
		f(t)
	}
	return t
}

// Start runs the tick goroutine. Calling Start while running does nothing.
func (d *Driver) Start() {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	if d.stop != nil {
		return
	}
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.loop(d.stop, d.done)
}

// Stop halts the tick goroutine and waits for it to exit. It must not be
// called from a TickFunc.
func (d *Driver) Stop() {
	d.lmu.Lock()
	stop, done := d.stop, d.done
	d.stop, d.done = nil, nil
	d.lmu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Running reports whether the tick goroutine is active.
func (d *Driver) Running() bool {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	return d.stop != nil
}

func (d *Driver) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(d.step)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.tickOnce()
		}
	}
}
