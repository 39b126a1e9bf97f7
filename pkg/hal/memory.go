package hal

import (
	"sync"
	"time"
)

// FakeChip is an in-memory Chip for tests. Lines are created on first
// claim; echo behavior is scripted per line with PrimeEcho.
type FakeChip struct {
	mu      sync.Mutex
	outputs map[string]*FakeOutput
	echoes  map[string]*FakeEcho
	closed  bool
}

// NewFakeChip returns an empty in-memory chip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		outputs: make(map[string]*FakeOutput),
		echoes:  make(map[string]*FakeEcho),
	}
}

func (c *FakeChip) Output(name string) (OutputLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChipClosed
	}
	if o, ok := c.outputs[name]; ok {
		return o, nil
	}
	o := &FakeOutput{name: name}
	c.outputs[name] = o
	return o, nil
}

func (c *FakeChip) Echo(name string) (EchoLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrChipClosed
	}
	if e, ok := c.echoes[name]; ok {
		return e, nil
	}
	e := &FakeEcho{name: name}
	c.echoes[name] = e
	return e, nil
}

func (c *FakeChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// OutputLevel returns the current level of a claimed output line.
func (c *FakeChip) OutputLevel(name string) Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.outputs[name]; ok {
		return o.Level()
	}
	return Low
}

// PrimeEcho appends scripted pulses to the named echo line, creating it
// if needed.
func (c *FakeChip) PrimeEcho(name string, pulses ...FakePulse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.echoes[name]
	if !ok {
		e = &FakeEcho{name: name}
		c.echoes[name] = e
	}
	e.Prime(pulses...)
}

// FakeOutput records level changes on an output line.
type FakeOutput struct {
	mu      sync.Mutex
	name    string
	level   Level
	history []Level
	failErr error
}

func (o *FakeOutput) Set(level Level) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failErr != nil {
		return o.failErr
	}
	o.level = level
	o.history = append(o.history, level)
	return nil
}

func (o *FakeOutput) Name() string { return o.name }

// Level returns the line's current state.
func (o *FakeOutput) Level() Level {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level
}

// History returns all levels ever set, in order.
func (o *FakeOutput) History() []Level {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Level, len(o.history))
	copy(out, o.history)
	return out
}

// FailWith makes every subsequent Set return err. Pass nil to heal.
func (o *FakeOutput) FailWith(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failErr = err
}

// FakePulse describes one scripted echo response: the line goes high
// after Delay (immediately when zero) and stays high for Width. A
// Timeout pulse never produces an edge.
type FakePulse struct {
	Delay   time.Duration
	Width   time.Duration
	Timeout bool
}

// FakeEcho replays scripted pulses. Each sample consumes one pulse:
// first WaitForEdge reports the rising edge, second the falling edge
// after sleeping Width.
type FakeEcho struct {
	mu      sync.Mutex
	name    string
	pulses  []FakePulse
	falling bool
	width   time.Duration
}

// Prime appends pulses to the script.
func (e *FakeEcho) Prime(pulses ...FakePulse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulses = append(e.pulses, pulses...)
}

func (e *FakeEcho) WaitForEdge(timeout time.Duration) bool {
	e.mu.Lock()
	if e.falling {
		width := e.width
		e.falling = false
		e.mu.Unlock()
		if width > timeout {
			time.Sleep(timeout)
			return false
		}
		time.Sleep(width)
		return true
	}

	if len(e.pulses) == 0 {
		e.mu.Unlock()
		time.Sleep(timeout)
		return false
	}
	pulse := e.pulses[0]
	e.pulses = e.pulses[1:]
	if pulse.Timeout || pulse.Delay > timeout {
		e.mu.Unlock()
		time.Sleep(timeout)
		return false
	}
	e.falling = true
	e.width = pulse.Width
	e.mu.Unlock()
	time.Sleep(pulse.Delay)
	return true
}

func (e *FakeEcho) Read() Level {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Level(e.falling)
}

func (e *FakeEcho) Name() string { return e.name }
