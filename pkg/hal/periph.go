package hal

import (
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// periphChip claims GPIO lines through periph.io's host drivers.
type periphChip struct {
	mu      sync.Mutex
	claimed []gpio.PinIO
	closed  bool
}

// NewPeriphChip initializes the periph.io host and returns a Chip backed
// by real GPIO lines. Fails when no GPIO hardware is present.
func NewPeriphChip() (Chip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize gpio host: %w", err)
	}
	return &periphChip{}, nil
}

func (c *periphChip) Output(name string) (OutputLine, error) {
	pin, err := c.claim(name)
	if err != nil {
		return nil, err
	}
	if err := pin.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to configure %s as output: %w", name, err)
	}
	return &periphOutput{pin: pin}, nil
}

func (c *periphChip) Echo(name string) (EchoLine, error) {
	pin, err := c.claim(name)
	if err != nil {
		return nil, err
	}
	if err := pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("failed to configure %s as edge input: %w", name, err)
	}
	return &periphEcho{pin: pin}, nil
}

func (c *periphChip) claim(name string) (gpio.PinIO, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrChipClosed
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrLineNotFound, name)
	}
	c.claimed = append(c.claimed, pin)
	return pin, nil
}

// Close drives every claimed line low and halts edge detection.
func (c *periphChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	for _, pin := range c.claimed {
		if err := pin.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to halt %s: %w", pin.Name(), err)
		}
	}
	c.claimed = nil
	return firstErr
}

type periphOutput struct {
	pin gpio.PinIO
}

func (o *periphOutput) Set(level Level) error {
	l := gpio.Low
	if level == High {
		l = gpio.High
	}
	return o.pin.Out(l)
}

func (o *periphOutput) Name() string { return o.pin.Name() }

type periphEcho struct {
	pin gpio.PinIO
}

func (e *periphEcho) WaitForEdge(timeout time.Duration) bool {
	return e.pin.WaitForEdge(timeout)
}

func (e *periphEcho) Read() Level {
	return Level(e.pin.Read() == gpio.High)
}

func (e *periphEcho) Name() string { return e.pin.Name() }
