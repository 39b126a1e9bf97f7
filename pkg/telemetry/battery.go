package telemetry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/open-rover/controller/pkg/config"
	customlog "github.com/open-rover/controller/pkg/log"
)

// BatteryPublisher is the outbound bus surface for battery readings.
type BatteryPublisher interface {
	PublishBattery(percentage string) error
}

// portOpener lets tests substitute the serial port.
type portOpener func() (io.ReadCloser, error)

// BatteryMonitor reads the battery percentage from the power board's
// serial line and publishes it on an interval.
type BatteryMonitor struct {
	bus      BatteryPublisher
	interval time.Duration
	logger   customlog.Logger
	open     portOpener
}

// NewBatteryMonitor creates the battery monitor worker.
func NewBatteryMonitor(cfg config.BatteryConfig, bus BatteryPublisher, logger customlog.Logger) *BatteryMonitor {
	return &BatteryMonitor{
		bus:      bus,
		interval: time.Duration(cfg.PublishIntervalS) * time.Second,
		logger:   logger,
		open: func() (io.ReadCloser, error) {
			port, err := serial.Open(cfg.SerialPort, &serial.Mode{BaudRate: cfg.BaudRate})
			if err != nil {
				return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.SerialPort, err)
			}
			if err := port.SetReadTimeout(time.Second); err != nil {
				port.Close()
				return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
			}
			return port, nil
		},
	}
}

// SetOpener overrides the serial port factory. Test hook.
func (m *BatteryMonitor) SetOpener(open func() (io.ReadCloser, error)) { m.open = open }

// Name implements supervisor.Worker.
func (m *BatteryMonitor) Name() string { return "battery-monitor" }

// Run reads and publishes until the context is cancelled. A failed port
// open is returned as an error so the supervisor restart policy applies.
func (m *BatteryMonitor) Run(ctx context.Context) error {
	port, err := m.open()
	if err != nil {
		return err
	}
	defer port.Close()

	m.logger.Infof("Battery monitor started (interval=%s)", m.interval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Infof("Battery monitor stopping")
			return nil
		default:
		}

		line, err := readLine(ctx, port)
		if err != nil {
			return fmt.Errorf("battery serial read failed: %w", err)
		}
		if line == "" {
			continue
		}

		m.logger.Debugf("Battery reading: %s", line)
		if err := m.bus.PublishBattery(line); err != nil {
			m.logger.Debugf("Battery publish failed: %v", err)
		}

		if !sleepCtx(ctx, m.interval) {
			return nil
		}
	}
}

// readLine accumulates bytes until a newline, tolerating the serial
// read timeout's empty reads so cancellation stays responsive.
func readLine(ctx context.Context, r io.Reader) (string, error) {
	var sb strings.Builder
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return "", nil
		default:
		}

		n, err := r.Read(buf)
		if err != nil {
			if err == io.EOF && sb.Len() > 0 {
				return strings.TrimSpace(sb.String()), nil
			}
			return "", err
		}
		if n == 0 {
			// Read timeout with no data
			if sb.Len() == 0 {
				continue
			}
			return strings.TrimSpace(sb.String()), nil
		}
		if buf[0] == '\n' {
			return strings.TrimSpace(sb.String()), nil
		}
		sb.WriteByte(buf[0])
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
