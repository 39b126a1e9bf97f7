// Package supervisor owns the controller lifecycle: it starts the
// long-running workers, restarts the ones that die, and drives the
// ordered teardown when the operator disconnects or the process is
// signalled. Re-entering Connected from Idle happens at process start,
// where main re-joins the bus with the cached session credentials; a
// reconnect command arriving while already running is therefore a
// no-op, and a disconnect ends the process after teardown.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/open-rover/controller/pkg/command"
	"github.com/open-rover/controller/pkg/config"
	customlog "github.com/open-rover/controller/pkg/log"
)

// Worker is a long-running background task managed by the Supervisor.
// Run blocks until ctx is cancelled (returning nil) or until the worker
// hits an unrecoverable condition (returning an error).
type Worker interface {
	Name() string
	Run(ctx context.Context) error
}

// Bus is the message transport the supervisor brings up and tears down.
type Bus interface {
	Start() error
	Stop()
	PublishStatus(robotID, lifecycle string) error
}

// MotorStopper neutralizes the drive train during shutdown.
type MotorStopper interface {
	Stop() error
}

// CredentialStore clears the cached session on operator disconnect.
type CredentialStore interface {
	Clear() error
}

// CallManager controls the video call collaborator process.
type CallManager interface {
	StartCall(callID string) error
	EndCall() error
}

// State is the controller lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnected
	StateRunning
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	}
	return "unknown"
}

// WorkerStatus reports one worker's health for the status API.
type WorkerStatus struct {
	Name     string `json:"name"`
	Restarts int    `json:"restarts"`
}

// Status is a point-in-time view of the supervisor.
type Status struct {
	State      string         `json:"state"`
	ActiveCall string         `json:"active_call,omitempty"`
	Workers    []WorkerStatus `json:"workers"`
}

type workerEntry struct {
	worker   Worker
	cancel   context.CancelFunc
	done     chan error
	restarts int
}

// Supervisor manages worker lifecycles and control-plane commands.
type Supervisor struct {
	cfg     config.SupervisorConfig
	robotID string
	bus     Bus
	motor   MotorStopper
	session CredentialStore
	calls   CallManager
	logger  customlog.Logger

	mu         sync.Mutex
	state      State
	entries    []*workerEntry
	ctx        context.Context
	cancel     context.CancelFunc
	activeCall string
	fatalErr   error

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Supervisor in the Idle state. Workers are added with
// Register before Start.
func New(cfg config.SupervisorConfig, robotID string, bus Bus, motor MotorStopper,
	session CredentialStore, calls CallManager, logger customlog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		cfg:     cfg,
		robotID: robotID,
		bus:     bus,
		motor:   motor,
		session: session,
		calls:   calls,
		logger:  logger,
		state:   StateIdle,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Register adds a worker. Must be called before Start.
func (s *Supervisor) Register(w Worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &workerEntry{worker: w})
}

// Start brings up the bus and all registered workers, then begins the
// liveness loop.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return fmt.Errorf("cannot start supervisor from state '%s'", s.state)
	}
	if err := s.bus.Start(); err != nil {
		return fmt.Errorf("failed to start message bus: %w", err)
	}
	s.state = StateConnected

	for _, e := range s.entries {
		s.startEntryLocked(e)
	}
	s.state = StateRunning
	go s.superviseLoop()

	if err := s.bus.PublishStatus(s.robotID, s.state.String()); err != nil {
		s.logger.Warnf("Failed to publish status: %v", err)
	}
	s.logger.Infof("Supervisor running with %d workers", len(s.entries))
	return nil
}

// startEntryLocked launches one worker goroutine. Caller holds s.mu.
func (s *Supervisor) startEntryLocked(e *workerEntry) {
	ctx, cancel := context.WithCancel(s.ctx)
	e.cancel = cancel
	e.done = make(chan error, 1)
	w := e.worker
	done := e.done
	s.logger.Infof("Starting worker %s", w.Name())
	go func() {
		done <- w.Run(ctx)
	}()
}

// superviseLoop periodically polls worker liveness until shutdown.
func (s *Supervisor) superviseLoop() {
	interval := time.Duration(s.cfg.LivenessIntervalS) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkWorkers()
		}
	}
}

// checkWorkers restarts any worker that has exited, up to the restart
// budget. Exceeding the budget is fatal for the whole controller.
func (s *Supervisor) checkWorkers() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	var fatal error
	for _, e := range s.entries {
		select {
		case err := <-e.done:
			if err != nil {
				s.logger.Errorf("Worker %s died: %v", e.worker.Name(), err)
			} else {
				s.logger.Warnf("Worker %s exited unexpectedly", e.worker.Name())
			}
			if e.restarts >= s.cfg.RestartBudget {
				fatal = fmt.Errorf("worker %s exceeded restart budget (%d)",
					e.worker.Name(), s.cfg.RestartBudget)
				// The exit is already drained; shutdown must not wait
				// on this entry again.
				e.done = nil
				continue
			}
			e.restarts++
			s.logger.Infof("Restarting worker %s (attempt %d of %d)",
				e.worker.Name(), e.restarts, s.cfg.RestartBudget)
			s.startEntryLocked(e)
		default:
		}
	}
	if fatal != nil {
		s.fatalErr = fatal
	}
	s.mu.Unlock()
	if fatal != nil {
		s.shutdown("fatal worker failure")
	}
}

// HandleSystemCommand implements the control-plane side of the command
// router.
func (s *Supervisor) HandleSystemCommand(cmd command.SystemCommand) {
	switch cmd.Type {
	case command.SystemDisconnect:
		s.logger.Infof("Operator disconnect requested")
		if s.session != nil {
			if err := s.session.Clear(); err != nil {
				s.logger.Warnf("Failed to clear session credentials: %v", err)
			}
		}
		// Shutdown joins the bus receive goroutine that delivered this
		// command, so it must not run on it.
		go s.shutdown("operator disconnect")

	case command.SystemReconnect:
		s.mu.Lock()
		st := s.state
		s.mu.Unlock()
		if st == StateRunning {
			s.logger.Infof("Reconnect requested while already running; ignoring")
			return
		}
		s.logger.Warnf("Reconnect requested in state '%s'; restart the controller to re-establish the session", st)

	case command.SystemVideocallOn:
		if s.calls == nil {
			s.logger.Warnf("Videocall requested but no call manager is configured")
			return
		}
		if err := s.calls.StartCall(cmd.CallID); err != nil {
			s.logger.Errorf("Failed to start video call %s: %v", cmd.CallID, err)
			return
		}
		s.mu.Lock()
		s.activeCall = cmd.CallID
		s.mu.Unlock()
		s.logger.Infof("Video call %s started", cmd.CallID)

	case command.SystemVideocallOff:
		if s.calls == nil {
			return
		}
		if err := s.calls.EndCall(); err != nil {
			s.logger.Errorf("Failed to end video call: %v", err)
		}
		s.mu.Lock()
		s.activeCall = ""
		s.mu.Unlock()
		s.logger.Infof("Video call ended")

	default:
		s.logger.Warnf("Unknown system command type '%s'", cmd.Type)
	}
}

// Shutdown performs the ordered teardown. Safe to call more than once.
func (s *Supervisor) Shutdown() {
	s.shutdown("shutdown requested")
}

func (s *Supervisor) shutdown(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.state = StateShuttingDown
		entries := s.entries
		cancel := s.cancel
		s.mu.Unlock()

		s.logger.Infof("Shutting down: %s", reason)

		// Neutralize the drive train first so wheels never keep
		// spinning past worker teardown.
		if s.motor != nil {
			if err := s.motor.Stop(); err != nil {
				s.logger.Errorf("Failed to stop motors during shutdown: %v", err)
			}
		}

		cancel()
		grace := time.Duration(s.cfg.ShutdownGraceS) * time.Second
		deadline := time.After(grace)
		for _, e := range entries {
			if e.done == nil {
				continue
			}
			select {
			case <-e.done:
			case <-deadline:
				s.logger.Warnf("Worker %s did not stop within the grace period", e.worker.Name())
			}
		}

		if s.bus != nil {
			if err := s.bus.PublishStatus(s.robotID, StateIdle.String()); err != nil {
				s.logger.Debugf("Failed to publish final status: %v", err)
			}
			s.bus.Stop()
		}

		s.mu.Lock()
		s.state = StateIdle
		s.mu.Unlock()
		s.logger.Infof("Shutdown complete")
		close(s.done)
	})
}

// Wait blocks until the supervisor has shut down. It returns nil for a
// graceful stop and the fatal error when the restart budget was
// exhausted.
func (s *Supervisor) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// Status returns a snapshot for the HTTP status endpoint.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:      s.state.String(),
		ActiveCall: s.activeCall,
		Workers:    make([]WorkerStatus, 0, len(s.entries)),
	}
	for _, e := range s.entries {
		st.Workers = append(st.Workers, WorkerStatus{
			Name:     e.worker.Name(),
			Restarts: e.restarts,
		})
	}
	return st
}
