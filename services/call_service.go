package services

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	customlog "github.com/open-rover/controller/pkg/log"
)

// callStopTimeout bounds how long EndCall waits for the collaborator
// to exit after SIGTERM before killing it.
const callStopTimeout = 3 * time.Second

// CallService runs the external video call collaborator process. One
// call is active at a time; starting a new one replaces the current.
type CallService struct {
	command string
	logger  customlog.Logger

	mu   sync.Mutex
	proc *exec.Cmd
	done chan error
}

// NewCallService creates a CallService launching the given command.
func NewCallService(command string, logger customlog.Logger) (*CallService, error) {
	if command == "" {
		return nil, fmt.Errorf("videocall command cannot be empty")
	}
	return &CallService{command: command, logger: logger}, nil
}

// StartCall launches the collaborator with the call ID as argument.
func (s *CallService) StartCall(callID string) error {
	if err := s.EndCall(); err != nil {
		s.logger.Warnf("Failed to end previous call before starting a new one: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	proc := exec.Command(s.command, callID)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("failed to start videocall process '%s': %w", s.command, err)
	}
	done := make(chan error, 1)
	go func() {
		done <- proc.Wait()
	}()
	s.proc = proc
	s.done = done
	s.logger.Infof("Videocall process started (pid %d)", proc.Process.Pid)
	return nil
}

// EndCall terminates the collaborator. No active call is not an error.
func (s *CallService) EndCall() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.proc == nil {
		return nil
	}
	proc, done := s.proc, s.done
	s.proc, s.done = nil, nil

	if err := proc.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone is fine.
		<-done
		return nil
	}
	select {
	case <-done:
	case <-time.After(callStopTimeout):
		s.logger.Warnf("Videocall process did not exit after SIGTERM, killing it")
		proc.Process.Kill()
		<-done
	}
	s.logger.Infof("Videocall process stopped")
	return nil
}
