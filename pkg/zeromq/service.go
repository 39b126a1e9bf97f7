// Package zeromq carries the rover's message-bus traffic: inbound
// operator commands on a SUB socket, outbound status and telemetry on a
// PUB socket.
package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/open-rover/controller/pkg/config"
	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/pebbe/zmq4"
)

// Common errors
var (
	ErrServiceClosed = errors.New("zeromq service is closed")
	ErrNoHandler     = errors.New("no message handler registered")
)

// Outbound message types
const (
	MsgTypeStatus    = "STATUS"
	MsgTypeVetoAck   = "MOTION_REJECTED"
	MsgTypeTelemetry = "TELEMETRY"
	MsgTypeBattery   = "BATTERY"
)

// Outbound topics
const (
	TopicStatus    = "rover.status"
	TopicAck       = "rover.ack"
	TopicTelemetry = "rover.telemetry"
	TopicBattery   = "rover.battery"
)

// Message is the generic outbound envelope.
type Message struct {
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// MessageHandler consumes inbound command payloads.
type MessageHandler interface {
	HandleMessage(payload []byte)
}

// commandReceiver subscribes to the operator command stream.
type commandReceiver struct {
	socket  *zmq4.Socket
	poller  *zmq4.Poller
	handler MessageHandler
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
	wg      *sync.WaitGroup
}

func newCommandReceiver(ctx *zmq4.Context, cfg config.ZeroMQConfig, handler MessageHandler, logger customlog.Logger, wg *sync.WaitGroup) (*commandReceiver, error) {
	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}

	if err := socket.Connect(cfg.CommandConnectAddress); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.CommandConnectAddress, err)
	}
	if err := socket.SetSubscribe(""); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetReconnectIvl(time.Duration(cfg.ReconnectIntervalMs) * time.Millisecond); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set reconnect interval: %w", err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("Command receiver connected to %s", cfg.CommandConnectAddress)

	return &commandReceiver{
		socket:  socket,
		poller:  poller,
		handler: handler,
		logger:  logger,
		wg:      wg,
	}, nil
}

// start begins the receive loop.
func (r *commandReceiver) start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.logger.Infof("Command receiver started")

		for r.isRunning() {
			// Poll with a timeout so shutdown is never blocked on recv
			sockets, err := r.poller.Poll(500 * time.Millisecond)
			if err != nil {
				if r.isRunning() {
					r.logger.Errorf("Error polling command socket: %v", err)
				}
				continue
			}
			if len(sockets) == 0 {
				continue
			}

			payload, err := r.socket.RecvBytes(0)
			if err != nil {
				if r.isRunning() {
					r.logger.Errorf("Error receiving command: %v", err)
				}
				continue
			}

			r.logger.Debugf("Received command payload (%d bytes)", len(payload))
			if r.handler != nil {
				r.handler.HandleMessage(payload)
			}
		}
	}()
}

func (r *commandReceiver) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// stop halts the receive loop and closes the socket. The loop must have
// exited before the socket is touched; closing it out from under a recv
// is not safe.
func (r *commandReceiver) stop() {
	r.mu.Lock()
	wasRunning := r.running
	r.running = false
	r.mu.Unlock()

	if wasRunning {
		// The loop polls with a timeout, so this returns within one
		// poll interval.
		r.wg.Wait()
	}

	r.mu.Lock()
	socket := r.socket
	r.socket = nil
	r.mu.Unlock()
	if socket != nil {
		socket.Close()
	}
}

// statusSender publishes outbound messages.
type statusSender struct {
	socket  *zmq4.Socket
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

func newStatusSender(ctx *zmq4.Context, cfg config.ZeroMQConfig, logger customlog.Logger) (*statusSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.Bind(cfg.PublishBindAddress); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", cfg.PublishBindAddress, err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	logger.Infof("Status sender bound to %s", cfg.PublishBindAddress)

	return &statusSender{socket: socket, logger: logger, running: true}, nil
}

func (s *statusSender) publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}

	// Topic frame first, then the payload
	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(payload, 0); err != nil {
		return fmt.Errorf("failed to send payload: %w", err)
	}
	return nil
}

func (s *statusSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// Service coordinates the rover's bus sockets.
type Service struct {
	cfg      config.ZeroMQConfig
	ctx      *zmq4.Context
	receiver *commandReceiver
	sender   *statusSender
	handler  MessageHandler
	logger   customlog.Logger
	running  bool
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// NewService creates the bus service. The handler consumes every
// inbound payload; classification happens downstream.
func NewService(cfg config.ZeroMQConfig, handler MessageHandler, logger customlog.Logger) (*Service, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}
	return &Service{cfg: cfg, ctx: ctx, handler: handler, logger: logger}, nil
}

// Start opens both sockets and begins receiving.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.logger.Infof("Starting ZeroMQ service")

	receiver, err := newCommandReceiver(s.ctx, s.cfg, s.handler, s.logger, &s.wg)
	if err != nil {
		return err
	}
	sender, err := newStatusSender(s.ctx, s.cfg, s.logger)
	if err != nil {
		receiver.stop()
		return err
	}

	s.receiver = receiver
	s.sender = sender
	s.running = true
	s.receiver.start()
	return nil
}

// Stop closes both sockets and waits for the receive loop to exit. The
// ZMQ context survives so the service can be restarted on reconnect.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.logger.Infof("Stopping ZeroMQ service")
	s.running = false
	receiver := s.receiver
	sender := s.sender
	s.receiver = nil
	s.sender = nil
	s.mu.Unlock()

	if receiver != nil {
		receiver.stop()
	}
	if sender != nil {
		sender.close()
	}
	s.wg.Wait()
	s.logger.Infof("ZeroMQ service stopped")
}

// Close stops the service and terminates the ZMQ context.
func (s *Service) Close() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		s.ctx.Term()
		s.ctx = nil
	}
}

// PublishJSON publishes a typed JSON message on a topic.
func (s *Service) PublishJSON(topic string, messageType string, data interface{}) error {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return ErrServiceClosed
	}

	msg := Message{
		Type:      messageType,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return sender.publish(topic, payload)
}
