package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-rover/controller/pkg/api"
	"github.com/open-rover/controller/pkg/config"
	"github.com/open-rover/controller/pkg/dispatch"
	"github.com/open-rover/controller/pkg/hal"
	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/motor"
	"github.com/open-rover/controller/pkg/nav"
	"github.com/open-rover/controller/pkg/obstacle"
	"github.com/open-rover/controller/pkg/sensor"
	"github.com/open-rover/controller/pkg/state"
	"github.com/open-rover/controller/pkg/supervisor"
	"github.com/open-rover/controller/pkg/telemetry"
	"github.com/open-rover/controller/pkg/zeromq"
	"github.com/open-rover/controller/services"
)

const telemetryPublishInterval = 1 * time.Second

// lateHandler lets the bus be constructed before the command router
// that feeds on it.
type lateHandler struct {
	mu    sync.Mutex
	inner zeromq.MessageHandler
}

func (h *lateHandler) Set(inner zeromq.MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inner = inner
}

func (h *lateHandler) HandleMessage(payload []byte) {
	h.mu.Lock()
	inner := h.inner
	h.mu.Unlock()
	if inner != nil {
		inner.HandleMessage(payload)
	}
}

func sensorID(position string) state.SensorID {
	if position == "back" {
		return state.SensorBack
	}
	return state.SensorFront
}

func main() {
	configDir := flag.String("config", "config", "Path to the configuration directory")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Infof("Rover controller starting (robot %s)", cfg.RobotID)

	// The cached session is the handshake output of the provisioning
	// flow. Without it the operator bus cannot be joined.
	session, err := services.NewSessionService(cfg.Data.Directory, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize session service: %v", err)
	}
	creds, err := session.Load()
	if err != nil {
		if errors.Is(err, services.ErrNoCredentials) {
			logger.Fatalf("No cached session credentials found; run the provisioning flow first")
		}
		logger.Fatalf("Failed to load session credentials: %v", err)
	}
	logger.Infof("Using cached session for robot %s", creds.RobotID)

	chip, err := hal.NewPeriphChip()
	if err != nil {
		logger.Fatalf("Failed to initialize GPIO: %v", err)
	}
	defer chip.Close()

	actuator, err := motor.New(chip, cfg.Motor, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize motor driver: %v", err)
	}
	defer actuator.Close()

	store := state.NewStore()

	handler := &lateHandler{}
	bus, err := zeromq.NewService(cfg.ZeroMQ, handler, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize ZeroMQ service: %v", err)
	}
	defer bus.Close()

	dispatcher := dispatch.New(store, actuator, bus,
		cfg.Motor.StaleAfterMs, cfg.Motor.DefaultDurationS, logger)

	var calls supervisor.CallManager
	if cfg.Videocall.Command != "" {
		callSvc, err := services.NewCallService(cfg.Videocall.Command, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize call service: %v", err)
		}
		calls = callSvc
	}

	sup := supervisor.New(cfg.Supervisor, cfg.RobotID, bus, actuator, session, calls, logger)
	handler.Set(dispatch.NewRouter(dispatcher, sup, logger))

	for _, sensorCfg := range cfg.Sensors {
		sampler, err := sensor.NewSampler(chip, sensorID(sensorCfg.Position), sensorCfg, store, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize %s sensor: %v", sensorCfg.Position, err)
		}
		sup.Register(sampler)
	}
	sup.Register(obstacle.NewMonitor(store, cfg.Obstacle.ThresholdCm,
		time.Duration(cfg.Obstacle.TickMs)*time.Millisecond, logger))
	sup.Register(telemetry.NewPublisher(store, bus, telemetryPublishInterval, logger))
	if cfg.Battery.Enabled {
		sup.Register(telemetry.NewBatteryMonitor(cfg.Battery, bus, logger))
	}

	navCfg := nav.Config{
		TiltPitchDeg:     cfg.Navigation.TiltPitchDeg,
		TiltBackoffMM:    cfg.Navigation.TiltBackoffMm,
		ApproachStopMM:   cfg.Navigation.ApproachStopMm,
		TiltRotateTicks:  cfg.Navigation.TiltRotateTicks,
		TiltAdvanceTicks: cfg.Navigation.TiltAdvanceTicks,
	}

	app := fiber.New(fiber.Config{
		AppName:      "Open-Rover Controller",
		ErrorHandler: customErrorHandler,
	})
	app.Use(fiberlogger.New())
	app.Use(recover.New())

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "open-rover controller",
		})
	})
	api.RegisterRoverRoutes(app, store, sup, sup, dispatcher, navCfg, logger)
	api.RegisterTelemetryRoutes(app, store, logger)

	if err := sup.Start(); err != nil {
		logger.Fatalf("Failed to start supervisor: %v", err)
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
		logger.Infof("HTTP server listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			logger.Errorf("HTTP server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	waitCh := make(chan error, 1)
	go func() { waitCh <- sup.Wait() }()

	var runErr error
	select {
	case sig := <-quit:
		logger.Infof("Received signal %s, shutting down", sig)
		sup.Shutdown()
		runErr = <-waitCh
	case runErr = <-waitCh:
		// Operator disconnect or fatal worker failure.
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Errorf("HTTP server forced to shutdown: %v", err)
	}

	if runErr != nil {
		logger.Errorf("Controller exited with error: %v", runErr)
		bus.Close()
		actuator.Close()
		chip.Close()
		os.Exit(1)
	}
	logger.Infof("Controller exited cleanly")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
