// Package api exposes the controller's local HTTP surface: health and
// status probes, the sensor snapshot, and the navigation observation
// intake used by the marker-following collaborator.
package api

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/open-rover/controller/pkg/command"
	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/nav"
	"github.com/open-rover/controller/pkg/state"
	"github.com/open-rover/controller/pkg/supervisor"
)

// StatusProvider reports the controller lifecycle for the status
// endpoint.
type StatusProvider interface {
	Status() supervisor.Status
}

// SystemHandler consumes control-plane commands submitted over HTTP.
type SystemHandler interface {
	HandleSystemCommand(cmd command.SystemCommand)
}

// PlanRunner executes a navigation plan through the motion safety path.
type PlanRunner interface {
	RunPlan(plan []nav.Command)
}

// RoverHandler holds dependencies for the controller API endpoints.
type RoverHandler struct {
	store   *state.Store
	status  StatusProvider
	system  SystemHandler
	planner PlanRunner
	navCfg  nav.Config
	logger  customlog.Logger
}

// NewRoverHandler creates a new handler for the controller endpoints.
func NewRoverHandler(store *state.Store, status StatusProvider, system SystemHandler,
	planner PlanRunner, navCfg nav.Config, logger customlog.Logger) *RoverHandler {
	if store == nil {
		panic("Store cannot be nil in NewRoverHandler")
	}
	if logger == nil {
		panic("Logger cannot be nil in NewRoverHandler")
	}
	return &RoverHandler{
		store:   store,
		status:  status,
		system:  system,
		planner: planner,
		navCfg:  navCfg,
		logger:  logger,
	}
}

// RegisterRoverRoutes registers the controller API endpoints with the
// Fiber app.
func RegisterRoverRoutes(app *fiber.App, store *state.Store, status StatusProvider,
	system SystemHandler, planner PlanRunner, navCfg nav.Config, logger customlog.Logger) {
	h := NewRoverHandler(store, status, system, planner, navCfg, logger)

	app.Get("/health", h.handleHealth)

	apiGroup := app.Group("/api")
	apiGroup.Get("/status", h.handleStatus)
	apiGroup.Get("/sensors", h.handleSensors)
	apiGroup.Post("/navigation/observation", h.handleObservation)
	apiGroup.Post("/system", h.handleSystem)

	logger.Infof("Registered controller API endpoints under /api")
}

func (h *RoverHandler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "healthy"})
}

// handleStatus reports the supervisor lifecycle and per-worker health.
func (h *RoverHandler) handleStatus(c *fiber.Ctx) error {
	if h.status == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "status provider not available",
		})
	}
	return c.JSON(h.status.Status())
}

// handleSensors returns the latest shared sensor snapshot.
func (h *RoverHandler) handleSensors(c *fiber.Ctx) error {
	return c.JSON(h.store.Snapshot())
}

// handleObservation accepts a marker observation, derives a motion
// plan, and executes it through the same safety path as operator
// commands.
func (h *RoverHandler) handleObservation(c *fiber.Ctx) error {
	var obs nav.Observation
	if err := c.BodyParser(&obs); err != nil {
		h.logger.Warnf("Failed to parse navigation observation: %v", err)
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Invalid observation payload: %v", err),
		})
	}

	plan := nav.Decide(obs, h.navCfg)
	if h.planner != nil {
		h.planner.RunPlan(plan)
	}

	steps := make([]string, 0, len(plan))
	for _, step := range plan {
		steps = append(steps, step.String())
	}
	h.logger.Debugf("Navigation observation produced plan %v", steps)
	return c.JSON(fiber.Map{"plan": steps})
}

// handleSystem accepts a control-plane command over HTTP, mirroring the
// bus path for local tooling.
func (h *RoverHandler) handleSystem(c *fiber.Ctx) error {
	cmd, ok := command.ParseSystem(c.Body())
	if !ok {
		return c.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": "unrecognized system command",
		})
	}
	if h.system == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "system handler not available",
		})
	}
	h.system.HandleSystemCommand(cmd)
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"accepted": string(cmd.Type)})
}
