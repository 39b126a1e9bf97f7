package api

import (
	"errors"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	customlog "github.com/open-rover/controller/pkg/log"
	"github.com/open-rover/controller/pkg/state"
)

// telemetryPushInterval is how often snapshots are streamed to a
// connected telemetry client.
const telemetryPushInterval = 500 * time.Millisecond

// RegisterTelemetryRoutes registers the telemetry WebSocket endpoint
// with the Fiber app.
func RegisterTelemetryRoutes(app *fiber.App, store *state.Store, logger customlog.Logger) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/telemetry", websocket.New(func(conn *websocket.Conn) {
		TelemetryWebSocketHandler(conn, store, logger)
	}))

	logger.Infof("Registered telemetry WebSocket endpoint at /ws/telemetry")
}

// TelemetryWebSocketHandler streams sensor snapshots to a connected
// client until the connection drops.
func TelemetryWebSocketHandler(conn *websocket.Conn, store *state.Store, logger customlog.Logger) {
	clientID := uuid.NewString()
	logger.Infof("Telemetry WebSocket connected: %s (%s)", conn.RemoteAddr(), clientID)

	ticker := time.NewTicker(telemetryPushInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteJSON(store.Snapshot()); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Errorf("Telemetry WS write error for %s: %v", clientID, err)
			} else if err != websocket.ErrCloseSent && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				logger.Infof("Telemetry WS connection closed: %v", err)
			} else {
				logger.Infof("Telemetry WS connection closed normally.")
			}
			break
		}
	}
	logger.Infof("Telemetry WebSocket disconnected: %s", clientID)
}
