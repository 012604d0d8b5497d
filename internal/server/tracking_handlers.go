package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"canopy/internal/mapview"
	"canopy/internal/middleware"
	"canopy/internal/models"
	"canopy/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const trackingWriteTimeout = 10 * time.Second

// trackingCommand is the only message a client sends on the feed.
type trackingCommand struct {
	Tracking bool `json:"tracking"`
}

// TrackingFeedHandler handles GET /api/ws/planters. While the client has
// tracking on, the planter marker payload is pushed on every tracker tick and
// right after any tree changes.
// @Summary Planter tracking feed
// @Description WebSocket. Send {"tracking":true} to receive planter marker payloads every 10 seconds, {"tracking":false} to pause.
// @Tags maps
// @Security BearerAuth
// @Success 101
// @Failure 401 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/planters [get]
func (s *Server) TrackingFeedHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		observability.TrackingConnections.Inc()
		defer observability.TrackingConnections.Dec()

		userID, _ := conn.Locals("userID").(uint)
		ctx, cancel := context.WithCancel(context.WithValue(context.Background(), middleware.UserIDKey, userID))
		defer cancel()

		var writeMu sync.Mutex
		send := func(v any) error {
			payload, err := json.Marshal(v)
			if err != nil {
				return err
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = conn.SetWriteDeadline(time.Now().Add(trackingWriteTimeout))
			return conn.WriteMessage(websocket.TextMessage, payload)
		}

		tracker := mapview.NewTracker(mapview.TrackerOptions{
			Interval: s.trackInterval,
			Fetch:    s.fetchPlanters,
			OnUpdate: func(data mapview.Data) {
				view := mapview.NewView(mapview.Options{Mode: mapview.ModePlanters, Planters: data.Planters})
				if err := send(view.Payload()); err != nil {
					middleware.Logger.DebugContext(ctx, "tracking push failed", slog.String("error", err.Error()))
				}
			},
			OnError: func(err error) {
				middleware.Logger.WarnContext(ctx, "tracking poll failed", slog.String("error", err.Error()))
				_ = send(models.ErrorResponse{Error: "Tracking update failed", Code: models.CodeUpstream})
			},
		})
		defer tracker.Stop()

		// Tree changes anywhere trigger an early refresh.
		if sub, err := s.hub.Subscribe(userID); err != nil {
			middleware.Logger.WarnContext(ctx, "tracking feed without change events", slog.String("error", err.Error()))
		} else {
			defer s.hub.Unsubscribe(sub)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case _, ok := <-sub.Events():
						if !ok {
							return
						}
						if tracker.Tracking() {
							tracker.Refresh()
						}
					}
				}
			}()
		}

		middleware.Logger.InfoContext(ctx, "tracking feed connected")
		defer middleware.Logger.InfoContext(ctx, "tracking feed closed")

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var cmd trackingCommand
			if err := json.Unmarshal(msg, &cmd); err != nil {
				_ = send(models.ErrorResponse{Error: "Invalid message", Code: models.CodeValidation})
				continue
			}
			if cmd.Tracking && tracker.Tracking() {
				// Already on: the page's Retry asks for an immediate poll.
				tracker.Refresh()
				continue
			}
			tracker.SetTracking(ctx, cmd.Tracking)
		}
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return models.RespondWithError(c, fiber.StatusUpgradeRequired,
				models.NewValidationError("WebSocket upgrade required"))
		}
		return upgrade(c)
	}
}
