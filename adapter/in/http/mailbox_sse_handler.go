package http

import (
	"bufio"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"smart_mailbox/adapter/out/realtime"
)

// SSEHandler streams batch progress as Server-Sent Events.
type SSEHandler struct {
	hub *realtime.Hub
	log zerolog.Logger
}

func NewSSEHandler(hub *realtime.Hub, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		hub: hub,
		log: log.With().Str("handler", "sse").Logger(),
	}
}

func (h *SSEHandler) Register(r fiber.Router) {
	r.Get("/events", h.Stream)
	r.Get("/events/status", h.Status)
}

// Stream sends progress for every batch, or for ?batch=<id> only. A stream
// bound to one batch ends after that batch's done event.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	batchID := c.Query("batch")
	client := h.hub.Subscribe(batchID)

	h.log.Info().Str("batch_id", batchID).Msg("SSE client connected")

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no") // Nginx buffering 비활성화

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(client.HeartbeatInterval())
		defer ticker.Stop()
		defer func() {
			client.Close()
			h.log.Info().Str("batch_id", batchID).Msg("SSE client disconnected")
		}()

		w.WriteString("event: connected\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case event, ok := <-client.Events:
				if !ok {
					return
				}
				data, err := realtime.SerializeEvent(event)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize event")
					continue
				}

				w.WriteString("event: ")
				w.WriteString(event.Type)
				w.WriteString("\n")
				w.WriteString("data: ")
				w.Write(data)
				w.WriteString("\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

				if batchID != "" && event.Type == realtime.EventBatchDone {
					return
				}

			case <-ticker.C:
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}

			case <-client.Done:
				return
			}
		}
	})
	return nil
}

// Status returns hub delivery counters.
func (h *SSEHandler) Status(c *fiber.Ctx) error {
	return SuccessResponse(c, h.hub.Metrics())
}
