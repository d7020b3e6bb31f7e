package httpapi

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/i474232898/weather-chat/internal/chat"
	"github.com/i474232898/weather-chat/internal/render"
	"github.com/i474232898/weather-chat/internal/store"
	"github.com/i474232898/weather-chat/internal/weather"
)

var validate = validator.New()

// Handler serves the chat API.
type Handler struct {
	orch     *chat.Orchestrator
	sessions *store.MemoryStore
	weather  chat.WeatherFetcher
	now      func() time.Time
}

func NewHandler(orch *chat.Orchestrator, sessions *store.MemoryStore, forecasts chat.WeatherFetcher) *Handler {
	return &Handler{
		orch:     orch,
		sessions: sessions,
		weather:  forecasts,
		now:      time.Now,
	}
}

// ErrorHandler renders every error as {"error": true, "message": ...}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "weather-chat",
			"sessions": h.sessions.Len(),
		})
	})

	v1 := app.Group("/api/v1")

	v1.Get("/backends", h.listBackends)
	v1.Get("/weather", h.getWeather)

	sessions := v1.Group("/sessions")
	sessions.Post("/", h.createSession)
	sessions.Get("/:id", h.getSession)
	sessions.Patch("/:id", h.updateSession)
	sessions.Delete("/:id", h.deleteSession)
	sessions.Get("/:id/history", h.getHistory)
	sessions.Post("/:id/messages", h.postMessage)
}

type backendView struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Streams     bool   `json:"streams"`
}

func (h *Handler) listBackends(c *fiber.Ctx) error {
	backends := h.orch.Backends()
	out := make([]backendView, 0, len(backends))
	for _, b := range backends {
		out = append(out, backendView{ID: b.ID, DisplayName: b.DisplayName, Streams: b.Streams()})
	}
	return c.JSON(fiber.Map{"backends": out})
}

// settingsRequest carries optional overrides; absent fields keep their value.
type settingsRequest struct {
	UseWeatherAPI *bool `json:"use_weather_api"`
	DualMode      *bool `json:"dual_mode"`
}

func (r settingsRequest) apply(s store.Settings) store.Settings {
	if r.UseWeatherAPI != nil {
		s.UseWeatherAPI = *r.UseWeatherAPI
	}
	if r.DualMode != nil {
		s.DualMode = *r.DualMode
	}
	return s
}

type sessionView struct {
	ID         string         `json:"id"`
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
	Settings   store.Settings `json:"settings"`
	Turns      int            `json:"turns"`
}

func viewSession(s *store.Session) sessionView {
	return sessionView{
		ID:         s.ID,
		CreatedAt:  s.CreatedAt,
		LastActive: s.LastActive(),
		Settings:   s.Settings(),
		Turns:      len(s.History()),
	}
}

func (h *Handler) createSession(c *fiber.Ctx) error {
	var req settingsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	sess := h.sessions.Create(req.apply(h.sessions.Defaults()))
	log.WithFields(log.Fields{"event": "session_created", "session": sess.ID}).Info("session created")

	return c.Status(fiber.StatusCreated).JSON(viewSession(sess))
}

func (h *Handler) lookup(c *fiber.Ctx) (*store.Session, error) {
	sess, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return nil, err
	}
	return sess, nil
}

func (h *Handler) getSession(c *fiber.Ctx) error {
	sess, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(viewSession(sess))
}

func (h *Handler) updateSession(c *fiber.Ctx) error {
	sess, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req settingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	sess.UpdateSettings(req.apply(sess.Settings()))

	return c.JSON(viewSession(sess))
}

func (h *Handler) deleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Delete(c.Params("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) getHistory(c *fiber.Ctx) error {
	sess, err := h.lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"session_id": sess.ID,
		"entries":    sess.History(),
	})
}

type messageRequest struct {
	Message string `json:"message" validate:"required,max=4000"`
}

func (h *Handler) postMessage(c *fiber.Ctx) error {
	sess, err := h.lookup(c)
	if err != nil {
		return err
	}

	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if !sess.TryBeginTurn() {
		return fiber.NewError(fiber.StatusConflict, "a message is already being processed for this session")
	}

	if !c.QueryBool("stream", true) {
		defer sess.EndTurn()

		sink := render.NewMemory()
		entry, err := h.orch.RunTurn(c.UserContext(), sess, req.Message, sink)
		if err != nil {
			return turnError(err)
		}
		return c.JSON(fiber.Map{
			"entry": entry,
			"slots": sink.Snapshot(),
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	message := req.Message
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sess.EndTurn()

		sse := render.NewSSE(w)
		if err := sse.Event("start", fiber.Map{"session_id": sess.ID}); err != nil {
			log.WithFields(log.Fields{"event": "client_gone", "session": sess.ID}).WithError(err).Info("stream closed before turn start")
			return
		}

		// The request context is recycled once the stream writer runs, so the
		// turn gets its own context, cancelled when the client goes away.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		entry, err := h.orch.RunTurn(ctx, sess, message, cancelOnError(sse, cancel))
		if err != nil {
			fe := turnError(err)
			payload := fiber.Map{"status": fe.Code, "message": fe.Message}
			var fetchErr *chat.WeatherFetchError
			if errors.As(err, &fetchErr) {
				payload["city"] = fetchErr.City
			}
			_ = sse.Event("error", payload)
			return
		}
		_ = sse.Event("done", entry)
	}))
	return nil
}

// cancelOnError cancels the turn on the first failed write, which means the
// client disconnected.
func cancelOnError(sink render.Sink, cancel context.CancelFunc) render.Sink {
	return render.Func(func(slot, text string) error {
		err := sink.Render(slot, text)
		if err != nil {
			cancel()
		}
		return err
	})
}

// turnError maps orchestrator failures onto HTTP statuses.
func turnError(err error) *fiber.Error {
	var fetchErr *chat.WeatherFetchError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.As(err, &fetchErr) && errors.Is(err, weather.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("Kota %q tidak ditemukan", fetchErr.City))
	case errors.As(err, &fetchErr):
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("Gagal mengambil data cuaca untuk %q", fetchErr.City))
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

type weatherQuery struct {
	City string `validate:"required"`
}

func (h *Handler) getWeather(c *fiber.Ctx) error {
	q := weatherQuery{City: c.Query("city")}
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	snapshot, err := h.weather.Fetch(c.UserContext(), q.City)
	if err != nil {
		switch {
		case errors.Is(err, weather.ErrInvalidCity):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, weather.ErrNotFound):
			return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
		case errors.Is(err, weather.ErrUnavailable):
			return fiber.NewError(fiber.StatusServiceUnavailable, "weather provider unavailable")
		default:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}
	}

	return c.JSON(fiber.Map{
		"snapshot":  snapshot,
		"formatted": weather.FormatSnapshot(snapshot, h.now()),
	})
}
