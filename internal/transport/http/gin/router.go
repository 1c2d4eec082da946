package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nganya/nganya-web/internal/domain"
	redisx "github.com/nganya/nganya-web/internal/redis"
	redisrepo "github.com/nganya/nganya-web/internal/repository/redis"
	"github.com/nganya/nganya-web/internal/service/flow"
	"github.com/nganya/nganya-web/internal/session"
	"github.com/nganya/nganya-web/internal/upstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const sessionCookie = "nganya_session"

// EventsAPI is the read/create slice of the backend the router proxies.
type EventsAPI interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id string) (*domain.Event, error)
	CreateEvent(ctx context.Context, event domain.Event) (*domain.Event, error)
}

func NewRouter(
	api EventsAPI,
	sessions *session.Store,
	cache *redisrepo.Cache,
	limiter *redisrepo.SlidingWindowLimiter,
	idem *redisrepo.IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health + metrics
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Event proxy
	r.GET("/api/events", handleListEvents(api, cache))
	r.GET("/api/events/:id", handleGetEvent(api, cache))
	r.POST("/api/events", handleCreateEvent(api, cache))

	// Booking flow, one session per browser
	r.POST("/api/flow", handleOpenSession(sessions))
	r.GET("/api/flow", handleFlowState(sessions))
	r.DELETE("/api/flow", handleCloseSession(sessions))
	r.POST("/api/flow/event", handleFlowLoadEvent(sessions))
	r.POST("/api/flow/ticket", handleFlowSelectTicket(sessions))
	r.POST("/api/flow/buyer", handleFlowBuyer(sessions))
	r.POST("/api/flow/submit", handleFlowSubmit(sessions, limiter, idem))

	return r
}

// --- Event handlers ---

// @Summary  List events
// @Success  200  {array}  domain.Event
// @Failure  503  {object}  ErrorResponse
// @Router   /api/events [get]
func handleListEvents(api EventsAPI, cache *redisrepo.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		events, err := redisrepo.GetOrSetJSON(
			ctx,
			cache,
			redisx.KeyEventsList(),
			15*time.Second,
			func(ctx context.Context) ([]domain.Event, error) {
				return api.ListEvents(ctx)
			},
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, events, "public, max-age=15", true)
	}
}

// @Summary  Get event
// @Param    id  path  string  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /api/events/{id} [get]
func handleGetEvent(api EventsAPI, cache *redisrepo.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		event, err := redisrepo.GetOrSetJSON(
			ctx,
			cache,
			redisx.KeyEvent(id),
			15*time.Second,
			func(ctx context.Context) (domain.Event, error) {
				e, err := api.GetEvent(ctx, id)
				if err != nil {
					return domain.Event{}, err
				}
				return *e, nil
			},
		)
		if err != nil {
			respondErr(c, err)
			return
		}

		writeJSONWithCache(c, http.StatusOK, event, "public, max-age=15", true)
	}
}

// @Summary  Create event
// @Param    req body  domain.Event true "event"
// @Success  201  {object}  domain.Event
// @Router   /api/events [post]
func handleCreateEvent(api EventsAPI, cache *redisrepo.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var event domain.Event
		if err := c.ShouldBindJSON(&event); err != nil {
			badRequest(c, err.Error())
			return
		}

		created, err := api.CreateEvent(c.Request.Context(), event)
		if err != nil {
			respondErr(c, err)
			return
		}

		if cache != nil {
			_ = cache.Del(c.Request.Context(), redisx.KeyEventsList())
		}

		c.JSON(http.StatusCreated, created)
	}
}

// --- Flow handlers ---

// @Summary  Open a booking session
// @Success  201  {object}  OpenSessionResponse
// @Router   /api/flow [post]
func handleOpenSession(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := sessions.Open()

		c.SetCookie(sessionCookie, id, 0, "/", "", false, true)
		c.JSON(http.StatusCreated, OpenSessionResponse{SessionID: id})
	}
}

// @Summary  Session state snapshot
// @Success  200  {object}  flow.Snapshot
// @Failure  404  {object}  ErrorResponse
// @Router   /api/flow [get]
func handleFlowState(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFrom(c, sessions)
		if !ok {
			return
		}

		c.JSON(http.StatusOK, sess.State())
	}
}

// @Summary  Close the booking session
// @Success  204
// @Router   /api/flow [delete]
func handleCloseSession(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := sessionID(c); id != "" {
			sessions.Close(id)
		}

		c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Load an event into the session
// @Param    req body  LoadEventRequest true "payload"
// @Success  200  {object}  domain.Event
// @Router   /api/flow/event [post]
func handleFlowLoadEvent(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFrom(c, sessions)
		if !ok {
			return
		}

		var req LoadEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		event, err := sess.LoadEvent(c.Request.Context(), req.EventID)
		if err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, event)
	}
}

// @Summary  Select a ticket tier
// @Param    req body  SelectTicketRequest true "payload"
// @Success  200  {object}  flow.Snapshot
// @Failure  409  {object}  ErrorResponse  "sold out"
// @Router   /api/flow/ticket [post]
func handleFlowSelectTicket(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFrom(c, sessions)
		if !ok {
			return
		}

		var req SelectTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		if err := sess.SelectTicket(req.TicketID); err != nil {
			respondErr(c, err)
			return
		}

		c.JSON(http.StatusOK, sess.State())
	}
}

// @Summary  Set buyer name and phone
// @Param    req body  BuyerRequest true "payload"
// @Success  200  {object}  flow.Snapshot
// @Router   /api/flow/buyer [post]
func handleFlowBuyer(sessions *session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := sessionFrom(c, sessions)
		if !ok {
			return
		}

		var req BuyerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		sess.SetBuyer(req.Name, req.Phone)

		c.JSON(http.StatusOK, sess.State())
	}
}

// @Summary  Submit the booking (idempotent)
// @Header   200 {string} Idempotency-Key "echo"
// @Success  200  {object}  flow.SubmitResult
// @Failure  409  {object}  ErrorResponse  "precondition failed / in progress"
// @Failure  429  {object}  ErrorResponse  "rate limited"
// @Failure  503  {object}  ErrorResponse  "backend unavailable"
// @Router   /api/flow/submit [post]
func handleFlowSubmit(
	sessions *session.Store,
	limiter *redisrepo.SlidingWindowLimiter,
	idem *redisrepo.IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid := sessionID(c)

		sess, ok := sessionFrom(c, sessions)
		if !ok {
			return
		}

		if limiter != nil {
			allowed, _, retry, err := limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP())
			if err != nil {
				respondErr(c, err)
				return
			}
			if !allowed {
				c.Header("Retry-After", retry.Round(time.Second).String())
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemSubmit(sid, idemKey)

			if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
				return
			}

			locked, err := idem.AcquireLock(c.Request.Context(), idemStorageKey, 60*time.Second)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				if payload, ok, _ := idem.GetResult(c.Request.Context(), idemStorageKey); ok {
					c.Header("Idempotency-Key", idemKey)
					c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(payload))
					return
				}
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			}
		}

		result, err := sess.Submit(c.Request.Context())
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(result)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusOK, result)
	}
}

// --- Helpers ---

func sessionID(c *gin.Context) string {
	if v := c.GetHeader("X-Session-ID"); v != "" {
		return v
	}

	v, err := c.Cookie(sessionCookie)
	if err != nil {
		return ""
	}

	return v
}

func sessionFrom(c *gin.Context, sessions *session.Store) (*flow.Session, bool) {
	id := sessionID(c)
	if id == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no session"})
		return nil, false
	}

	sess, ok := sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return nil, false
	}

	return sess, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// flow preconditions
	case errors.Is(err, flow.ErrNoEvent):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no event loaded"})
		return
	case errors.Is(err, flow.ErrNoTicketSelected):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "no ticket selected"})
		return
	case errors.Is(err, flow.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
		return
	case errors.Is(err, flow.ErrSoldOut):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "ticket is sold out"})
		return
	case errors.Is(err, flow.ErrMissingBuyer):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name and phone are required"})
		return
	case errors.Is(err, flow.ErrBusy):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "submission in progress"})
		return
	// backend
	case errors.Is(err, upstream.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}

	var se *upstream.StatusError
	if errors.As(err, &se) {
		// pass the backend's own verdict through
		c.JSON(se.Code, ErrorResponse{Error: se.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}
