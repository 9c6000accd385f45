package server

import (
	"bufio"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"skyweb/bluesky"
	"skyweb/composer"
	"skyweb/models"
	"skyweb/notifications"
	"skyweb/router"
	"skyweb/settings"
	"skyweb/views"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

//go:embed dist/*
var dist embed.FS

const DefaultPingInterval = 5 * time.Second

// PostComposer publishes drafts for the logged in account
type PostComposer interface {
	Publish(ctx context.Context, draft composer.Draft) (*models.PostRef, error)
}

// UnreadSource reports the last known unread notification count
type UnreadSource interface {
	Last() (int64, bool)
}

type ServerConfig struct {
	// Origins allowed to call the API from a browser. CORS is off when empty.
	AllowOrigins []string

	// Page dependencies, the feed API uses the same feed service
	Views views.Deps

	// Hub fans out events to SSE clients
	Hub *notifications.Hub

	// Sessions of connected clients, created from Hub and Views when nil
	Sessions *Sessions

	// Composer is nil when running without an account
	Composer PostComposer

	Unread UnreadSource

	PingInterval time.Duration
}

type navigateRequest struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

type routeResponse struct {
	Matched bool          `json:"matched"`
	Pattern string        `json:"pattern,omitempty"`
	Params  router.Params `json:"params"`
}

type initEvent struct {
	Key      string           `json:"key"`
	Identity *models.Identity `json:"identity,omitempty"`
}

// Returns a fiber.App serving the client shell, the API and the event stream
func Server(config *ServerConfig) *fiber.App {
	hub := config.Hub
	if hub == nil {
		hub = notifications.NewHub()
	}
	sessions := config.Sessions
	if sessions == nil {
		sessions = NewSessions(hub, config.Views)
	}
	pingInterval := config.PingInterval
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	currentUser := func() *models.Identity {
		if config.Views.CurrentUser == nil {
			return nil
		}
		return config.Views.CurrentUser()
	}
	// Shared router used for matching only, sessions render with their own
	matcher := views.Register(router.New(), config.Views)
	feedService := config.Views.Feeds

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"latency": time.Since(start),
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())

	if len(config.AllowOrigins) > 0 {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(config.AllowOrigins, ","),
			AllowHeaders:     "Cache-Control, Content-Type",
			AllowCredentials: true,
		}))
	}

	// Only feed pages are cached
	app.Use(cache.New(cache.Config{
		Next: func(c *fiber.Ctx) bool {
			if c.Method() != fiber.MethodGet {
				return true
			}
			return !strings.HasPrefix(c.Path(), "/api/feeds/")
		},
		Expiration: 30 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			// Include the query parameters in the cache key
			return c.Request().URI().String()
		},
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	api.Get("/feeds", func(c *fiber.Ctx) error {
		return c.JSON(feedService.Feeds().Sorted())
	})

	api.Get("/feeds/following", func(c *fiber.Ctx) error {
		page, err := feedService.Following(c.UserContext(), c.Query("cursor"), c.QueryInt("limit"))
		if err != nil {
			return err
		}
		return c.JSON(page)
	})

	api.Get("/feeds/:id", func(c *fiber.Ctx) error {
		page, err := feedService.Algorithmic(c.UserContext(), c.Params("id"), c.Query("cursor"), c.QueryInt("limit"))
		if err != nil {
			return err
		}
		return c.JSON(page)
	})

	api.Get("/authors/:actor/feed", func(c *fiber.Ctx) error {
		page, err := feedService.Author(c.UserContext(), c.Params("actor"), c.Query("filter"), c.Query("cursor"), c.QueryInt("limit"))
		if err != nil {
			return err
		}
		return c.JSON(page)
	})

	api.Get("/route", func(c *fiber.Ctx) error {
		path := c.Query("path")
		if path == "" {
			return fiber.NewError(fiber.StatusBadRequest, "path is required")
		}
		match := matcher.Match(path)
		return c.JSON(routeResponse{
			Matched: match.Matched,
			Pattern: match.Pattern,
			Params:  match.Params,
		})
	})

	api.Post("/navigate", func(c *fiber.Ctx) error {
		var req navigateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid navigate request")
		}
		if req.Path == "" {
			req.Path = views.HomePath
		}
		if err := sessions.Navigate(c.UserContext(), req.Key, req.Path); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	api.Post("/back", func(c *fiber.Ctx) error {
		var req navigateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid back request")
		}
		if err := sessions.Back(c.UserContext(), req.Key); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	api.Get("/settings/theme", func(c *fiber.Ctx) error {
		return c.JSON(config.Views.Settings.Theme())
	})

	api.Put("/settings/theme", func(c *fiber.Ctx) error {
		var theme settings.Theme
		if err := c.BodyParser(&theme); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid theme")
		}
		if err := config.Views.Settings.SetTheme(c.UserContext(), theme); err != nil {
			return err
		}
		hub.Publish(settings.ThemeChangedEvent{Theme: theme})
		return c.JSON(theme)
	})

	api.Post("/posts", func(c *fiber.Ctx) error {
		if currentUser() == nil || config.Composer == nil {
			return bluesky.ErrNotAuthenticated
		}
		var draft composer.Draft
		if err := c.BodyParser(&draft); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid post")
		}
		ref, err := config.Composer.Publish(c.UserContext(), draft)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(ref)
	})

	api.Delete("/events", func(c *fiber.Ctx) error {
		sessions.Close(c.Query("key"))
		return c.Status(fiber.StatusOK).SendString("OK")
	})

	api.Get("/events", func(c *fiber.Ctx) error {
		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		// Unique client key
		key := uuid.New().String()
		events := sessions.Open(key)

		c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
			ping := time.NewTicker(pingInterval)
			defer ping.Stop()
			defer func() {
				log.Infof("Cleaning up SSE stream for client: %s", key)
				sessions.Close(key)
			}()

			if err := writeEvent(w, "init", initEvent{Key: key, Identity: currentUser()}); err != nil {
				log.Errorf("Failed to send init event: %v", err)
				return
			}
			if config.Unread != nil {
				if count, ok := config.Unread.Last(); ok {
					event := models.UnreadCountEvent{Count: count}
					if err := writeEvent(w, event.EventName(), event); err != nil {
						return
					}
				}
			}

			for {
				select {
				case <-ping.C:
					if err := writeEvent(w, "ping", nil); err != nil {
						log.Warnf("Failed to send ping to client %s: %v", key, err)
						return
					}

				case event, ok := <-events:
					if !ok {
						log.Debugf("Event channel closed for client %s", key)
						return
					}
					if err := writeEvent(w, event.EventName(), event); err != nil {
						log.Warnf("Failed to send %s event to client %s: %v", event.EventName(), key, err)
						return
					}
				}
			}
		}))

		return nil
	})

	// Serve the client shell, unknown paths get index.html so deep links load
	app.Use("/", filesystem.New(filesystem.Config{
		Browse:       false,
		Index:        "index.html",
		Root:         http.FS(dist),
		PathPrefix:   "/dist",
		NotFoundFile: "dist/index.html",
	}))

	return app
}

// writeEvent writes one SSE frame and flushes it. A nil payload sends an
// empty data line.
func writeEvent(w *bufio.Writer, name string, payload any) error {
	data := []byte{}
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("error marshalling %s event: %w", name, err)
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	return w.Flush()
}
