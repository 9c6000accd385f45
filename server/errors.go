package server

import (
	"errors"

	"skyweb/bluesky"
	"skyweb/composer"
	"skyweb/feeds"
	"skyweb/router"
	"skyweb/settings"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

var badRequest = []error{
	feeds.ErrWrongKind,
	feeds.ErrInvalidActor,
	settings.ErrInvalidTheme,
	composer.ErrEmptyPost,
	composer.ErrTooLong,
	composer.ErrInvalidReference,
	router.ErrNoHistory,
}

var notFound = []error{
	feeds.ErrUnknownFeed,
	bluesky.ErrNotFound,
	ErrUnknownSession,
}

func statusFor(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}

	switch {
	case errors.Is(err, bluesky.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, router.ErrSuperseded):
		return fiber.StatusConflict
	case isAny(err, notFound):
		return fiber.StatusNotFound
	case isAny(err, badRequest):
		return fiber.StatusBadRequest
	}
	return fiber.StatusInternalServerError
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errorHandler renders every handler error as {"error": "..."}
func errorHandler(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"error":  err,
		}).Error("Request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}
