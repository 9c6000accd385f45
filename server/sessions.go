package server

import (
	"context"
	"errors"
	"sync"

	"skyweb/models"
	"skyweb/notifications"
	"skyweb/router"
	"skyweb/views"

	log "github.com/sirupsen/logrus"
)

const DefaultSessionBuffer = 16

var ErrUnknownSession = errors.New("unknown session")

// Sessions keeps one router per connected client. Every session renders into
// its own container and receives its views on its hub channel.
type Sessions struct {
	sync.RWMutex
	hub     *notifications.Hub
	deps    views.Deps
	buffer  int
	routers map[string]*router.Router
}

func NewSessions(hub *notifications.Hub, deps views.Deps) *Sessions {
	return &Sessions{
		hub:     hub,
		deps:    deps,
		buffer:  DefaultSessionBuffer,
		routers: make(map[string]*router.Router),
	}
}

// Open registers a session and returns the channel its events arrive on
func (s *Sessions) Open(key string) <-chan models.Event {
	events := s.hub.Subscribe(key, s.buffer)

	r := views.Register(router.New(), s.deps).
		Mount(router.NewContainer(key)).
		RenderRoute(func(ctx context.Context, nav router.Navigation) error {
			s.render(key, nav)
			return nil
		})

	s.Lock()
	s.routers[key] = r
	s.Unlock()

	return events
}

// Close ends a session. Closing an unknown key does nothing.
func (s *Sessions) Close(key string) {
	s.Lock()
	delete(s.routers, key)
	s.Unlock()

	s.hub.Unsubscribe(key)
}

// Navigate loads path in the session's router
func (s *Sessions) Navigate(ctx context.Context, key string, path string) error {
	r, err := s.router(key)
	if err != nil {
		return err
	}
	return r.Load(ctx, path)
}

// Back renders the previous path of the session
func (s *Sessions) Back(ctx context.Context, key string) error {
	r, err := s.router(key)
	if err != nil {
		return err
	}
	return r.Back(ctx)
}

// History returns the paths rendered in a session
func (s *Sessions) History(key string) ([]string, error) {
	r, err := s.router(key)
	if err != nil {
		return nil, err
	}
	return r.History(), nil
}

func (s *Sessions) Count() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.routers)
}

func (s *Sessions) router(key string) (*router.Router, error) {
	s.RLock()
	defer s.RUnlock()

	r, ok := s.routers[key]
	if !ok {
		return nil, ErrUnknownSession
	}
	return r, nil
}

func (s *Sessions) render(key string, nav router.Navigation) {
	view, ok := nav.View.(views.View)
	if !ok {
		view = views.View{Model: nav.View}
	}
	nav.Container.SetContent(view)

	event := models.ViewEvent{
		Path:    nav.Path,
		Pattern: nav.Pattern,
		Name:    view.Name,
		Params:  nav.Params,
		Model:   view.Model,
	}
	if !s.hub.Send(key, event) {
		log.WithFields(log.Fields{
			"key":  key,
			"path": nav.Path,
		}).Warn("View was not delivered to session")
	}
}
