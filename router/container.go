package router

import "sync"

// Container is a node in the view tree the router renders into. The router is
// mounted on one container and renders each navigation into a fresh outlet
// child of it.
type Container struct {
	name   string
	parent *Container

	mu      sync.RWMutex
	outlet  *Container
	content any
}

// NewContainer creates a root container
func NewContainer(name string) *Container {
	return &Container{name: name}
}

func (c *Container) Name() string {
	return c.name
}

// Parent returns nil for a root container
func (c *Container) Parent() *Container {
	return c.parent
}

// Outlet returns the child holding the current view, if any
func (c *Container) Outlet() *Container {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outlet
}

// Contains reports whether other is a descendant of c
func (c *Container) Contains(other *Container) bool {
	if other == nil {
		return false
	}
	for p := other.parent; p != nil; p = p.parent {
		if p == c {
			return true
		}
	}
	return false
}

// SetContent stores what was rendered into the container
func (c *Container) SetContent(content any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.content = content
}

func (c *Container) Content() any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.content
}

// replaceOutlet discards the current outlet and returns a new empty one
func (c *Container) replaceOutlet() *Container {
	outlet := &Container{name: c.name + "/outlet", parent: c}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.outlet = outlet
	return outlet
}
