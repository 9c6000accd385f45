package models

// Event is anything pushed to connected clients. EventName is used as the SSE
// event field.
type Event interface {
	EventName() string
}

// UnreadCountEvent fired when the unread notification count changes
type UnreadCountEvent struct {
	Count int64 `json:"count"`
}

func (UnreadCountEvent) EventName() string { return "unread-count" }

// NewPostsEvent fired when followed accounts published posts since the last flush
type NewPostsEvent struct {
	Count   int      `json:"count"`
	Authors []string `json:"authors"`
}

func (NewPostsEvent) EventName() string { return "new-posts" }

// ViewEvent carries a rendered page to the session that navigated to it
type ViewEvent struct {
	Path    string            `json:"path"`
	Pattern string            `json:"pattern"`
	Name    string            `json:"name"`
	Params  map[string]string `json:"params"`
	Model   any               `json:"model"`
}

func (ViewEvent) EventName() string { return "view" }
