package manager

// Lifecycle event names.
const (
	EventLoadStart     = "load_start"
	EventLoadReady     = "load_ready"
	EventLoadError     = "load_error"
	EventModelNotFound = "model_not_found"
	EventUnloadDone    = "unload_done"
)

// Event is one model lifecycle transition. Model is the display name when
// known; Fields carries size, path, duration or error text.
type Event struct {
	Name   string
	Model  string
	Fields map[string]any
}

// EventPublisher is called synchronously with the manager's state already
// updated. Publish must not block or panic.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}
