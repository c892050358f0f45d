// Package platform holds the contracts shared by creditdesk modules: the
// backing store, configuration access and the event bus. Modules depend on
// these interfaces rather than on the concrete implementations in internal/.
package platform

import (
	"context"
	"database/sql"
	"net/http"
	"time"
)

// Store is the persistent storage shared by all modules. Each module owns its
// tables and applies its own migrations under its module name.
type Store interface {
	DB() *sql.DB
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error
	Migrate(ctx context.Context, module string, migrations []Migration) error
	Close() error
}

// Migration is one forward-only schema step for a module.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Route is an HTTP route exposed by a module. Pattern uses the Go 1.22
// ServeMux syntax ("GET /api/v1/monitor/report").
type Route struct {
	Pattern string
	Handler http.Handler
}

// RouteRegistrar is implemented by anything that mounts routes on a mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Config abstracts configuration access. Wraps Viper today.
type Config interface {
	Unmarshal(target any) error
	Get(key string) any
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration
	IsSet(key string) bool
	Sub(key string) Config
}

// Publisher sends events to the bus.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	Subscribe(topic string, handler EventHandler) (unsubscribe func())
}

// EventBus composes Publisher and Subscriber with async and wildcard extensions.
type EventBus interface {
	Publisher
	Subscriber
	PublishAsync(ctx context.Context, event Event)
	SubscribeAll(handler EventHandler) (unsubscribe func())
}

// Event is a typed message on the event bus.
type Event struct {
	Topic     string
	Source    string // module that emitted the event
	Timestamp time.Time
	Payload   any // type depends on topic
}

// EventHandler processes events from the bus.
type EventHandler func(ctx context.Context, event Event)
