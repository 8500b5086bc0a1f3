package orm

import (
	"sync"

	"gorm.io/gorm"
)

// Lifecycle events a listener can subscribe to
const (
	PrePersist        = "prePersist"
	PostPersist       = "postPersist"
	PreUpdate         = "preUpdate"
	PostUpdate        = "postUpdate"
	OnFlush           = "onFlush"
	LoadClassMetadata = "loadClassMetadata"
)

// Listener is a GORM plugin that reacts to entity lifecycle events
type Listener interface {
	gorm.Plugin
	SubscribedEvents() []string
}

// EventManager collects listeners until an entity manager installs them
type EventManager struct {
	mu        sync.RWMutex
	listeners []Listener
}

// NewEventManager returns an empty event manager
func NewEventManager() *EventManager {
	return &EventManager{}
}

// AddEventSubscriber registers a listener
func (e *EventManager) AddEventSubscriber(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// Listeners returns the registered listeners in registration order
func (e *EventManager) Listeners() []Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Listener(nil), e.listeners...)
}

// ListenersFor returns the listeners subscribed to event
func (e *EventManager) ListenersFor(event string) []Listener {
	var out []Listener
	for _, l := range e.Listeners() {
		for _, ev := range l.SubscribedEvents() {
			if ev == event {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// HasListeners reports whether any listener subscribes to event
func (e *EventManager) HasListeners(event string) bool {
	return len(e.ListenersFor(event)) > 0
}

// Count returns the number of registered listeners
func (e *EventManager) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// install registers every listener as a plugin of db
func (e *EventManager) install(db *gorm.DB) error {
	for _, l := range e.Listeners() {
		if err := db.Use(l); err != nil {
			return err
		}
	}
	return nil
}
