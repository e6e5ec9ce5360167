// Package di provides a small lazy service container shared by bounded-context modules.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves services by name.
type ServiceRegistry interface {
	Get(name string) any
	Has(name string) bool
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry
	Register(name string, service any)
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

type entry struct {
	once     sync.Once
	factory  func(ServiceRegistry) any
	instance any
}

type container struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{entries: make(map[string]*entry)}
}

// Register stores an already built service.
func (c *container) Register(name string, service any) {
	e := &entry{instance: service}
	e.once.Do(func() {})

	c.mu.Lock()
	c.entries[name] = e
	c.mu.Unlock()
}

// RegisterFactory stores a factory invoked once on first Get.
func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	c.entries[name] = &entry{factory: factory}
	c.mu.Unlock()
}

// Get resolves a service, building it on first use. Panics when name is unknown,
// matching the wiring-time failure mode of the module factories.
func (c *container) Get(name string) any {
	c.mu.RLock()
	e, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}

	e.once.Do(func() {
		e.instance = e.factory(c)
	})
	return e.instance
}

func (c *container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// Token is a typed handle to a named service.
type Token[T any] struct {
	name string
}

// NewToken declares a typed token.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

func (t Token[T]) Name() string { return t.name }

// RegisterToken registers a typed factory under the token's name.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.name, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves a typed service.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	return sr.Get(token.name).(T)
}
