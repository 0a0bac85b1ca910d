package protocols

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]func() Protocol)
)

// Register adds a protocol factory to the registry.
// Called by protocol implementations in their init() functions.
func Register(name string, factory func() Protocol) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("protocols: %s registered twice", name))
	}
	registry[name] = factory
}

// Get returns a new instance of the named protocol.
func Get(name string) (Protocol, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, &UnknownProtocolError{Name: name, Available: List()}
	}
	return factory(), nil
}

// List returns all registered protocol names (sorted).
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a protocol name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownProtocolError is returned when an unknown protocol is requested.
type UnknownProtocolError struct {
	Name      string
	Available []string
}

func (e *UnknownProtocolError) Error() string {
	return fmt.Sprintf("unknown protocol %q\nAvailable protocols: %v\nHint: run `wellplan protocols` to describe them", e.Name, e.Available)
}
