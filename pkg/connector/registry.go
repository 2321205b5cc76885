package connector

import (
	"sort"
	"sync"

	"github.com/subsetsio/market-connectors/pkg/errors"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Connector)
)

// Register adds a connector to the global registry. Connector packages call
// this from init; a duplicate name panics at startup.
func Register(c Connector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[c.Name()]; exists {
		panic("connector " + c.Name() + " already registered")
	}
	registry[c.Name()] = c
}

// Get looks up a connector by name.
func Get(name string) (Connector, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[name]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "connector %q not registered", name)
	}
	return c, nil
}

// List returns the registered connector names, sorted.
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
