package llm

import (
	"fmt"
	"sync"
)

// Factory builds a client handle for one family.
type Factory func(cfg ClientConfig) (Provider, error)

var (
	mu        sync.RWMutex
	factories = make(map[Family]Factory)
)

// Register installs a factory for a family. Adapters call this from init.
func Register(family Family, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[family]; exists {
		panic(fmt.Sprintf("llm: factory for family %q already registered", family))
	}
	factories[family] = f
}

// Get looks up the factory for a family.
func Get(family Family) (Factory, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := factories[family]
	if !ok {
		return nil, fmt.Errorf("llm: no factory registered for family %q", family)
	}
	return f, nil
}
