package entity

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages all declared persisted types in the application
type Registry struct {
	classes map[string]*Class
	mu      sync.RWMutex
}

// NewRegistry creates a new class registry
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*Class),
	}
}

// Register registers a persisted type
func (r *Registry) Register(class *Class) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if class.Name == "" {
		return fmt.Errorf("class name cannot be empty")
	}
	if _, exists := r.classes[class.Name]; exists {
		return fmt.Errorf("class %s is already registered", class.Name)
	}

	r.classes[class.Name] = class
	return nil
}

// Get retrieves a class by its internal name
func (r *Registry) Get(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	class, exists := r.classes[name]
	return class, exists
}

// All returns a copy of all registered classes
func (r *Registry) All() map[string]*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*Class, len(r.classes))
	for k, v := range r.classes {
		result[k] = v
	}
	return result
}

// List returns the names of all registered classes, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Count returns the number of registered classes
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.classes)
}

// Clear removes all registered classes (useful for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.classes = make(map[string]*Class)
}
