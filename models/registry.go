package models

import (
	"fmt"
	"sort"
	"sync"
)

// DuplicateModelTypeError indicates a second registration for the same type.
type DuplicateModelTypeError struct {
	ModelType string
}

func (e *DuplicateModelTypeError) Error() string {
	return fmt.Sprintf("models: model type %q is already registered", e.ModelType)
}

// UnknownModelTypeError indicates a lookup for an unregistered type.
type UnknownModelTypeError struct {
	ModelType string
	Known     []string
}

func (e *UnknownModelTypeError) Error() string {
	return fmt.Sprintf("models: unknown model type %q (known: %v)", e.ModelType, e.Known)
}

// Registry maps model type identifiers to adapters. It is populated at
// process start and read-only afterwards; reads take the lock only so that
// tests registering late stay race-free.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter keyed by its ModelType. Registering the same type
// twice fails with *DuplicateModelTypeError.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	modelType := adapter.ModelType()
	if _, exists := r.adapters[modelType]; exists {
		return &DuplicateModelTypeError{ModelType: modelType}
	}
	r.adapters[modelType] = adapter
	return nil
}

// Get returns the adapter for modelType, failing with
// *UnknownModelTypeError when absent.
func (r *Registry) Get(modelType string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[modelType]
	if !ok {
		return nil, &UnknownModelTypeError{ModelType: modelType, Known: r.listLocked()}
	}
	return adapter, nil
}

// List returns the registered model types in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []string {
	types := make([]string, 0, len(r.adapters))
	for t := range r.adapters {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
