package nl2sql

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownStrategy = errors.New("unknown generation strategy")

type Registry struct {
	generators  map[string]Generator
	defaultName string
}

func NewRegistry(defaultName string, generators ...Generator) (*Registry, error) {
	registry := &Registry{generators: make(map[string]Generator, len(generators)), defaultName: defaultName}
	for _, generator := range generators {
		name := generator.Name()
		if _, exists := registry.generators[name]; exists {
			return nil, fmt.Errorf("duplicate generation strategy %q", name)
		}
		registry.generators[name] = generator
	}
	if _, ok := registry.generators[defaultName]; !ok {
		return nil, fmt.Errorf("default strategy %q: %w", defaultName, ErrUnknownStrategy)
	}
	return registry, nil
}

// Get returns the named generator, or the default one when name is empty.
func (r *Registry) Get(name string) (Generator, error) {
	if name == "" {
		name = r.defaultName
	}
	generator, ok := r.generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return generator, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
