package world

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	SupportedSchemaVersion = 1
	SupportedCodecVersion  = 1
)

var (
	ErrAdapterExists   = errors.New("world adapter already registered")
	ErrAdapterNotFound = errors.New("world adapter not found")
	ErrVersionMismatch = errors.New("world adapter version mismatch")
)

type Factory func(config map[string]string) (World, error)

type AdapterSpec struct {
	Name          string
	Factory       Factory
	SchemaVersion int
	CodecVersion  int
}

type registeredAdapter struct {
	factory       Factory
	schemaVersion int
	codecVersion  int
}

var adapterRegistry = struct {
	mu sync.RWMutex
	m  map[string]registeredAdapter
}{
	m: make(map[string]registeredAdapter),
}

func init() {
	initializeDefaultAdapters()
}

func initializeDefaultAdapters() {
	MustRegisterAdapter(StaticWorldName, func(config map[string]string) (World, error) {
		return NewStaticFromConfig(config)
	})
}

func RegisterAdapter(name string, factory Factory) error {
	return RegisterAdapterWithSpec(AdapterSpec{
		Name:          name,
		Factory:       factory,
		SchemaVersion: SupportedSchemaVersion,
		CodecVersion:  SupportedCodecVersion,
	})
}

func MustRegisterAdapter(name string, factory Factory) {
	if err := RegisterAdapter(name, factory); err != nil {
		panic(err)
	}
}

func RegisterAdapterWithSpec(spec AdapterSpec) error {
	if spec.Name == "" {
		return errors.New("world adapter name is required")
	}
	if spec.Factory == nil {
		return errors.New("world adapter factory is required")
	}
	if spec.SchemaVersion != SupportedSchemaVersion || spec.CodecVersion != SupportedCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, spec.SchemaVersion, spec.CodecVersion)
	}

	adapterRegistry.mu.Lock()
	defer adapterRegistry.mu.Unlock()

	if _, exists := adapterRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAdapterExists, spec.Name)
	}
	adapterRegistry.m[spec.Name] = registeredAdapter{
		factory:       spec.Factory,
		schemaVersion: spec.SchemaVersion,
		codecVersion:  spec.CodecVersion,
	}
	return nil
}

// Resolve builds a world from the named adapter. Config is passed through
// to the factory unchanged.
func Resolve(name string, config map[string]string) (World, error) {
	lookup := strings.TrimSpace(name)

	adapterRegistry.mu.RLock()
	entry, ok := adapterRegistry.m[lookup]
	adapterRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAdapterNotFound, name)
	}
	if entry.schemaVersion != SupportedSchemaVersion || entry.codecVersion != SupportedCodecVersion {
		return nil, fmt.Errorf("%w: %s", ErrVersionMismatch, name)
	}
	if config == nil {
		config = map[string]string{}
	}
	return entry.factory(config)
}

func ListAdapters() []string {
	adapterRegistry.mu.RLock()
	defer adapterRegistry.mu.RUnlock()

	names := make([]string, 0, len(adapterRegistry.m))
	for name := range adapterRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetAdapterRegistryForTests() {
	adapterRegistry.mu.Lock()
	adapterRegistry.m = make(map[string]registeredAdapter)
	adapterRegistry.mu.Unlock()
	initializeDefaultAdapters()
}
