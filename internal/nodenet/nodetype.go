package nodenet

import (
	"fmt"
	"sort"
	"sync"
)

// NodeFunc computes one node's gate activations for the step described by a.
// It must only touch the frame it is given.
type NodeFunc func(a *Activation) error

// NodeType is a closed capability record. Once registered it is never
// mutated; Replace swaps the whole record.
type NodeType struct {
	Name  string
	Slots []string
	Gates []string
	// Parameters declares the parameter names a node of this type carries,
	// with their default values.
	Parameters   map[string]string
	GateDefaults map[string]GateConfig
	// Modulated gates are scaled by the activators of their nodespace.
	Modulated bool
	Func      NodeFunc
}

func (t *NodeType) HasGate(name string) bool {
	return contains(t.Gates, name)
}

func (t *NodeType) HasSlot(name string) bool {
	return contains(t.Slots, name)
}

func (t *NodeType) gateDefault(gate string) GateConfig {
	if cfg, ok := t.GateDefaults[gate]; ok {
		return cfg
	}
	return DefaultGateConfig()
}

func (t NodeType) validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: node type name is required", ErrInvalidConfiguration)
	}
	if t.Func == nil {
		return fmt.Errorf("%w: node type %s has no function", ErrInvalidConfiguration, t.Name)
	}
	if dup := firstDuplicate(t.Slots); dup != "" {
		return fmt.Errorf("%w: node type %s declares slot %s twice", ErrInvalidConfiguration, t.Name, dup)
	}
	if dup := firstDuplicate(t.Gates); dup != "" {
		return fmt.Errorf("%w: node type %s declares gate %s twice", ErrInvalidConfiguration, t.Name, dup)
	}
	for gate, cfg := range t.GateDefaults {
		if !contains(t.Gates, gate) {
			return fmt.Errorf("%w: node type %s has defaults for unknown gate %s", ErrInvalidConfiguration, t.Name, gate)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("node type %s gate %s: %w", t.Name, gate, err)
		}
	}
	return nil
}

func (t NodeType) clone() *NodeType {
	out := t
	out.Slots = append([]string(nil), t.Slots...)
	out.Gates = append([]string(nil), t.Gates...)
	if t.Parameters != nil {
		out.Parameters = make(map[string]string, len(t.Parameters))
		for k, v := range t.Parameters {
			out.Parameters[k] = v
		}
	}
	if t.GateDefaults != nil {
		out.GateDefaults = make(map[string]GateConfig, len(t.GateDefaults))
		for k, v := range t.GateDefaults {
			out.GateDefaults[k] = v
		}
	}
	return &out
}

// Registry holds the node types known to a net. Each net owns its registry,
// so replacing a type in one net never affects another.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*NodeType
}

// NewRegistry returns a registry holding the built-in node types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]*NodeType)}
	for _, t := range builtinNodeTypes() {
		r.types[t.Name] = t.clone()
	}
	return r
}

func (r *Registry) Register(t NodeType) error {
	if err := t.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		return fmt.Errorf("%w: node type already registered: %s", ErrInvalidConfiguration, t.Name)
	}
	r.types[t.Name] = t.clone()
	return nil
}

// Replace atomically swaps an existing type record.
func (r *Registry) Replace(t NodeType) error {
	if err := t.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; !exists {
		return fmt.Errorf("%w: node type %s", ErrNotFound, t.Name)
	}
	r.types[t.Name] = t.clone()
	return nil
}

func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; !exists {
		return fmt.Errorf("%w: node type %s", ErrNotFound, name)
	}
	delete(r.types, name)
	return nil
}

// Get returns a copy of the named type.
func (r *Registry) Get(name string) (NodeType, error) {
	t, err := r.lookup(name)
	if err != nil {
		return NodeType{}, err
	}
	return *t.clone(), nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent registry holding the same records.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &Registry{types: make(map[string]*NodeType, len(r.types))}
	for name, t := range r.types {
		out.types[name] = t
	}
	return out
}

func (r *Registry) lookup(name string) (*NodeType, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: node type %s", ErrNotFound, name)
	}
	return t, nil
}

// snapshot pins the records used for one step.
func (r *Registry) snapshot() map[string]*NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*NodeType, len(r.types))
	for name, t := range r.types {
		out[name] = t
	}
	return out
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

func firstDuplicate(values []string) string {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			return v
		}
		seen[v] = struct{}{}
	}
	return ""
}
