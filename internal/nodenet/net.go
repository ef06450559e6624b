// Package nodenet implements the node net: typed nodes carrying
// multi-channel activation, weighted links between their gates and slots,
// and the discrete step engine that propagates activation through them.
//
// A Net is safe for concurrent use. Reads wait for a running step; mutations
// do not wait and fail with ErrReentrancyViolation while a step is being
// evaluated. Callers that mutate a net another goroutine is stepping must
// retry once the step has finished.
package nodenet

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
	"github.com/joschabach/micropsi2-sub002/internal/world"
)

type Options struct {
	UID          string
	Name         string
	World        world.World
	WorldAdapter string
	WorldConfig  map[string]string
	// Registry defaults to a fresh registry of built-in types.
	Registry *Registry
	// Workers > 1 evaluates nodes on that many goroutines.
	Workers int
	// ValidateSurWeights rejects steps where the positive sur->sur weights
	// into a pipe sum to more than 1.
	ValidateSurWeights bool
	StatusLog          *statuslog.Logger
	Logger             *slog.Logger
}

type Net struct {
	mu       sync.RWMutex
	stepping atomic.Bool

	uid          string
	name         string
	world        world.World
	worldAdapter string
	worldConfig  map[string]string
	types        *Registry
	workers      int
	validateSur  bool

	currentStep int
	nodespaces  map[string]*nodespace
	nodes       map[string]*node
	links       map[linkKey]*Link
	linkOrder   []linkKey
	modulators  map[string]float64
	monitors    map[string]*monitor

	status *statuslog.Logger
	log    *slog.Logger
}

func New(opts Options) *Net {
	uid := opts.UID
	if uid == "" {
		uid = uuid.NewString()
	}
	registry := opts.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	status := opts.StatusLog
	if status == nil {
		status = statuslog.New(logger)
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	n := &Net{
		uid:          uid,
		name:         opts.Name,
		world:        opts.World,
		worldAdapter: opts.WorldAdapter,
		worldConfig:  copyStrings(opts.WorldConfig),
		types:        registry,
		workers:      workers,
		validateSur:  opts.ValidateSurWeights,
		nodespaces:   map[string]*nodespace{RootNodespace: {uid: RootNodespace, name: RootNodespace}},
		nodes:        make(map[string]*node),
		links:        make(map[linkKey]*Link),
		modulators:   make(map[string]float64),
		monitors:     make(map[string]*monitor),
		status:       status,
		log:          logger.With("component", "nodenet", "net", uid),
	}
	return n
}

// lock takes the write lock unless a step is being evaluated. Mutators
// never queue behind a step.
func (n *Net) lock() error {
	if n.stepping.Load() {
		return fmt.Errorf("%w: net %s is evaluating a step", ErrReentrancyViolation, n.uid)
	}
	n.mu.Lock()
	return nil
}

func (n *Net) UID() string { return n.uid }

func (n *Net) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

func (n *Net) SetName(name string) error {
	if err := n.lock(); err != nil {
		return err
	}
	n.name = name
	n.mu.Unlock()
	return nil
}

func (n *Net) CurrentStep() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.currentStep
}

func (n *Net) World() world.World { return n.world }

func (n *Net) WorldAdapter() (string, map[string]string) {
	return n.worldAdapter, copyStrings(n.worldConfig)
}

func (n *Net) Registry() *Registry { return n.types }

func (n *Net) StatusLog() *statuslog.Logger { return n.status }

func (n *Net) Workers() int { return n.workers }

func (n *Net) SetModulator(name string, value float64) error {
	if name == "" {
		return fmt.Errorf("%w: empty modulator name", ErrInvalidConfiguration)
	}
	if !finite(value) {
		return fmt.Errorf("%w: modulator %s must be finite", ErrInvalidConfiguration, name)
	}
	if err := n.lock(); err != nil {
		return err
	}
	n.modulators[name] = value
	n.mu.Unlock()
	return nil
}

func (n *Net) Modulator(name string) float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.modulators[name]
}

func (n *Net) Modulators() map[string]float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyFloats(n.modulators)
}

func (n *Net) NodeTypes() []string {
	return n.types.Names()
}

// RegisterNodeType adds a type to this net's registry. It fails with
// ErrReentrancyViolation while a step runs.
func (n *Net) RegisterNodeType(t NodeType) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	return n.types.Register(t)
}

// ReplaceNodeType swaps the type record and reconciles existing instances:
// gates and slots the new record drops are removed along with their links
// and monitors, new ones start at 0 with default configs.
func (n *Net) ReplaceNodeType(t NodeType) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	if err := n.types.Replace(t); err != nil {
		return err
	}
	record, err := n.types.lookup(t.Name)
	if err != nil {
		return err
	}

	for _, nd := range n.nodes {
		if nd.typeName != t.Name {
			continue
		}
		nd.reconcile(record)
	}
	for key := range n.links {
		if !n.linkEndpointsValid(key) {
			n.deleteLinkLocked(key)
		}
	}
	for uid, m := range n.monitors {
		if !n.monitorTargetValid(m) {
			delete(n.monitors, uid)
		}
	}
	n.log.Info("node type replaced", "type", t.Name)
	return nil
}

// UnregisterNodeType removes the type and every node instance of it.
func (n *Net) UnregisterNodeType(name string) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	if err := n.types.Unregister(name); err != nil {
		return err
	}
	removed := 0
	for uid, nd := range n.nodes {
		if nd.typeName == name {
			n.deleteNodeLocked(uid)
			removed++
		}
	}
	n.log.Info("node type unregistered", "type", name, "removed_nodes", removed)
	return nil
}

func (n *Net) linkEndpointsValid(key linkKey) bool {
	src, ok := n.nodes[key.sourceNode]
	if !ok {
		return false
	}
	dst, ok := n.nodes[key.targetNode]
	if !ok {
		return false
	}
	_, hasGate := src.gates[key.sourceGate]
	_, hasSlot := dst.slots[key.targetSlot]
	return hasGate && hasSlot
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
