package nodenet

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type MonitorKind string

const (
	MonitorGate      MonitorKind = "gate"
	MonitorSlot      MonitorKind = "slot"
	MonitorLink      MonitorKind = "link"
	MonitorModulator MonitorKind = "modulator"
	MonitorCustom    MonitorKind = "custom"
)

const (
	LinkPropertyWeight    = "weight"
	LinkPropertyCertainty = "certainty"
)

var monitorPalette = []string{"#1f77b4", "#ff7f0e", "#2ca02c", "#d62728", "#9467bd", "#8c564b", "#e377c2", "#7f7f7f"}

// View is the read-only access a custom monitor gets after each step.
type View interface {
	CurrentStep() int
	GateActivation(nodeUID, gate string) (float64, bool)
	SlotActivation(nodeUID, slot string) (float64, bool)
	Modulator(name string) float64
}

// Evaluator computes a custom monitor value. Returning false records no
// value for the step.
type Evaluator func(v View) (float64, bool)

type MonitorOptions struct {
	Name  string
	Color string
}

type MonitorInfo struct {
	UID      string
	Name     string
	Color    string
	Kind     MonitorKind
	NodeUID  string
	Target   string
	Link     Link
	Property string
	Values   map[int]float64
}

// Steps returns the recorded steps in ascending order.
func (i MonitorInfo) Steps() []int {
	steps := make([]int, 0, len(i.Values))
	for step := range i.Values {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps
}

type monitor struct {
	uid       string
	name      string
	color     string
	kind      MonitorKind
	nodeUID   string
	target    string
	link      linkKey
	property  string
	evaluator Evaluator
	values    map[int]float64
}

func (m *monitor) info(from, count, current int) MonitorInfo {
	out := MonitorInfo{
		UID:      m.uid,
		Name:     m.name,
		Color:    m.color,
		Kind:     m.kind,
		NodeUID:  m.nodeUID,
		Target:   m.target,
		Property: m.property,
		Values:   make(map[int]float64),
	}
	if m.kind == MonitorLink {
		out.Link = Link{SourceNode: m.link.sourceNode, SourceGate: m.link.sourceGate, TargetNode: m.link.targetNode, TargetSlot: m.link.targetSlot}
	}
	lo, hi := window(from, count, current)
	for step, v := range m.values {
		if step >= lo && step <= hi {
			out.Values[step] = v
		}
	}
	return out
}

// window resolves a (from, count) request to the inclusive step range
// [max(from, 0), min(from+count-1, current)]; count < 0 means up to current.
func window(from, count, current int) (int, int) {
	if from < 0 {
		from = 0
	}
	hi := current
	if count >= 0 {
		if end := from + count - 1; end < hi {
			hi = end
		}
	}
	return from, hi
}

func (n *Net) AddGateMonitor(nodeUID, gate string, opts MonitorOptions) (string, error) {
	return n.addMonitor(&monitor{kind: MonitorGate, nodeUID: nodeUID, target: gate}, opts)
}

func (n *Net) AddSlotMonitor(nodeUID, slot string, opts MonitorOptions) (string, error) {
	return n.addMonitor(&monitor{kind: MonitorSlot, nodeUID: nodeUID, target: slot}, opts)
}

// AddLinkMonitor observes the weight or certainty of an existing link.
func (n *Net) AddLinkMonitor(sourceNode, sourceGate, targetNode, targetSlot, property string, opts MonitorOptions) (string, error) {
	if property == "" {
		property = LinkPropertyWeight
	}
	return n.addMonitor(&monitor{
		kind:     MonitorLink,
		link:     linkKey{sourceNode: sourceNode, sourceGate: sourceGate, targetNode: targetNode, targetSlot: targetSlot},
		property: property,
	}, opts)
}

func (n *Net) AddModulatorMonitor(name string, opts MonitorOptions) (string, error) {
	return n.addMonitor(&monitor{kind: MonitorModulator, target: name}, opts)
}

func (n *Net) AddCustomMonitor(eval Evaluator, opts MonitorOptions) (string, error) {
	if eval == nil {
		return "", fmt.Errorf("%w: custom monitor needs an evaluator", ErrInvalidConfiguration)
	}
	return n.addMonitor(&monitor{kind: MonitorCustom, evaluator: eval}, opts)
}

func (n *Net) addMonitor(m *monitor, opts MonitorOptions) (string, error) {
	if err := n.lock(); err != nil {
		return "", err
	}
	defer n.mu.Unlock()
	if err := n.checkMonitorTarget(m); err != nil {
		return "", err
	}
	if m.uid == "" {
		m.uid = uuid.NewString()
	}
	m.name = opts.Name
	if m.name == "" {
		m.name = n.defaultMonitorName(m)
	}
	m.color = opts.Color
	if m.color == "" {
		m.color = monitorPalette[len(n.monitors)%len(monitorPalette)]
	}
	if m.values == nil {
		m.values = make(map[int]float64)
	}
	n.monitors[m.uid] = m
	n.sampleLocked(m)
	return m.uid, nil
}

func (n *Net) checkMonitorTarget(m *monitor) error {
	switch m.kind {
	case MonitorGate, MonitorSlot:
		_, t, err := n.resolveNode(m.nodeUID)
		if err != nil {
			return err
		}
		if m.kind == MonitorGate && !t.HasGate(m.target) {
			return fmt.Errorf("%w: node type %s has no gate %s", ErrInvalidConfiguration, t.Name, m.target)
		}
		if m.kind == MonitorSlot && !t.HasSlot(m.target) {
			return fmt.Errorf("%w: node type %s has no slot %s", ErrInvalidConfiguration, t.Name, m.target)
		}
	case MonitorLink:
		if _, ok := n.links[m.link]; !ok {
			return fmt.Errorf("%w: link %s:%s -> %s:%s", ErrNotFound, m.link.sourceNode, m.link.sourceGate, m.link.targetNode, m.link.targetSlot)
		}
		if m.property != LinkPropertyWeight && m.property != LinkPropertyCertainty {
			return fmt.Errorf("%w: unknown link property %q", ErrInvalidConfiguration, m.property)
		}
	case MonitorModulator:
		if m.target == "" {
			return fmt.Errorf("%w: empty modulator name", ErrInvalidConfiguration)
		}
	case MonitorCustom:
	default:
		return fmt.Errorf("%w: unknown monitor kind %q", ErrInvalidConfiguration, m.kind)
	}
	return nil
}

func (n *Net) monitorTargetValid(m *monitor) bool {
	return n.checkMonitorTarget(m) == nil
}

func (n *Net) defaultMonitorName(m *monitor) string {
	label := func(uid string) string {
		if nd, ok := n.nodes[uid]; ok && nd.name != "" {
			return nd.name
		}
		return uid
	}
	switch m.kind {
	case MonitorGate, MonitorSlot:
		return fmt.Sprintf("%s %s @ %s", m.kind, m.target, label(m.nodeUID))
	case MonitorLink:
		return fmt.Sprintf("%s %s:%s -> %s:%s", m.property, label(m.link.sourceNode), m.link.sourceGate, label(m.link.targetNode), m.link.targetSlot)
	case MonitorModulator:
		return "modulator " + m.target
	default:
		return "custom " + m.uid
	}
}

// ClearMonitor drops every recorded value but keeps the monitor.
func (n *Net) ClearMonitor(uid string) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	m, ok := n.monitors[uid]
	if !ok {
		return fmt.Errorf("%w: monitor %s", ErrNotFound, uid)
	}
	m.values = make(map[int]float64)
	return nil
}

func (n *Net) RemoveMonitor(uid string) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	if _, ok := n.monitors[uid]; !ok {
		return fmt.Errorf("%w: monitor %s", ErrNotFound, uid)
	}
	delete(n.monitors, uid)
	return nil
}

// GetMonitor returns the monitor with all of its values.
func (n *Net) GetMonitor(uid string) (MonitorInfo, error) {
	return n.GetMonitorData(uid, 0, -1)
}

// GetMonitorData returns the monitor with the values recorded in the
// window [max(from, 0), current step], truncated to count steps unless
// count is negative.
func (n *Net) GetMonitorData(uid string, from, count int) (MonitorInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	m, ok := n.monitors[uid]
	if !ok {
		return MonitorInfo{}, fmt.Errorf("%w: monitor %s", ErrNotFound, uid)
	}
	return m.info(from, count, n.currentStep), nil
}

// Monitors lists every monitor with all values, ordered by uid.
func (n *Net) Monitors() []MonitorInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]MonitorInfo, 0, len(n.monitors))
	for _, uid := range n.sortedMonitorUIDs() {
		out = append(out, n.monitors[uid].info(0, -1, n.currentStep))
	}
	return out
}

// ExportMonitorData windows every monitor like GetMonitorData.
func (n *Net) ExportMonitorData(from, count int) map[string]MonitorInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]MonitorInfo, len(n.monitors))
	for uid, m := range n.monitors {
		out[uid] = m.info(from, count, n.currentStep)
	}
	return out
}

func (n *Net) sortedMonitorUIDs() []string {
	uids := make([]string, 0, len(n.monitors))
	for uid := range n.monitors {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

func (n *Net) sampleMonitorsLocked() {
	for _, uid := range n.sortedMonitorUIDs() {
		n.sampleLocked(n.monitors[uid])
	}
}

func (n *Net) sampleLocked(m *monitor) {
	value, ok := n.readMonitor(m)
	if ok && finite(value) {
		m.values[n.currentStep] = value
	}
}

func (n *Net) readMonitor(m *monitor) (float64, bool) {
	switch m.kind {
	case MonitorGate:
		return netView{n}.GateActivation(m.nodeUID, m.target)
	case MonitorSlot:
		return netView{n}.SlotActivation(m.nodeUID, m.target)
	case MonitorLink:
		l, ok := n.links[m.link]
		if !ok {
			return 0, false
		}
		if m.property == LinkPropertyCertainty {
			return l.Certainty, true
		}
		return l.Weight, true
	case MonitorModulator:
		return n.modulators[m.target], true
	case MonitorCustom:
		return evaluateCustom(m.evaluator, netView{n})
	}
	return 0, false
}

func evaluateCustom(eval Evaluator, v View) (value float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			value, ok = 0, false
		}
	}()
	return eval(v)
}

// netView reads the net without locking; it is only handed out while the
// caller holds the lock.
type netView struct {
	n *Net
}

func (v netView) CurrentStep() int { return v.n.currentStep }

func (v netView) GateActivation(nodeUID, gate string) (float64, bool) {
	nd, ok := v.n.nodes[nodeUID]
	if !ok {
		return 0, false
	}
	value, ok := nd.gates[gate]
	return value, ok
}

func (v netView) SlotActivation(nodeUID, slot string) (float64, bool) {
	nd, ok := v.n.nodes[nodeUID]
	if !ok {
		return 0, false
	}
	value, ok := nd.slots[slot]
	return value, ok
}

func (v netView) Modulator(name string) float64 { return v.n.modulators[name] }
