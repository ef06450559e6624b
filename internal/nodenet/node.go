package nodenet

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type node struct {
	uid        string
	name       string
	nodespace  string
	typeName   string
	slots      map[string]float64
	gates      map[string]float64
	gateConfig map[string]GateConfig
	params     map[string]string
	state      map[string]float64
}

func newNode(uid, name, nodespace string, t *NodeType) *node {
	nd := &node{
		uid:        uid,
		name:       name,
		nodespace:  nodespace,
		typeName:   t.Name,
		slots:      make(map[string]float64, len(t.Slots)),
		gates:      make(map[string]float64, len(t.Gates)),
		gateConfig: make(map[string]GateConfig, len(t.Gates)),
		params:     make(map[string]string, len(t.Parameters)),
		state:      make(map[string]float64),
	}
	for _, slot := range t.Slots {
		nd.slots[slot] = 0
	}
	for _, gate := range t.Gates {
		nd.gates[gate] = 0
		nd.gateConfig[gate] = t.gateDefault(gate)
	}
	for k, v := range t.Parameters {
		nd.params[k] = v
	}
	return nd
}

// reconcile brings the gate and slot sets in line with a replaced type.
// Values of surviving gates and slots are kept.
func (nd *node) reconcile(t *NodeType) {
	slots := make(map[string]float64, len(t.Slots))
	for _, slot := range t.Slots {
		slots[slot] = nd.slots[slot]
	}
	gates := make(map[string]float64, len(t.Gates))
	configs := make(map[string]GateConfig, len(t.Gates))
	for _, gate := range t.Gates {
		gates[gate] = nd.gates[gate]
		if cfg, ok := nd.gateConfig[gate]; ok {
			configs[gate] = cfg
		} else {
			configs[gate] = t.gateDefault(gate)
		}
	}
	for k, v := range t.Parameters {
		if _, ok := nd.params[k]; !ok {
			nd.params[k] = v
		}
	}
	nd.slots = slots
	nd.gates = gates
	nd.gateConfig = configs
}

// NodeInfo is a read-only snapshot of one node.
type NodeInfo struct {
	UID         string
	Name        string
	Nodespace   string
	Type        string
	Slots       map[string]float64
	Gates       map[string]float64
	GateConfigs map[string]GateConfig
	Parameters  map[string]string
	State       map[string]float64
}

func (i NodeInfo) Gate(name string) float64 { return i.Gates[name] }
func (i NodeInfo) Slot(name string) float64 { return i.Slots[name] }

func (nd *node) info() NodeInfo {
	return NodeInfo{
		UID:         nd.uid,
		Name:        nd.name,
		Nodespace:   nd.nodespace,
		Type:        nd.typeName,
		Slots:       copyFloats(nd.slots),
		Gates:       copyFloats(nd.gates),
		GateConfigs: copyConfigs(nd.gateConfig),
		Parameters:  copyStrings(nd.params),
		State:       copyFloats(nd.state),
	}
}

// CreateNode adds a node of the named type to nodespace ("" means the root
// nodespace) and returns its uid. Like every mutator it returns
// ErrReentrancyViolation while a step runs; callers racing a running net
// retry after the step.
func (n *Net) CreateNode(typeName, nodespace, name string) (string, error) {
	if err := n.lock(); err != nil {
		return "", err
	}
	defer n.mu.Unlock()

	uid := uuid.NewString()
	if err := n.createNodeLocked(uid, typeName, nodespace, name); err != nil {
		return "", err
	}
	n.log.Debug("node created", "node", uid, "type", typeName, "nodespace", n.nodes[uid].nodespace)
	return uid, nil
}

func (n *Net) createNodeLocked(uid, typeName, nodespace, name string) error {
	if nodespace == "" {
		nodespace = RootNodespace
	}
	if _, ok := n.nodespaces[nodespace]; !ok {
		return fmt.Errorf("%w: nodespace %s", ErrNotFound, nodespace)
	}
	if _, exists := n.nodes[uid]; exists {
		return fmt.Errorf("%w: duplicate node uid %s", ErrInvalidConfiguration, uid)
	}
	t, err := n.types.lookup(typeName)
	if err != nil {
		return err
	}
	n.nodes[uid] = newNode(uid, name, nodespace, t)
	return nil
}

func (n *Net) GetNode(uid string) (NodeInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	nd, _, err := n.resolveNode(uid)
	if err != nil {
		return NodeInfo{}, err
	}
	return nd.info(), nil
}

// GetNodes lists the nodes of one nodespace, or of the whole net when
// nodespace is empty, ordered by uid.
func (n *Net) GetNodes(nodespace string) ([]NodeInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if nodespace != "" {
		if _, ok := n.nodespaces[nodespace]; !ok {
			return nil, fmt.Errorf("%w: nodespace %s", ErrNotFound, nodespace)
		}
	}
	out := make([]NodeInfo, 0)
	for _, uid := range n.sortedNodeUIDs() {
		nd, _, err := n.resolveNode(uid)
		if err != nil {
			continue
		}
		if nodespace != "" && nd.nodespace != nodespace {
			continue
		}
		out = append(out, nd.info())
	}
	return out, nil
}

// DeleteNode removes the node together with every link touching it and every
// monitor observing it. It fails with ErrReentrancyViolation during a step.
func (n *Net) DeleteNode(uid string) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	if _, ok := n.nodes[uid]; !ok {
		return fmt.Errorf("%w: node %s", ErrNotFound, uid)
	}
	n.deleteNodeLocked(uid)
	n.log.Debug("node deleted", "node", uid)
	return nil
}

func (n *Net) deleteNodeLocked(uid string) {
	for key := range n.links {
		if key.sourceNode == uid || key.targetNode == uid {
			n.deleteLinkLocked(key)
		}
	}
	for muid, m := range n.monitors {
		if m.nodeUID == uid || m.link.sourceNode == uid || m.link.targetNode == uid {
			delete(n.monitors, muid)
		}
	}
	delete(n.nodes, uid)
}

func (n *Net) SetNodeParameter(uid, name, value string) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	nd, _, err := n.resolveNode(uid)
	if err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty parameter name", ErrInvalidConfiguration)
	}
	nd.params[name] = value
	return nil
}

func (n *Net) SetGateConfig(uid, gate string, cfg GateConfig) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	nd, t, err := n.resolveNode(uid)
	if err != nil {
		return err
	}
	if !t.HasGate(gate) {
		return fmt.Errorf("%w: node type %s has no gate %s", ErrInvalidConfiguration, t.Name, gate)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	nd.gateConfig[gate] = cfg
	return nil
}

// SetGateActivation seeds the committed value of a gate. It is read by the
// targets of the gate's links in the next step. During a running step it
// fails with ErrReentrancyViolation and must be retried.
func (n *Net) SetGateActivation(uid, gate string, value float64) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	nd, t, err := n.resolveNode(uid)
	if err != nil {
		return err
	}
	if !t.HasGate(gate) {
		return fmt.Errorf("%w: node type %s has no gate %s", ErrInvalidConfiguration, t.Name, gate)
	}
	if !finite(value) {
		return fmt.Errorf("%w: gate activation must be finite", ErrInvalidConfiguration)
	}
	nd.gates[gate] = value
	return nil
}

func (n *Net) GateActivation(uid, gate string) (float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	nd, _, err := n.resolveNode(uid)
	if err != nil {
		return 0, err
	}
	v, ok := nd.gates[gate]
	if !ok {
		return 0, fmt.Errorf("%w: node %s has no gate %s", ErrInvalidConfiguration, uid, gate)
	}
	return v, nil
}

func (n *Net) SlotActivation(uid, slot string) (float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	nd, _, err := n.resolveNode(uid)
	if err != nil {
		return 0, err
	}
	v, ok := nd.slots[slot]
	if !ok {
		return 0, fmt.Errorf("%w: node %s has no slot %s", ErrInvalidConfiguration, uid, slot)
	}
	return v, nil
}

// resolveNode finds a node whose nodespace and type still resolve.
func (n *Net) resolveNode(uid string) (*node, *NodeType, error) {
	nd, ok := n.nodes[uid]
	if !ok {
		return nil, nil, fmt.Errorf("%w: node %s", ErrNotFound, uid)
	}
	if _, ok := n.nodespaces[nd.nodespace]; !ok {
		return nil, nil, fmt.Errorf("%w: nodespace %s of node %s", ErrNotFound, nd.nodespace, uid)
	}
	t, err := n.types.lookup(nd.typeName)
	if err != nil {
		return nil, nil, fmt.Errorf("node %s: %w", uid, err)
	}
	return nd, t, nil
}

func (n *Net) sortedNodeUIDs() []string {
	uids := make([]string, 0, len(n.nodes))
	for uid := range n.nodes {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}

func copyFloats(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyStrings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyConfigs(in map[string]GateConfig) map[string]GateConfig {
	out := make(map[string]GateConfig, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
