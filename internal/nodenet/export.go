package nodenet

import (
	"fmt"
	"sort"

	"github.com/joschabach/micropsi2-sub002/internal/model"
)

// Export returns the persistent form of the whole net. Slices are ordered
// by uid so equal nets export equal records.
func (n *Net) Export() model.NetRecord {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.exportLocked()
}

func (n *Net) exportLocked() model.NetRecord {
	record := model.NetRecord{
		VersionedRecord: model.CurrentVersion(),
		UID:             n.uid,
		Name:            n.name,
		Step:            n.currentStep,
		WorldAdapter:    n.worldAdapter,
		Nodespaces:      make([]model.NodespaceRecord, 0, len(n.nodespaces)),
		Nodes:           make([]model.NodeRecord, 0, len(n.nodes)),
		Links:           make([]model.LinkRecord, 0, len(n.links)),
		Status:          n.status.Snapshot(),
	}
	if len(n.worldConfig) > 0 {
		record.WorldConfig = copyStrings(n.worldConfig)
	}
	if len(n.modulators) > 0 {
		record.Modulators = copyFloats(n.modulators)
	}

	nsUIDs := make([]string, 0, len(n.nodespaces))
	for uid := range n.nodespaces {
		nsUIDs = append(nsUIDs, uid)
	}
	sort.Strings(nsUIDs)
	for _, uid := range nsUIDs {
		ns := n.nodespaces[uid]
		record.Nodespaces = append(record.Nodespaces, model.NodespaceRecord{UID: ns.uid, Name: ns.name, Parent: ns.parent})
	}

	for _, uid := range n.sortedNodeUIDs() {
		nd := n.nodes[uid]
		nr := model.NodeRecord{
			UID:       nd.uid,
			Name:      nd.name,
			Type:      nd.typeName,
			Nodespace: nd.nodespace,
		}
		if len(nd.params) > 0 {
			nr.Parameters = copyStrings(nd.params)
		}
		if len(nd.gates) > 0 {
			nr.Gates = make(map[string]model.GateRecord, len(nd.gates))
			for gate, value := range nd.gates {
				cfg := nd.gateConfig[gate]
				nr.Gates[gate] = model.GateRecord{
					Activation:    value,
					Threshold:     model.Float(cfg.Threshold),
					Amplification: model.Float(cfg.Amplification),
					Min:           model.Float(cfg.Min),
					Max:           model.Float(cfg.Max),
					Spreading:     string(cfg.Spreading),
				}
			}
		}
		if len(nd.slots) > 0 {
			nr.Slots = copyFloats(nd.slots)
		}
		if len(nd.state) > 0 {
			nr.State = copyFloats(nd.state)
		}
		record.Nodes = append(record.Nodes, nr)
	}

	for _, key := range n.sortedLinks() {
		l := n.links[key]
		record.Links = append(record.Links, model.LinkRecord{
			SourceNode: l.SourceNode,
			SourceGate: l.SourceGate,
			TargetNode: l.TargetNode,
			TargetSlot: l.TargetSlot,
			Weight:     l.Weight,
			Certainty:  l.Certainty,
		})
	}

	for _, uid := range n.sortedMonitorUIDs() {
		m := n.monitors[uid]
		mr := model.MonitorRecord{
			UID:      m.uid,
			Name:     m.name,
			Color:    m.color,
			Kind:     string(m.kind),
			NodeUID:  m.nodeUID,
			Target:   m.target,
			Property: m.property,
		}
		if m.kind == MonitorLink {
			mr.SourceNode = m.link.sourceNode
			mr.SourceGate = m.link.sourceGate
			mr.TargetNode = m.link.targetNode
			mr.TargetSlot = m.link.targetSlot
		}
		if len(m.values) > 0 {
			mr.Values = make(map[int]float64, len(m.values))
			for step, v := range m.values {
				mr.Values[step] = v
			}
		}
		record.Monitors = append(record.Monitors, mr)
	}
	return record
}

// Import builds a net from a record. Options fill in what the record does
// not carry (world, registry, workers, logging); a non-empty opts.UID or
// opts.Name overrides the record's. Custom monitors are skipped since their
// evaluators are code.
func Import(record model.NetRecord, opts Options) (*Net, error) {
	if opts.UID == "" {
		opts.UID = record.UID
	}
	if opts.Name == "" {
		opts.Name = record.Name
	}
	if opts.WorldAdapter == "" {
		opts.WorldAdapter = record.WorldAdapter
		if opts.WorldConfig == nil {
			opts.WorldConfig = record.WorldConfig
		}
	}
	n := New(opts)
	n.currentStep = record.Step

	if err := n.importNodespaces(record.Nodespaces); err != nil {
		return nil, err
	}
	for _, nr := range record.Nodes {
		if err := n.importNode(nr); err != nil {
			return nil, err
		}
	}
	for _, lr := range record.Links {
		l := Link{
			SourceNode: lr.SourceNode,
			SourceGate: lr.SourceGate,
			TargetNode: lr.TargetNode,
			TargetSlot: lr.TargetSlot,
			Weight:     lr.Weight,
			Certainty:  lr.Certainty,
		}
		if err := n.checkLink(l); err != nil {
			return nil, fmt.Errorf("import link %s:%s -> %s:%s: %w", lr.SourceNode, lr.SourceGate, lr.TargetNode, lr.TargetSlot, err)
		}
		n.putLinkLocked(l)
	}
	for name, v := range record.Modulators {
		if !finite(v) {
			return nil, fmt.Errorf("%w: modulator %s must be finite", ErrInvalidConfiguration, name)
		}
		n.modulators[name] = v
	}
	for _, mr := range record.Monitors {
		if err := n.importMonitor(mr); err != nil {
			return nil, err
		}
	}
	if len(record.Status) > 0 {
		n.status.Restore(record.Status)
	}
	return n, nil
}

func (n *Net) importNodespaces(records []model.NodespaceRecord) error {
	for _, nr := range records {
		if nr.UID == RootNodespace {
			if nr.Name != "" {
				n.nodespaces[RootNodespace].name = nr.Name
			}
			continue
		}
		if nr.UID == "" {
			return fmt.Errorf("%w: nodespace without uid", ErrInvalidConfiguration)
		}
		if _, exists := n.nodespaces[nr.UID]; exists {
			return fmt.Errorf("%w: duplicate nodespace %s", ErrInvalidConfiguration, nr.UID)
		}
		parent := nr.Parent
		if parent == "" {
			parent = RootNodespace
		}
		n.nodespaces[nr.UID] = &nodespace{uid: nr.UID, name: nr.Name, parent: parent}
	}
	// Every chain of parents must end at the root.
	for uid := range n.nodespaces {
		current := uid
		for hops := 0; current != RootNodespace; hops++ {
			ns, ok := n.nodespaces[current]
			if !ok {
				return fmt.Errorf("%w: nodespace %s has unknown parent %s", ErrNotFound, uid, current)
			}
			if hops > len(n.nodespaces) {
				return fmt.Errorf("%w: nodespace %s is part of a cycle", ErrInvalidConfiguration, uid)
			}
			current = ns.parent
		}
	}
	return nil
}

func (n *Net) importNode(nr model.NodeRecord) error {
	if nr.UID == "" {
		return fmt.Errorf("%w: node without uid", ErrInvalidConfiguration)
	}
	if err := n.createNodeLocked(nr.UID, nr.Type, nr.Nodespace, nr.Name); err != nil {
		return fmt.Errorf("import node %s: %w", nr.UID, err)
	}
	nd := n.nodes[nr.UID]
	for k, v := range nr.Parameters {
		nd.params[k] = v
	}
	for gate, gr := range nr.Gates {
		if _, ok := nd.gates[gate]; !ok {
			return fmt.Errorf("%w: node %s has no gate %s", ErrInvalidConfiguration, nr.UID, gate)
		}
		cfg := nd.gateConfig[gate]
		if gr.Threshold != nil {
			cfg.Threshold = *gr.Threshold
		}
		if gr.Amplification != nil {
			cfg.Amplification = *gr.Amplification
		}
		if gr.Min != nil {
			cfg.Min = *gr.Min
		}
		if gr.Max != nil {
			cfg.Max = *gr.Max
		}
		if gr.Spreading != "" {
			cfg.Spreading = Spreading(gr.Spreading)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("import node %s gate %s: %w", nr.UID, gate, err)
		}
		if !finite(gr.Activation) {
			return fmt.Errorf("%w: node %s gate %s activation must be finite", ErrInvalidConfiguration, nr.UID, gate)
		}
		nd.gates[gate] = gr.Activation
		nd.gateConfig[gate] = cfg
	}
	for slot, v := range nr.Slots {
		if _, ok := nd.slots[slot]; !ok {
			return fmt.Errorf("%w: node %s has no slot %s", ErrInvalidConfiguration, nr.UID, slot)
		}
		nd.slots[slot] = v
	}
	for k, v := range nr.State {
		nd.state[k] = v
	}
	return nil
}

func (n *Net) importMonitor(mr model.MonitorRecord) error {
	kind := MonitorKind(mr.Kind)
	if kind == MonitorCustom {
		n.log.Warn("custom monitor skipped on import", "monitor", mr.UID)
		return nil
	}
	m := &monitor{
		uid:      mr.UID,
		name:     mr.Name,
		color:    mr.Color,
		kind:     kind,
		nodeUID:  mr.NodeUID,
		target:   mr.Target,
		property: mr.Property,
		values:   make(map[int]float64, len(mr.Values)),
	}
	if kind == MonitorLink {
		m.link = linkKey{sourceNode: mr.SourceNode, sourceGate: mr.SourceGate, targetNode: mr.TargetNode, targetSlot: mr.TargetSlot}
	}
	if m.uid == "" {
		return fmt.Errorf("%w: monitor without uid", ErrInvalidConfiguration)
	}
	if err := n.checkMonitorTarget(m); err != nil {
		return fmt.Errorf("import monitor %s: %w", mr.UID, err)
	}
	for step, v := range mr.Values {
		m.values[step] = v
	}
	n.monitors[m.uid] = m
	return nil
}
