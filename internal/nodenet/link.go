package nodenet

import (
	"fmt"
	"sort"
)

type Link struct {
	SourceNode string
	SourceGate string
	TargetNode string
	TargetSlot string
	Weight     float64
	Certainty  float64
}

// Relations accepted by LinkWithReciprocal.
const (
	RelationSubSur = "subsur"
	RelationPorRet = "porret"
	RelationCatExp = "catexp"
)

var reciprocalGates = map[string][2]string{
	RelationSubSur: {ChannelSub, ChannelSur},
	RelationPorRet: {ChannelPor, ChannelRet},
	RelationCatExp: {ChannelCat, ChannelExp},
}

type linkKey struct {
	sourceNode string
	sourceGate string
	targetNode string
	targetSlot string
}

func (l Link) key() linkKey {
	return linkKey{sourceNode: l.SourceNode, sourceGate: l.SourceGate, targetNode: l.TargetNode, targetSlot: l.TargetSlot}
}

func (k linkKey) less(o linkKey) bool {
	if k.sourceNode != o.sourceNode {
		return k.sourceNode < o.sourceNode
	}
	if k.sourceGate != o.sourceGate {
		return k.sourceGate < o.sourceGate
	}
	if k.targetNode != o.targetNode {
		return k.targetNode < o.targetNode
	}
	return k.targetSlot < o.targetSlot
}

// Link creates or updates the link with certainty 1.
func (n *Net) Link(sourceNode, sourceGate, targetNode, targetSlot string, weight float64) error {
	return n.LinkWithCertainty(sourceNode, sourceGate, targetNode, targetSlot, weight, 1)
}

// LinkWithCertainty upserts a link. There is at most one link per
// (source node, gate, target node, slot); linking again updates weight and
// certainty in place. During a running step it fails with
// ErrReentrancyViolation and must be retried.
func (n *Net) LinkWithCertainty(sourceNode, sourceGate, targetNode, targetSlot string, weight, certainty float64) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	l := Link{
		SourceNode: sourceNode,
		SourceGate: sourceGate,
		TargetNode: targetNode,
		TargetSlot: targetSlot,
		Weight:     weight,
		Certainty:  certainty,
	}
	if err := n.checkLink(l); err != nil {
		return err
	}
	n.putLinkLocked(l)
	return nil
}

// LinkWithReciprocal links a to b along the forward gate of relation and b
// back to a along its reciprocal, both with weight 1. subsur links a.sub to
// b.sub and b.sur to a.sur; porret and catexp follow the same shape.
func (n *Net) LinkWithReciprocal(a, b, relation string) error {
	gates, ok := reciprocalGates[relation]
	if !ok {
		return fmt.Errorf("%w: unknown link relation %q", ErrInvalidConfiguration, relation)
	}
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	forward := Link{SourceNode: a, SourceGate: gates[0], TargetNode: b, TargetSlot: gates[0], Weight: 1, Certainty: 1}
	backward := Link{SourceNode: b, SourceGate: gates[1], TargetNode: a, TargetSlot: gates[1], Weight: 1, Certainty: 1}
	if err := n.checkLink(forward); err != nil {
		return err
	}
	if err := n.checkLink(backward); err != nil {
		return err
	}
	n.putLinkLocked(forward)
	n.putLinkLocked(backward)
	return nil
}

func (n *Net) Unlink(sourceNode, sourceGate, targetNode, targetSlot string) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	key := linkKey{sourceNode: sourceNode, sourceGate: sourceGate, targetNode: targetNode, targetSlot: targetSlot}
	if _, ok := n.links[key]; !ok {
		return fmt.Errorf("%w: link %s:%s -> %s:%s", ErrNotFound, sourceNode, sourceGate, targetNode, targetSlot)
	}
	n.deleteLinkLocked(key)
	for uid, m := range n.monitors {
		if m.kind == MonitorLink && m.link == key {
			delete(n.monitors, uid)
		}
	}
	return nil
}

func (n *Net) GetLink(sourceNode, sourceGate, targetNode, targetSlot string) (Link, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	l, ok := n.links[linkKey{sourceNode: sourceNode, sourceGate: sourceGate, targetNode: targetNode, targetSlot: targetSlot}]
	if !ok {
		return Link{}, fmt.Errorf("%w: link %s:%s -> %s:%s", ErrNotFound, sourceNode, sourceGate, targetNode, targetSlot)
	}
	return *l, nil
}

// Links returns every link in deterministic order.
func (n *Net) Links() []Link {
	n.mu.RLock()
	defer n.mu.RUnlock()
	order := n.sortedLinks()
	out := make([]Link, 0, len(order))
	for _, key := range order {
		out = append(out, *n.links[key])
	}
	return out
}

// GetLinksForNodes returns each link touching any of the given nodes once.
func (n *Net) GetLinksForNodes(uids ...string) ([]Link, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	set := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		if _, ok := n.nodes[uid]; !ok {
			return nil, fmt.Errorf("%w: node %s", ErrNotFound, uid)
		}
		set[uid] = struct{}{}
	}
	out := make([]Link, 0)
	for _, key := range n.sortedLinks() {
		_, src := set[key.sourceNode]
		_, dst := set[key.targetNode]
		if src || dst {
			out = append(out, *n.links[key])
		}
	}
	return out, nil
}

func (n *Net) checkLink(l Link) error {
	src, srcType, err := n.resolveNode(l.SourceNode)
	if err != nil {
		return err
	}
	_, dstType, err := n.resolveNode(l.TargetNode)
	if err != nil {
		return err
	}
	if !srcType.HasGate(l.SourceGate) {
		return fmt.Errorf("%w: node type %s has no gate %s", ErrInvalidConfiguration, src.typeName, l.SourceGate)
	}
	if !dstType.HasSlot(l.TargetSlot) {
		return fmt.Errorf("%w: node type %s has no slot %s", ErrInvalidConfiguration, dstType.Name, l.TargetSlot)
	}
	if !finite(l.Weight) || !finite(l.Certainty) {
		return fmt.Errorf("%w: link weight and certainty must be finite", ErrInvalidConfiguration)
	}
	return nil
}

func (n *Net) putLinkLocked(l Link) {
	key := l.key()
	if existing, ok := n.links[key]; ok {
		existing.Weight = l.Weight
		existing.Certainty = l.Certainty
		return
	}
	copied := l
	n.links[key] = &copied
	n.linkOrder = nil
}

func (n *Net) deleteLinkLocked(key linkKey) {
	delete(n.links, key)
	n.linkOrder = nil
}

// sortedLinks returns link keys in summation order. Only Step stores the
// result, since it is the one caller holding the write lock.
func (n *Net) sortedLinks() []linkKey {
	if n.linkOrder != nil {
		return n.linkOrder
	}
	order := make([]linkKey, 0, len(n.links))
	for key := range n.links {
		order = append(order, key)
	}
	sort.Slice(order, func(i, j int) bool { return order[i].less(order[j]) })
	return order
}
