package nodenet

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// RootNodespace is the uid of the nodespace every net starts with.
const RootNodespace = "Root"

type nodespace struct {
	uid    string
	name   string
	parent string
}

type NodespaceInfo struct {
	UID    string
	Name   string
	Parent string
}

// CreateNodespace adds a child nodespace below parent ("" means root).
func (n *Net) CreateNodespace(parent, name string) (string, error) {
	if err := n.lock(); err != nil {
		return "", err
	}
	defer n.mu.Unlock()
	if parent == "" {
		parent = RootNodespace
	}
	if _, ok := n.nodespaces[parent]; !ok {
		return "", fmt.Errorf("%w: nodespace %s", ErrNotFound, parent)
	}
	uid := uuid.NewString()
	n.nodespaces[uid] = &nodespace{uid: uid, name: name, parent: parent}
	return uid, nil
}

// DeleteNodespace removes the nodespace, its descendants and all their
// nodes. The root nodespace cannot be deleted.
func (n *Net) DeleteNodespace(uid string) error {
	if err := n.lock(); err != nil {
		return err
	}
	defer n.mu.Unlock()
	if uid == RootNodespace {
		return fmt.Errorf("%w: the root nodespace cannot be deleted", ErrInvalidConfiguration)
	}
	if _, ok := n.nodespaces[uid]; !ok {
		return fmt.Errorf("%w: nodespace %s", ErrNotFound, uid)
	}

	doomed := n.descendants(uid)
	for nuid, nd := range n.nodes {
		if _, ok := doomed[nd.nodespace]; ok {
			n.deleteNodeLocked(nuid)
		}
	}
	for nsuid := range doomed {
		delete(n.nodespaces, nsuid)
	}
	n.log.Debug("nodespace deleted", "nodespace", uid, "removed", len(doomed))
	return nil
}

func (n *Net) GetNodespace(uid string) (NodespaceInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ns, ok := n.nodespaces[uid]
	if !ok {
		return NodespaceInfo{}, fmt.Errorf("%w: nodespace %s", ErrNotFound, uid)
	}
	return NodespaceInfo{UID: ns.uid, Name: ns.name, Parent: ns.parent}, nil
}

func (n *Net) Nodespaces() []NodespaceInfo {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]NodespaceInfo, 0, len(n.nodespaces))
	for _, ns := range n.nodespaces {
		out = append(out, NodespaceInfo{UID: ns.uid, Name: ns.name, Parent: ns.parent})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// descendants returns uid and every nodespace below it.
func (n *Net) descendants(uid string) map[string]struct{} {
	out := map[string]struct{}{uid: {}}
	for grew := true; grew; {
		grew = false
		for child, ns := range n.nodespaces {
			if _, seen := out[child]; seen {
				continue
			}
			if _, ok := out[ns.parent]; ok {
				out[child] = struct{}{}
				grew = true
			}
		}
	}
	return out
}
