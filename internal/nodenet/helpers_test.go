package nodenet

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
)

func newTestNet(t *testing.T, opts Options) *Net {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return New(opts)
}

func mustCreate(t *testing.T, n *Net, typeName, name string) string {
	t.Helper()
	uid, err := n.CreateNode(typeName, RootNodespace, name)
	if err != nil {
		t.Fatalf("create %s node %s: %v", typeName, name, err)
	}
	return uid
}

func mustLink(t *testing.T, n *Net, src, gate, dst, slot string, weight float64) {
	t.Helper()
	if err := n.Link(src, gate, dst, slot, weight); err != nil {
		t.Fatalf("link %s:%s -> %s:%s: %v", src, gate, dst, slot, err)
	}
}

func mustReciprocal(t *testing.T, n *Net, a, b, relation string) {
	t.Helper()
	if err := n.LinkWithReciprocal(a, b, relation); err != nil {
		t.Fatalf("link %s %s %s: %v", a, relation, b, err)
	}
}

func mustParam(t *testing.T, n *Net, uid, name, value string) {
	t.Helper()
	if err := n.SetNodeParameter(uid, name, value); err != nil {
		t.Fatalf("set %s=%s: %v", name, value, err)
	}
}

func mustStep(t *testing.T, n *Net, steps int) {
	t.Helper()
	for i := 0; i < steps; i++ {
		if err := n.Step(context.Background()); err != nil {
			t.Fatalf("step %d: %v", n.CurrentStep()+1, err)
		}
	}
}

func contextForTest(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func nodeInfo(t *testing.T, n *Net, uid string) NodeInfo {
	t.Helper()
	info, err := n.GetNode(uid)
	if err != nil {
		t.Fatalf("get node %s: %v", uid, err)
	}
	return info
}

func assertGate(t *testing.T, n *Net, uid, gate string, want float64) {
	t.Helper()
	got := nodeInfo(t, n, uid).Gate(gate)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("unexpected %s gate of %s at step %d: got=%f want=%f", gate, nodeInfo(t, n, uid).Name, n.CurrentStep(), got, want)
	}
}

// prepareSource adds a neuron that keeps its gen gate at 1 through a
// self-loop.
func prepareSource(t *testing.T, n *Net) string {
	t.Helper()
	source := mustCreate(t, n, NeuronType, "Source")
	mustLink(t, n, source, ChannelGen, source, ChannelGen, 1)
	if err := n.SetGateActivation(source, ChannelGen, 1); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	return source
}
