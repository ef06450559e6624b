package nodenet

import (
	"errors"
	"reflect"
	"testing"

	"github.com/joschabach/micropsi2-sub002/internal/model"
	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
)

func TestExportImportRoundTrip(t *testing.T) {
	n := newTestNet(t, Options{Name: "round-trip", WorldAdapter: "static", WorldConfig: map[string]string{"source.light": "0.5"}})
	source := prepareSource(t, n)
	space, err := n.CreateNodespace("", "plans")
	if err != nil {
		t.Fatalf("create nodespace: %v", err)
	}
	head, err := n.CreateNode(PipeType, space, "Head")
	if err != nil {
		t.Fatalf("create head: %v", err)
	}
	child, err := n.CreateNode(PipeType, space, "Child")
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	mustReciprocal(t, n, head, child, RelationSubSur)
	mustLink(t, n, source, ChannelGen, head, ChannelSub, 1)
	if err := n.LinkWithCertainty(source, ChannelGen, child, ChannelSur, 0.5, 0.25); err != nil {
		t.Fatalf("link: %v", err)
	}
	cfg := DefaultGateConfig()
	cfg.Spreading = SpreadingFanout
	cfg.Amplification = 2
	if err := n.SetGateConfig(child, ChannelSur, cfg); err != nil {
		t.Fatalf("gate config: %v", err)
	}
	if err := n.SetModulator("arousal", 0.3); err != nil {
		t.Fatalf("modulator: %v", err)
	}
	if _, err := n.AddGateMonitor(head, ChannelGen, MonitorOptions{}); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if err := n.StatusLog().Info("run.phase", statuslog.StateActive, "warming up", nil); err != nil {
		t.Fatalf("status: %v", err)
	}
	mustStep(t, n, 4)

	record := n.Export()
	if record.SchemaVersion != model.SchemaVersion || record.CodecVersion != model.CodecVersion {
		t.Fatalf("unexpected record versions: %+v", record.VersionedRecord)
	}
	imported, err := Import(record, Options{Logger: n.log})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !reflect.DeepEqual(imported.Export(), record) {
		t.Fatalf("round trip changed the record:\n got=%+v\nwant=%+v", imported.Export(), record)
	}

	// Both continue identically.
	mustStep(t, n, 3)
	mustStep(t, imported, 3)
	if !reflect.DeepEqual(imported.Export(), n.Export()) {
		t.Fatal("imported net diverged from original")
	}
}

func TestImportRejectsBrokenRecords(t *testing.T) {
	base := func() model.NetRecord {
		return model.NetRecord{
			VersionedRecord: model.CurrentVersion(),
			UID:             "net",
			Nodespaces:      []model.NodespaceRecord{{UID: RootNodespace}},
			Nodes: []model.NodeRecord{
				{UID: "a", Type: NeuronType, Nodespace: RootNodespace},
				{UID: "b", Type: NeuronType, Nodespace: RootNodespace},
			},
			Links: []model.LinkRecord{{SourceNode: "a", SourceGate: ChannelGen, TargetNode: "b", TargetSlot: ChannelGen, Weight: 1, Certainty: 1}},
		}
	}
	if _, err := Import(base(), Options{}); err != nil {
		t.Fatalf("expected base record to import: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*model.NetRecord)
		want   error
	}{
		{name: "unknown-type", mutate: func(r *model.NetRecord) { r.Nodes[0].Type = "Ghost" }, want: ErrNotFound},
		{name: "unknown-nodespace", mutate: func(r *model.NetRecord) { r.Nodes[0].Nodespace = "elsewhere" }, want: ErrNotFound},
		{name: "unknown-gate", mutate: func(r *model.NetRecord) { r.Links[0].SourceGate = ChannelSur }, want: ErrInvalidConfiguration},
		{name: "dangling-link", mutate: func(r *model.NetRecord) { r.Links[0].TargetNode = "zz" }, want: ErrNotFound},
		{name: "duplicate-node", mutate: func(r *model.NetRecord) { r.Nodes[1].UID = "a" }, want: ErrInvalidConfiguration},
		{name: "orphan-nodespace", mutate: func(r *model.NetRecord) {
			r.Nodespaces = append(r.Nodespaces, model.NodespaceRecord{UID: "x", Parent: "nope"})
		}, want: ErrNotFound},
		{name: "nodespace-cycle", mutate: func(r *model.NetRecord) {
			r.Nodespaces = append(r.Nodespaces,
				model.NodespaceRecord{UID: "x", Parent: "y"},
				model.NodespaceRecord{UID: "y", Parent: "x"},
			)
		}, want: ErrInvalidConfiguration},
		{name: "bad-gate-config", mutate: func(r *model.NetRecord) {
			r.Nodes[0].Gates = map[string]model.GateRecord{ChannelGen: {Min: model.Float(1), Max: model.Float(0)}}
		}, want: ErrInvalidConfiguration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			record := base()
			tc.mutate(&record)
			if _, err := Import(record, Options{}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestImportPartialGateKeepsTypeDefaults(t *testing.T) {
	record := model.NetRecord{
		VersionedRecord: model.CurrentVersion(),
		UID:             "net",
		Nodespaces:      []model.NodespaceRecord{{UID: RootNodespace}},
		Nodes: []model.NodeRecord{{
			UID:       "loop",
			Type:      NeuronType,
			Nodespace: RootNodespace,
			Gates:     map[string]model.GateRecord{ChannelGen: {Activation: 1}},
		}},
		Links: []model.LinkRecord{{SourceNode: "loop", SourceGate: ChannelGen, TargetNode: "loop", TargetSlot: ChannelGen, Weight: 1, Certainty: 1}},
	}
	n, err := Import(record, Options{})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	mustStep(t, n, 2)
	assertGate(t, n, "loop", ChannelGen, 1)

	got := n.Export().Nodes[0].Gates[ChannelGen]
	want := DefaultGateConfig()
	if *got.Threshold != want.Threshold || *got.Amplification != want.Amplification || *got.Min != want.Min || *got.Max != want.Max {
		t.Fatalf("unexpected gate config after partial import: %+v", got)
	}
	if got.Spreading != string(SpreadingIdentity) {
		t.Fatalf("unexpected spreading: got=%q want=%q", got.Spreading, SpreadingIdentity)
	}

	// Present fields still override the default.
	record.Nodes[0].Gates = map[string]model.GateRecord{ChannelGen: {Activation: 1, Max: model.Float(0.5)}}
	n, err = Import(record, Options{})
	if err != nil {
		t.Fatalf("import with max: %v", err)
	}
	mustStep(t, n, 1)
	assertGate(t, n, "loop", ChannelGen, 0.5)
}

func TestCloneIsIndependent(t *testing.T) {
	template := newTestNet(t, Options{Name: "template"})
	source := prepareSource(t, template)
	sink := mustCreate(t, template, NeuronType, "sink")
	mustLink(t, template, source, ChannelGen, sink, ChannelGen, 1)
	if _, err := template.AddCustomMonitor(func(v View) (float64, bool) {
		return float64(v.CurrentStep()), true
	}, MonitorOptions{Name: "clock"}); err != nil {
		t.Fatalf("custom monitor: %v", err)
	}

	clone, err := template.Clone(Options{Name: "agent"})
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.UID() == template.UID() {
		t.Fatal("expected clone to get its own uid")
	}
	if clone.Name() != "agent" {
		t.Fatalf("unexpected clone name: %s", clone.Name())
	}

	mustStep(t, clone, 3)
	if err := clone.SetGateConfig(sink, ChannelGen, GateConfig{Threshold: 0, Amplification: 1, Min: 0, Max: 0.5, Spreading: SpreadingIdentity}); err != nil {
		t.Fatalf("configure clone: %v", err)
	}
	if err := clone.RegisterNodeType(NodeType{Name: "CloneOnly", Gates: []string{ChannelGen}, Func: func(*Activation) error { return nil }}); err != nil {
		t.Fatalf("register in clone: %v", err)
	}

	if template.CurrentStep() != 0 {
		t.Fatalf("stepping the clone moved the template to step %d", template.CurrentStep())
	}
	if nodeInfo(t, template, sink).GateConfigs[ChannelGen] != DefaultGateConfig() {
		t.Fatal("configuring the clone changed the template")
	}
	if _, err := template.CreateNode("CloneOnly", "", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected clone registry to be separate, got %v", err)
	}
	monitors := clone.Monitors()
	if len(monitors) != 1 || monitors[0].Kind != MonitorCustom || monitors[0].Values[3] != 3 {
		t.Fatalf("expected custom monitor to follow the clone, got %+v", monitors)
	}
}
