package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/joschabach/micropsi2-sub002/internal/model"
	"github.com/joschabach/micropsi2-sub002/internal/nodenet"
)

func TestDecodeNetFixture(t *testing.T) {
	record := decodeNetFixture(t, "minimal_net_v1.json")
	if record.UID != "net-minimal-1" || record.Step != 2 {
		t.Fatalf("unexpected net: uid=%s step=%d", record.UID, record.Step)
	}
	if len(record.Nodes) != 2 || len(record.Links) != 2 {
		t.Fatalf("unexpected topology: nodes=%d links=%d", len(record.Nodes), len(record.Links))
	}
	if got := record.Monitors[0].Values[2]; got != 1 {
		t.Fatalf("unexpected monitor value at step 2: %f", got)
	}
	if got := record.Status["run"].Progress; !reflect.DeepEqual(got, []int{2, 10}) {
		t.Fatalf("unexpected status progress: %v", got)
	}
}

func TestDecodeNetFixtureImports(t *testing.T) {
	record := decodeNetFixture(t, "minimal_net_v1.json")
	n, err := nodenet.Import(record, nodenet.Options{})
	if err != nil {
		t.Fatalf("import fixture: %v", err)
	}
	if err := n.Step(context.Background()); err != nil {
		t.Fatalf("step imported fixture: %v", err)
	}
	info, err := n.GetNode("head")
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if info.Gate(nodenet.ChannelSub) != 1 {
		t.Fatalf("expected head to stay requested, got sub=%f", info.Gate(nodenet.ChannelSub))
	}
}

func TestDecodeNetRejectsVersionMismatch(t *testing.T) {
	data, err := os.ReadFile(fixturePath("stale_net_v0.json"))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	if _, err := DecodeNet(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestEncodeNetRoundTripsExport(t *testing.T) {
	record := sampleNetRecord(t)
	data, err := EncodeNet(record)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeNet(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, record) {
		t.Fatalf("codec round trip changed the record:\n got=%+v\nwant=%+v", decoded, record)
	}
}

func TestEncodeNetRequiresUID(t *testing.T) {
	if _, err := EncodeNet(model.NetRecord{VersionedRecord: model.CurrentVersion()}); err == nil {
		t.Fatal("expected missing uid error")
	}
}

// sampleNetRecord exports a small stepped net with every kind of state a
// record can carry.
func sampleNetRecord(t *testing.T) model.NetRecord {
	t.Helper()
	n := nodenet.New(nodenet.Options{Name: "sample"})
	source, err := n.CreateNode(nodenet.NeuronType, "", "Source")
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	head, err := n.CreateNode(nodenet.PipeType, "", "Head")
	if err != nil {
		t.Fatalf("create head: %v", err)
	}
	if err := n.Link(source, nodenet.ChannelGen, source, nodenet.ChannelGen, 1); err != nil {
		t.Fatalf("self link: %v", err)
	}
	if err := n.LinkWithCertainty(source, nodenet.ChannelGen, head, nodenet.ChannelSub, 0.75, 0.5); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := n.SetGateActivation(source, nodenet.ChannelGen, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := n.SetModulator("base_arousal", 0.25); err != nil {
		t.Fatalf("modulator: %v", err)
	}
	if _, err := n.AddGateMonitor(head, nodenet.ChannelSub, nodenet.MonitorOptions{}); err != nil {
		t.Fatalf("monitor: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := n.Step(context.Background()); err != nil {
			t.Fatalf("step: %v", err)
		}
	}
	return n.Export()
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}

func decodeNetFixture(t *testing.T, name string) model.NetRecord {
	t.Helper()
	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	record, err := DecodeNet(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return record
}
