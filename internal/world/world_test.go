package world

import (
	"errors"
	"reflect"
	"testing"
)

func TestStaticWorldDatasourcesAndTargets(t *testing.T) {
	w := NewStatic("")
	if w.Name() != StaticWorldName {
		t.Fatalf("unexpected default name: %s", w.Name())
	}
	w.SetDatasource("light", 0.75)
	w.SetDatasource("heat", 0.25)

	if got := w.GetDatasource("light"); got != 0.75 {
		t.Fatalf("unexpected datasource value: got=%f want=0.75", got)
	}
	if got := w.GetDatasource("missing"); got != 0 {
		t.Fatalf("expected unknown datasource to read 0, got=%f", got)
	}
	if keys := w.DatasourceKeys(); !reflect.DeepEqual(keys, []string{"heat", "light"}) {
		t.Fatalf("unexpected datasource keys: %v", keys)
	}

	w.SetDatatarget("motor", 0.5)
	w.SetDatatarget("motor", -0.5)
	if value, ok := w.Datatarget("motor"); !ok || value != -0.5 {
		t.Fatalf("unexpected datatarget: value=%f ok=%t", value, ok)
	}
	if history := w.DatatargetHistory("motor"); !reflect.DeepEqual(history, []float64{0.5, -0.5}) {
		t.Fatalf("unexpected datatarget history: %v", history)
	}
}

func TestStaticWorldHistoryIsBounded(t *testing.T) {
	w := NewStatic("")
	for i := 0; i < DefaultHistoryLimit+10; i++ {
		w.SetDatatarget("motor", float64(i))
	}
	history := w.DatatargetHistory("motor")
	if len(history) != DefaultHistoryLimit {
		t.Fatalf("unexpected default history length: got=%d want=%d", len(history), DefaultHistoryLimit)
	}
	if history[0] != 10 || history[len(history)-1] != float64(DefaultHistoryLimit+9) {
		t.Fatalf("expected oldest values dropped, got first=%f last=%f", history[0], history[len(history)-1])
	}

	w.SetHistoryLimit(2)
	w.SetDatatarget("motor", -1)
	if history := w.DatatargetHistory("motor"); !reflect.DeepEqual(history, []float64{float64(DefaultHistoryLimit + 9), -1}) {
		t.Fatalf("unexpected history after lowering limit: %v", history)
	}

	w.SetHistoryLimit(0)
	w.SetDatatarget("motor", 0.5)
	if history := w.DatatargetHistory("motor"); len(history) != 0 {
		t.Fatalf("expected history off, got %v", history)
	}
	if value, _ := w.Datatarget("motor"); value != 0.5 {
		t.Fatalf("unexpected datatarget with history off: %f", value)
	}

	configured, err := NewStaticFromConfig(map[string]string{"history": "1"})
	if err != nil {
		t.Fatalf("new static from config: %v", err)
	}
	configured.SetDatatarget("motor", 1)
	configured.SetDatatarget("motor", 2)
	if history := configured.DatatargetHistory("motor"); !reflect.DeepEqual(history, []float64{2}) {
		t.Fatalf("unexpected configured history: %v", history)
	}
	if _, err := NewStaticFromConfig(map[string]string{"history": "lots"}); err == nil {
		t.Fatal("expected malformed history limit to fail")
	}
}

func TestStaticWorldFromConfig(t *testing.T) {
	w, err := NewStaticFromConfig(map[string]string{
		"name":         "lab",
		"source.light": "0.5",
		"target.motor": "",
	})
	if err != nil {
		t.Fatalf("new static from config: %v", err)
	}
	if w.Name() != "lab" || w.GetDatasource("light") != 0.5 {
		t.Fatalf("unexpected configured world: name=%s light=%f", w.Name(), w.GetDatasource("light"))
	}
	if keys := w.DatatargetKeys(); !reflect.DeepEqual(keys, []string{"motor"}) {
		t.Fatalf("unexpected datatarget keys: %v", keys)
	}

	if _, err := NewStaticFromConfig(map[string]string{"source.bad": "x"}); err == nil {
		t.Fatal("expected malformed datasource value to fail")
	}
}

func TestAdapterRegistry(t *testing.T) {
	resetAdapterRegistryForTests()
	t.Cleanup(resetAdapterRegistryForTests)

	w, err := Resolve(StaticWorldName, map[string]string{"source.x": "1"})
	if err != nil {
		t.Fatalf("resolve static: %v", err)
	}
	if w.GetDatasource("x") != 1 {
		t.Fatalf("expected configured datasource, got=%f", w.GetDatasource("x"))
	}

	if _, err := Resolve("missing", nil); !errors.Is(err, ErrAdapterNotFound) {
		t.Fatalf("expected ErrAdapterNotFound, got: %v", err)
	}
	if err := RegisterAdapter(StaticWorldName, func(map[string]string) (World, error) { return NewStatic(""), nil }); !errors.Is(err, ErrAdapterExists) {
		t.Fatalf("expected ErrAdapterExists, got: %v", err)
	}
	if err := RegisterAdapterWithSpec(AdapterSpec{
		Name:          "bad-version",
		Factory:       func(map[string]string) (World, error) { return NewStatic(""), nil },
		SchemaVersion: 9,
		CodecVersion:  1,
	}); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got: %v", err)
	}
	if err := RegisterAdapter("lab", func(map[string]string) (World, error) { return NewStatic("lab"), nil }); err != nil {
		t.Fatalf("register lab: %v", err)
	}
	if names := ListAdapters(); !reflect.DeepEqual(names, []string{"lab", StaticWorldName}) {
		t.Fatalf("unexpected adapters: %v", names)
	}
}
