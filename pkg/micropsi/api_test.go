package micropsi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/joschabach/micropsi2-sub002/internal/model"
	"github.com/joschabach/micropsi2-sub002/internal/report"
	"github.com/joschabach/micropsi2-sub002/internal/runner"
	"github.com/joschabach/micropsi2-sub002/internal/statuslog"
	"github.com/joschabach/micropsi2-sub002/internal/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:  "memory",
		ReportsDir: filepath.Join(t.TempDir(), "reports"),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func testdataPath(parts ...string) string {
	return filepath.Join(append([]string{"..", "..", "testdata"}, parts...)...)
}

func TestClientImportRunAndExport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	imported, err := client.ImportFile(ctx, testdataPath("nets", "sensor_motor.yaml"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.UID == "" || imported.Name != "sensor-motor" || imported.Nodes != 2 || imported.Links != 1 {
		t.Fatalf("unexpected import summary: %+v", imported)
	}

	summary, err := client.Run(ctx, RunRequest{NetUID: imported.UID, Steps: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.StartStep != 0 || summary.EndStep != 3 {
		t.Fatalf("unexpected run summary: %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, "monitors.csv")); err != nil {
		t.Fatalf("expected monitor artifacts: %v", err)
	}

	record, err := client.Export(ctx, imported.UID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if record.Step != 3 {
		t.Fatalf("expected stored net at step 3, got=%d", record.Step)
	}

	series, err := client.MonitorData(ctx, MonitorRequest{NetUID: imported.UID, From: 0, Count: -1})
	if err != nil {
		t.Fatalf("monitor data: %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("expected one monitor, got=%d", len(series))
	}
	if got := series[0].Values[3]; got != 0.4 {
		t.Fatalf("unexpected motor gen at step 3: %f", got)
	}

	status, err := client.StatusTree(ctx, imported.UID, statuslog.LevelInfo)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status[runner.StatusPath].State != statuslog.StateSuccess {
		t.Fatalf("unexpected runner status: %+v", status)
	}

	runs, err := client.Runs(ctx, 5)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].NetUID != imported.UID || runs[0].EndStep != 3 {
		t.Fatalf("unexpected run index: %+v", runs)
	}
}

func TestClientRunStopsOnMonitor(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	imported, err := client.ImportFile(ctx, testdataPath("nets", "sensor_motor.yaml"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	summary, err := client.Run(ctx, RunRequest{NetUID: imported.UID, Steps: 100, MonitorUID: "motor-gen", MonitorValue: 0.4})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.EndStep != 2 {
		t.Fatalf("expected monitor to stop the run at step 2, got=%d", summary.EndStep)
	}

	// the stored net continues where the last run ended
	again, err := client.Run(ctx, RunRequest{NetUID: imported.UID, Steps: 1})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if again.StartStep != 2 || again.EndStep != 3 {
		t.Fatalf("unexpected second run: %+v", again)
	}
}

func TestClientRunRequiresCondition(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Run(context.Background(), RunRequest{NetUID: "x"}); err == nil {
		t.Fatal("expected error for run without condition")
	}
	if _, err := client.Run(context.Background(), RunRequest{NetUID: "missing", Steps: 1}); !errors.Is(err, runner.ErrNetNotFound) {
		t.Fatalf("expected ErrNetNotFound, got %v", err)
	}
}

func TestClientImportFixtureAndClone(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)

	imported, err := client.ImportFile(ctx, testdataPath("fixtures", "minimal_net_v1.json"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.UID != "net-minimal-1" || imported.Step != 2 {
		t.Fatalf("unexpected import summary: %+v", imported)
	}

	clone, err := client.Clone(ctx, imported.UID, "copy")
	if err != nil {
		t.Fatalf("clone: %v", err)
	}
	if clone.UID == imported.UID || clone.Name != "copy" || clone.Nodes != imported.Nodes {
		t.Fatalf("unexpected clone: %+v", clone)
	}

	nets, err := client.Nets(ctx)
	if err != nil {
		t.Fatalf("nets: %v", err)
	}
	if len(nets) != 2 {
		t.Fatalf("expected 2 stored nets, got=%d", len(nets))
	}

	if err := client.Delete(ctx, clone.UID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.Export(ctx, clone.UID); !errors.Is(err, runner.ErrNetNotFound) {
		t.Fatalf("expected ErrNetNotFound after delete, got %v", err)
	}
	if err := client.Delete(ctx, clone.UID); !errors.Is(err, runner.ErrNetNotFound) {
		t.Fatalf("expected ErrNetNotFound on second delete, got %v", err)
	}
}

func TestClientImportRejectsStaleVersion(t *testing.T) {
	client := newTestClient(t)
	_, err := client.ImportFile(context.Background(), testdataPath("fixtures", "stale_net_v0.json"))
	if !errors.Is(err, storage.ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestClientImportStampsVersion(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	imported, err := client.Import(ctx, model.NetRecord{Name: "empty"})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	record, err := client.Export(ctx, imported.UID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if record.VersionedRecord != model.CurrentVersion() {
		t.Fatalf("unexpected versions: %+v", record.VersionedRecord)
	}
}

func TestClientWriteReport(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	imported, err := client.ImportFile(ctx, testdataPath("fixtures", "minimal_net_v1.json"))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	dir, err := client.WriteReport(ctx, imported.UID)
	if err != nil {
		t.Fatalf("write report: %v", err)
	}
	series, ok, err := report.ReadMonitorCSV(filepath.Dir(dir), imported.UID)
	if err != nil || !ok {
		t.Fatalf("read monitors: ok=%t err=%v", ok, err)
	}
	if got := series["mon-1"][2]; got != 1 {
		t.Fatalf("unexpected fixture monitor value: %f", got)
	}
}
