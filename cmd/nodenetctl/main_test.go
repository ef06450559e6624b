package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/joschabach/micropsi2-sub002/internal/report"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := stdout
	stdout = &buf
	t.Cleanup(func() {
		stdout = orig
	})
	return &buf
}

func sampleNetPath() string {
	return filepath.Join("..", "..", "testdata", "nets", "sensor_motor.yaml")
}

func TestRunCommandImportsAndRunsNetFile(t *testing.T) {
	out := captureStdout(t)
	reportsDir := filepath.Join(t.TempDir(), "reports")

	err := run(context.Background(), []string{
		"run",
		"--store", "memory",
		"--reports-dir", reportsDir,
		"--net-file", sampleNetPath(),
		"--steps", "3",
	})
	if err != nil {
		t.Fatalf("run command: %v", err)
	}
	if !strings.Contains(out.String(), "imported net=") || !strings.Contains(out.String(), "to_step=3") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	entries, err := report.ListRunIndex(reportsDir)
	if err != nil {
		t.Fatalf("list run index: %v", err)
	}
	if len(entries) != 1 || entries[0].EndStep != 3 {
		t.Fatalf("unexpected run index: %+v", entries)
	}
	if _, err := os.Stat(filepath.Join(reportsDir, entries[0].NetUID, "net.json")); err != nil {
		t.Fatalf("expected net artifact: %v", err)
	}
}

func TestRunCommandValidatesArguments(t *testing.T) {
	captureStdout(t)
	cases := [][]string{
		{},
		{"unknown"},
		{"run", "--store", "memory"},
		{"run", "--store", "memory", "--net", "a", "--net-file", "b"},
		{"run", "--store", "memory", "--net", "a", "--steps", "-1"},
		{"export", "--store", "memory"},
		{"export", "--store", "memory", "--net", "a", "--format", "xml"},
		{"monitors", "--store", "memory"},
		{"status", "--store", "memory", "--net", "a", "--level", "loud"},
		{"runs", "--limit", "0"},
		{"import", "--store", "memory"},
	}
	for _, args := range cases {
		if err := run(context.Background(), args); err == nil {
			t.Fatalf("expected error for args %v", args)
		}
	}
}

func TestWorldsCommandListsStaticWorld(t *testing.T) {
	out := captureStdout(t)
	if err := run(context.Background(), []string{"worlds"}); err != nil {
		t.Fatalf("worlds: %v", err)
	}
	if !strings.Contains(out.String(), "static") {
		t.Fatalf("expected static world in output:\n%s", out.String())
	}
}

func TestExportFormat(t *testing.T) {
	cases := []struct {
		format, out, want string
	}{
		{"", "", "json"},
		{"", "net.yaml", "yaml"},
		{"", "net.YML", "yaml"},
		{"yml", "", "yaml"},
		{"JSON", "net.yaml", "json"},
	}
	for _, tc := range cases {
		got, err := exportFormat(tc.format, tc.out)
		if err != nil {
			t.Fatalf("format %q out %q: %v", tc.format, tc.out, err)
		}
		if got != tc.want {
			t.Fatalf("format %q out %q: got=%s want=%s", tc.format, tc.out, got, tc.want)
		}
	}
}
