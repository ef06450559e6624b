//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSQLiteStoreNetRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nodenet.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	record := sampleNetRecord(t)
	if err := store.SaveNet(ctx, record); err != nil {
		t.Fatalf("save net: %v", err)
	}
	loaded, ok, err := store.GetNet(ctx, record.UID)
	if err != nil {
		t.Fatalf("get net: %v", err)
	}
	if !ok {
		t.Fatalf("expected net %s", record.UID)
	}
	if !reflect.DeepEqual(loaded, record) {
		t.Fatalf("unexpected net loaded:\n got=%+v\nwant=%+v", loaded, record)
	}

	record.Name = "renamed"
	record.Step = 7
	if err := store.SaveNet(ctx, record); err != nil {
		t.Fatalf("update net: %v", err)
	}
	summaries, err := store.ListNets(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Name != "renamed" || summaries[0].Step != 7 {
		t.Fatalf("expected upsert to update summary, got %+v", summaries)
	}

	if err := store.DeleteNet(ctx, record.UID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := store.GetNet(ctx, record.UID); err != nil || ok {
		t.Fatalf("expected deleted net to be missing, ok=%t err=%v", ok, err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	record := sampleNetRecord(t)

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.SaveNet(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	loaded, ok, err := second.GetNet(ctx, record.UID)
	if err != nil || !ok {
		t.Fatalf("expected net after reopen, ok=%t err=%v", ok, err)
	}
	if loaded.Step != record.Step || len(loaded.Nodes) != len(record.Nodes) {
		t.Fatalf("unexpected net after reopen: %+v", loaded)
	}
}

func TestSQLiteStoreRequiresInit(t *testing.T) {
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "x.db"))
	if _, _, err := store.GetNet(context.Background(), "x"); err == nil {
		t.Fatal("expected not initialized error")
	}
	if store.Driver() == "" {
		t.Fatal("expected a driver name")
	}
}
