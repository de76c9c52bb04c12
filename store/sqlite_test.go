package store

import (
	"context"
	"reflect"
	"sort"
	"testing"
)

func TestSqliteArtifactsSaveAndGet(t *testing.T) {
	artifacts, err := NewSqliteArtifactsInMemory()
	if err != nil {
		t.Fatalf("failed to create artifacts: %v", err)
	}
	defer artifacts.Close()

	ctx := context.Background()
	if err := artifacts.Save(ctx, "marker/item-1", `{"source_item_id":"item-1"}`); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := artifacts.Get(ctx, "marker/item-1", "")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != `{"source_item_id":"item-1"}` {
		t.Errorf("unexpected value: %q", got)
	}
}

func TestSqliteArtifactsGetDefault(t *testing.T) {
	artifacts, err := NewSqliteArtifactsInMemory()
	if err != nil {
		t.Fatalf("failed to create artifacts: %v", err)
	}
	defer artifacts.Close()

	got, err := artifacts.Get(context.Background(), "missing", "fallback")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "fallback" {
		t.Errorf("expected default value, got %q", got)
	}
}

func TestSqliteArtifactsOverwrite(t *testing.T) {
	artifacts, err := NewSqliteArtifactsInMemory()
	if err != nil {
		t.Fatalf("failed to create artifacts: %v", err)
	}
	defer artifacts.Close()

	ctx := context.Background()
	artifacts.Save(ctx, "key", "v1")
	artifacts.Save(ctx, "key", "v2")

	got, err := artifacts.Get(ctx, "key", "")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "v2" {
		t.Errorf("expected overwritten value, got %q", got)
	}
}

func TestSqliteArtifactsListByPrefix(t *testing.T) {
	artifacts, err := NewSqliteArtifactsInMemory()
	if err != nil {
		t.Fatalf("failed to create artifacts: %v", err)
	}
	defer artifacts.Close()

	ctx := context.Background()
	artifacts.Save(ctx, "marker/a", "1")
	artifacts.Save(ctx, "marker/b", "2")
	artifacts.Save(ctx, "raw/a", "3")
	artifacts.Save(ctx, "step/000001", "4")

	keys, err := artifacts.List(ctx, "marker/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"marker/a", "marker/b"}) {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestSqliteArtifactsBacksMarkerStore(t *testing.T) {
	artifacts, err := NewSqliteArtifactsInMemory()
	if err != nil {
		t.Fatalf("failed to create artifacts: %v", err)
	}
	defer artifacts.Close()

	ctx := context.Background()
	s := NewMarkerStore(artifacts)
	if err := s.Put(ctx, testDigest("item-1", "energy")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reloaded := NewMarkerStore(artifacts)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reloaded.Has("item-1") {
		t.Error("digest did not survive sqlite round trip")
	}
}
