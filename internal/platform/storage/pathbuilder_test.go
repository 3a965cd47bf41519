package storage

import "testing"

func TestBuildOrderSnapshotPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeOrderSnapshot, PathParams{
		Prefix:   "orders",
		OrderID:  "ord_123",
		FileName: "20250601T120000.000000000Z.json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "orders/ord_123/snapshots/20250601T120000.000000000Z.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildOrderLatestPath(t *testing.T) {
	path, err := BuildObjectPath(PurposeOrderLatest, PathParams{
		Prefix:  "orders",
		OrderID: "ord_123",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "orders/ord_123/latest.json"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestBuildObjectPathRejectsInvalidSegment(t *testing.T) {
	_, err := BuildObjectPath(PurposeOrderSnapshot, PathParams{
		Prefix:   "orders",
		OrderID:  "../bad",
		FileName: "snapshot.json",
	})
	if err == nil {
		t.Fatalf("expected error for invalid segment")
	}
}

func TestBuildObjectPathUnknownPurpose(t *testing.T) {
	_, err := BuildObjectPath(ObjectPurpose("mystery"), PathParams{Prefix: "orders", OrderID: "ord_1"})
	if err == nil {
		t.Fatalf("expected error for unknown purpose")
	}
}
