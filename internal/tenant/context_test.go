package tenant

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if GetStoreID(ctx) != "" || GetStoreName(ctx) != "" || GetTurnID(ctx) != "" {
		t.Fatal("expected empty values on bare context")
	}

	ctx = WithStoreID(ctx, "store-1")
	ctx = WithStoreName(ctx, "Acme Outfitters")
	ctx = WithTurnID(ctx, "turn-9")

	if got := GetStoreID(ctx); got != "store-1" {
		t.Fatalf("store id = %q", got)
	}
	if got := GetStoreName(ctx); got != "Acme Outfitters" {
		t.Fatalf("store name = %q", got)
	}
	if got := GetTurnID(ctx); got != "turn-9" {
		t.Fatalf("turn id = %q", got)
	}
}

func TestContextIgnoresForeignKeys(t *testing.T) {
	ctx := context.WithValue(context.Background(), "reva_store_id", "spoofed") //nolint:staticcheck // asserting typed keys do not collide
	if got := GetStoreID(ctx); got != "" {
		t.Fatalf("expected typed key isolation, got %q", got)
	}
}
