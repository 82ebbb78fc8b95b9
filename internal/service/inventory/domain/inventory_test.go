package domain

import "testing"

func TestInventoryItem_InvariantAfterEveryOperation(t *testing.T) {
	item := NewInventoryItem("product-x", 10, 2)

	check := func(step string) {
		if item.ReservedQuantity < 0 || item.ReservedQuantity > item.Quantity {
			t.Fatalf("%s: invariant violated: reserved=%d quantity=%d", step, item.ReservedQuantity, item.Quantity)
		}
		if item.AvailableQuantity != item.Quantity-item.ReservedQuantity {
			t.Fatalf("%s: available=%d, expected %d", step, item.AvailableQuantity, item.Quantity-item.ReservedQuantity)
		}
	}

	check("initial")
	if err := item.Reserve(3); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	check("after reserve")
	if err := item.ConfirmDeduction(3); err != nil {
		t.Fatalf("ConfirmDeduction failed: %v", err)
	}
	check("after confirm")
	item.ReleaseReserved(100) // 过量释放被钳制在零
	check("after excessive release")
}

func TestInventoryItem_ReserveInsufficientStock(t *testing.T) {
	item := NewInventoryItem("product-x", 10, 2)
	if err := item.Reserve(5); err != nil {
		t.Fatalf("first reserve failed: %v", err)
	}
	if err := item.Reserve(6); err != ErrInsufficientStock {
		t.Errorf("expected ErrInsufficientStock, got %v", err)
	}
	if item.ReservedQuantity != 5 {
		t.Errorf("failed reserve must not change counters, reserved=%d", item.ReservedQuantity)
	}
}

func TestInventoryItem_StatusRecomputedByThreshold(t *testing.T) {
	item := NewInventoryItem("product-x", 10, 3)
	if item.Status != ItemStatusInStock {
		t.Errorf("expected IN_STOCK, got %s", item.Status)
	}

	if err := item.Reserve(8); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := item.ConfirmDeduction(8); err != nil {
		t.Fatalf("ConfirmDeduction failed: %v", err)
	}
	if item.Status != ItemStatusLowStock {
		t.Errorf("expected LOW_STOCK at available=2, got %s", item.Status)
	}

	if err := item.Reserve(2); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if item.Status != ItemStatusOutOfStock {
		t.Errorf("expected OUT_OF_STOCK at available=0, got %s", item.Status)
	}
}

func TestInventoryItem_ReleaseClampsAtZero(t *testing.T) {
	item := NewInventoryItem("product-x", 10, 2)
	if err := item.Reserve(4); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	item.ReleaseReserved(4)
	item.ReleaseReserved(4) // 重复释放是静默空操作
	if item.ReservedQuantity != 0 {
		t.Errorf("expected reserved=0, got %d", item.ReservedQuantity)
	}
	if item.AvailableQuantity != 10 {
		t.Errorf("expected available=10, got %d", item.AvailableQuantity)
	}
}
