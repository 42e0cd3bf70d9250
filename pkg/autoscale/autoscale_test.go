package autoscale

import "testing"

func TestBoundsInvariants(t *testing.T) {
	min, max := Bounds()

	if max < 8 {
		t.Fatalf("max = %d, want >= 8", max)
	}
	if min < 4 {
		t.Fatalf("min = %d, want >= 4", min)
	}
	if min > max {
		t.Fatalf("min %d > max %d", min, max)
	}
	if min != max/2 {
		t.Fatalf("min = %d, want max/2 = %d", min, max/2)
	}
}
