package matslice

import (
	"errors"
	"strings"
	"testing"

	"github.com/flightdv/corepipeline/engine/domain"
)

func TestVectorLength(t *testing.T) {
	cases := []struct {
		shape  []int
		length int
		ok     bool
	}{
		{[]int{10}, 10, true},
		{[]int{1, 20}, 20, true},
		{[]int{30, 1}, 30, true},
		{[]int{5, 5}, 0, false},
		{[]int{2, 3, 4}, 0, false},
	}
	for _, c := range cases {
		length, ok := vectorLength(c.shape)
		if length != c.length || ok != c.ok {
			t.Fatalf("vectorLength(%v) = (%d,%v), want (%d,%v)", c.shape, length, ok, c.length, c.ok)
		}
	}
}

func TestDetectVersionLegacyVsV73(t *testing.T) {
	legacy := make([]byte, 128)
	copy(legacy, "MATLAB 5.0 MAT-file, Platform: PCWIN64")
	if got := DetectVersion(legacy); got != "legacy" {
		t.Fatalf("DetectVersion(legacy header) = %q, want legacy", got)
	}

	v73 := make([]byte, 128)
	copy(v73, "MATLAB 7.3 MAT-file, Platform: PCWIN64")
	if got := DetectVersion(v73); got != "v7.3" {
		t.Fatalf("DetectVersion(v7.3 header) = %q, want v7.3", got)
	}
}

func TestIndexRejectsV73(t *testing.T) {
	v73 := make([]byte, 200)
	copy(v73, "MATLAB 7.3 MAT-file, Platform: PCWIN64")

	_, err := Index(v73)
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if !strings.Contains(err.Error(), "HDF5") {
		t.Fatalf("expected HDF5 mention in error, got %q", err.Error())
	}
}
