package client

import "testing"

func TestLossSimulatorSeededPatternIsReproducible(t *testing.T) {
	a := NewLossSimulator(37, 42)
	b := NewLossSimulator(37, 42)
	for i := 0; i < 200; i++ {
		if a() != b() {
			t.Fatalf("draw %d diverged for the same seed", i)
		}
	}
}

func TestLossSimulatorBounds(t *testing.T) {
	never := NewLossSimulator(0, 1)
	for i := 0; i < 50; i++ {
		if never() {
			t.Fatal("0 percent dropped a frame")
		}
	}

	always := NewLossSimulator(100, 1)
	for i := 0; i < 50; i++ {
		if !always() {
			t.Fatal("100 percent kept a frame")
		}
	}

	clamped := NewLossSimulator(250, 1)
	for i := 0; i < 50; i++ {
		if !clamped() {
			t.Fatal("rate above 100 kept a frame")
		}
	}
}

func TestLossSimulatorDifferentSeedsDiverge(t *testing.T) {
	a := NewLossSimulator(50, 7)
	b := NewLossSimulator(50, 8)
	same := true
	for i := 0; i < 200; i++ {
		if a() != b() {
			same = false
		}
	}
	if same {
		t.Fatal("expected different seeds to produce different patterns")
	}
}
