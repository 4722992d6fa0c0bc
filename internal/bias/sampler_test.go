package bias

import (
	"fmt"
	"testing"
)

func makePairs(n int) []StereotypePair {
	pairs := make([]StereotypePair, n)
	for i := range pairs {
		pairs[i] = StereotypePair{
			ID:             fmt.Sprintf("p%03d", i),
			Stereotype:     fmt.Sprintf("stereotype sentence %d", i),
			AntiStereotype: fmt.Sprintf("anti-stereotype sentence %d", i),
			BiasType:       "gender",
		}
	}
	return pairs
}

func TestSamplePairsDeterministic(t *testing.T) {
	pairs := makePairs(200)

	first := SamplePairs(pairs, 30, 42)
	second := SamplePairs(pairs, 30, 42)

	if len(first) != 30 {
		t.Fatalf("Expected 30 pairs, got %d", len(first))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("Sample diverged at index %d: %s vs %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestSamplePairsSeedChangesSelection(t *testing.T) {
	pairs := makePairs(200)

	a := SamplePairs(pairs, 30, 1)
	b := SamplePairs(pairs, 30, 2)

	same := true
	for i := range a {
		if a[i].ID != b[i].ID {
			same = false
			break
		}
	}
	if same {
		t.Error("Different seeds produced the identical sample")
	}
}

func TestSamplePairsDoesNotMutateInput(t *testing.T) {
	pairs := makePairs(50)
	SamplePairs(pairs, 10, 7)

	for i, p := range pairs {
		if p.ID != fmt.Sprintf("p%03d", i) {
			t.Fatalf("Input slice was reordered at index %d", i)
		}
	}
}

func TestSamplePairsSizeClamping(t *testing.T) {
	pairs := makePairs(5)

	if got := SamplePairs(pairs, 10, 3); len(got) != 5 {
		t.Errorf("Oversized request should return all pairs, got %d", len(got))
	}
	if got := SamplePairs(pairs, -1, 3); len(got) != 0 {
		t.Errorf("Negative size should return no pairs, got %d", len(got))
	}
}

func TestMulberry32Range(t *testing.T) {
	next := mulberry32(12345)
	for i := 0; i < 10000; i++ {
		v := next()
		if v < 0 || v >= 1 {
			t.Fatalf("Value %v out of [0,1) at iteration %d", v, i)
		}
	}
}

func TestMulberry32StreamIsStable(t *testing.T) {
	// The stream for a given seed is a compatibility contract: reports quote
	// the seed and must be reproducible by independent implementations.
	a := mulberry32(99)
	b := mulberry32(99)
	for i := 0; i < 100; i++ {
		if a() != b() {
			t.Fatalf("Streams for the same seed diverged at step %d", i)
		}
	}
}
