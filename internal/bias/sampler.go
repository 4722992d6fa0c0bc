package bias

// mulberry32 returns a seeded PRNG yielding values in [0,1). The algorithm is
// fixed 32-bit arithmetic so the same seed produces the same sequence on every
// platform and in every implementation of the engine; audit reports reference
// the seed and must be reproducible independently.
func mulberry32(seed uint32) func() float64 {
	state := seed
	return func() float64 {
		state += 0x6D2B79F5
		z := state
		z = (z ^ (z >> 15)) * (z | 1)
		z ^= z + (z^(z>>7))*(z|61)
		z ^= z >> 14
		return float64(z) / 4294967296.0
	}
}

// SamplePairs returns a deterministic size-element subset of pairs for the
// given seed. The full list is Fisher-Yates shuffled with a mulberry32 stream
// and truncated; the input slice is never modified. If size >= len(pairs) the
// whole list is returned in shuffled order.
func SamplePairs(pairs []StereotypePair, size int, seed uint32) []StereotypePair {
	shuffled := make([]StereotypePair, len(pairs))
	copy(shuffled, pairs)

	next := mulberry32(seed)
	for i := len(shuffled) - 1; i > 0; i-- {
		j := int(next() * float64(i+1))
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	if size < 0 {
		size = 0
	}
	if size > len(shuffled) {
		size = len(shuffled)
	}
	return shuffled[:size]
}
