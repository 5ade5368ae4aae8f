package engine

// golden is the 64-bit golden-ratio increment used by SplitMix64.
const golden = 0x9e3779b97f4a7c15

// SplitMix64 is the finalizer of the SplitMix64 generator. It is a
// bijection on uint64.
func SplitMix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// ChainSeed derives the seed for one chain from the run's base seed.
//
// For a fixed base, distinct chains get distinct seeds: the offsets
// (chain+1)*golden are distinct mod 2^64 because golden is odd, and
// SplitMix64 is a bijection.
func ChainSeed(base, chain uint64) uint64 {
	return SplitMix64(base + (chain+1)*golden)
}
