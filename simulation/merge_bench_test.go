package simulation

import "testing"

// Typical accumulation size: 8 task ranges over 5000 particles.
const (
	benchChunks    = 8
	benchParticles = 5000
)

func fillAccumulators(a *accumulators) {
	a.reset(benchChunks, benchParticles)
	for c := 0; c < benchChunks; c++ {
		for i := range a.bufs[c] {
			a.bufs[c][i] = float32(i%97) * 0.001 * float32(c+1)
		}
	}
}

// Benchmark merge with a plain scalar loop
func BenchmarkMergeScalar(b *testing.B) {
	var a accumulators
	fillAccumulators(&a)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		dst := a.bufs[0]
		for c := 1; c < benchChunks; c++ {
			src := a.bufs[c]
			for i := range dst {
				dst[i] += src[i]
			}
		}
	}
}

// Benchmark merge with blas32.Axpy
func BenchmarkMergeBLAS(b *testing.B) {
	var a accumulators
	fillAccumulators(&a)

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		a.merge(benchChunks)
	}
}

// Benchmark the full reset + merge cycle done once per accumulating phase
func BenchmarkResetMerge(b *testing.B) {
	var a accumulators
	for n := 0; n < b.N; n++ {
		a.reset(benchChunks, benchParticles)
		a.merge(benchChunks)
	}
}
