package simulation

import (
	"testing"

	"github.com/pthm-cable/fluid/config"
)

func benchmarkUpdate(b *testing.B, multi bool) {
	sc := boxScenario("bench", config.Vec2{}, config.Vec2{X: 3, Y: 2}, -10)
	s := newTestSim(b, nil, Options{SingleThreaded: !multi, Seed: 1})
	if err := s.LoadScenario(sc); err != nil {
		b.Fatal(err)
	}
	// Let the volume settle into a realistic neighbor distribution.
	for i := 0; i < 10; i++ {
		if err := s.Update(1.0 / 60); err != nil {
			b.Fatal(err)
		}
	}

	b.ReportMetric(float64(s.GetParticleCount()), "particles")
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		if err := s.Update(1.0 / 60); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUpdateSingleThreaded(b *testing.B) {
	benchmarkUpdate(b, false)
}

func BenchmarkUpdateMultiThreaded(b *testing.B) {
	benchmarkUpdate(b, true)
}
