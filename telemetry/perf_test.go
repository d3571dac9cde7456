package telemetry

import (
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseNeighborSearch)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseDeltaPositions)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	if stats.PhaseAvg[PhaseNeighborSearch] <= 0 {
		t.Error("expected neighbor_search phase to be tracked")
	}
	if stats.PhaseAvg[PhaseDeltaPositions] <= 0 {
		t.Error("expected delta_positions phase to be tracked")
	}
	if stats.PhaseAvg[PhaseCollisions] != 0 {
		t.Errorf("collisions avg = %v, want 0 for an untimed phase", stats.PhaseAvg[PhaseCollisions])
	}

	last := pc.Last()
	if last.Phases.Total() > last.StepDuration {
		t.Errorf("phase total %v exceeds step duration %v", last.Phases.Total(), last.StepDuration)
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseIntegrate)
		pc.EndStep()
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
	if stats.MinStepDuration > stats.MaxStepDuration {
		t.Errorf("min %v > max %v", stats.MinStepDuration, stats.MaxStepDuration)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseEmit)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseDensityPressure)
		time.Sleep(2 * time.Millisecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	fastPct := stats.PhasePct[PhaseEmit]
	slowPct := stats.PhasePct[PhaseDensityPressure]

	if slowPct <= fastPct {
		t.Errorf("expected density_pressure (%v%%) > emit (%v%%)", slowPct, fastPct)
	}

	row := stats.ToCSV(42)
	if row.Frame != 42 || row.DensityPressurePct != slowPct {
		t.Errorf("ToCSV = %+v, want frame 42 and density_pressure_pct %v", row, slowPct)
	}
}

func TestPerfCollector_EmptyAndReset(t *testing.T) {
	pc := NewPerfCollector(10)

	if stats := pc.Stats(); stats.AvgStepDuration != 0 {
		t.Error("expected zero avg step duration for empty collector")
	}

	pc.StartStep()
	pc.StartPhase(PhaseEmit)
	pc.EndStep()
	pc.Reset()

	if stats := pc.Stats(); stats.AvgStepDuration != 0 {
		t.Errorf("avg after Reset = %v, want 0", stats.AvgStepDuration)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseEmit, "emit"},
		{PhaseUpdateGrid, "update_grid"},
		{PhaseReconstructVelocity, "reconstruct_velocity"},
		{NumPhases, "unknown"},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
