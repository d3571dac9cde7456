package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/fluid/config"
)

// FrameRecord is one row of frames.csv.
type FrameRecord struct {
	Frame        int32   `csv:"frame"`
	SimTime      float64 `csv:"sim_time"`
	Particles    int     `csv:"particles"`
	StepMS       float64 `csv:"step_ms"`
	MinNeighbors int     `csv:"min_neighbors"`
	MaxNeighbors int     `csv:"max_neighbors"`
	MinCell      int     `csv:"min_cell"`
	MaxCell      int     `csv:"max_cell"`
	MeanY        float64 `csv:"mean_y"`
}

// csvFile appends records to a CSV file, writing the header once.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func createCSV(dir, name string) (*csvFile, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvFile{f: f}, nil
}

func writeRecords[T any](c *csvFile, records []T) error {
	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.f); err != nil {
			return err
		}
		c.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, c.f)
}

// OutputManager writes run output as CSV files in one directory.
type OutputManager struct {
	dir     string
	frames  *csvFile
	perf    *csvFile
	windows *csvFile
}

// NewOutputManager creates the output directory and its CSV files.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	var err error
	if om.frames, err = createCSV(dir, "frames.csv"); err != nil {
		return nil, err
	}
	if om.perf, err = createCSV(dir, "perf.csv"); err != nil {
		om.Close()
		return nil, err
	}
	if om.windows, err = createCSV(dir, "windows.csv"); err != nil {
		om.Close()
		return nil, err
	}
	return om, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteFrame appends a row to frames.csv.
func (om *OutputManager) WriteFrame(r FrameRecord) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.frames, []FrameRecord{r}); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// WritePerf appends a row to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, frame int32) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.perf, []PerfStatsCSV{stats.ToCSV(frame)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteWindow appends a row to windows.csv.
func (om *OutputManager) WriteWindow(w WindowStats) error {
	if om == nil {
		return nil
	}
	if err := writeRecords(om.windows, []WindowStats{w}); err != nil {
		return fmt.Errorf("writing window: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	var firstErr error
	for _, c := range []*csvFile{om.frames, om.perf, om.windows} {
		if c == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
