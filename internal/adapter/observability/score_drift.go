package observability

import (
	"log/slog"
	"math"
	"sync"
)

// ScoreDriftMonitor watches one score component's rolling mean against a
// baseline and flags drift beyond a threshold. The scoring rubric is
// deterministic, so sustained drift means the *inputs* shifted — a changed
// extraction model, or a different candidate population.
type ScoreDriftMonitor struct {
	mu             sync.Mutex
	baseline       map[string]float64
	recent         map[string][]float64
	windowSize     int
	driftThreshold float64
	modelVersion   string
}

// NewScoreDriftMonitor creates a monitor for the given extraction model
// version. windowSize is the number of recent scores averaged; threshold is
// the absolute drift (in score points) that triggers a warning.
func NewScoreDriftMonitor(modelVersion string, windowSize int, driftThreshold float64) *ScoreDriftMonitor {
	return &ScoreDriftMonitor{
		baseline:       make(map[string]float64),
		recent:         make(map[string][]float64),
		windowSize:     windowSize,
		driftThreshold: driftThreshold,
		modelVersion:   modelVersion,
	}
}

// SetBaseline fixes the expected mean for a component.
func (m *ScoreDriftMonitor) SetBaseline(component string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline[component] = score
}

// Record adds a score, and once the window is full compares its mean to the
// baseline, exporting the drift gauge and warning when the threshold is
// crossed.
func (m *ScoreDriftMonitor) Record(component string, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	window := append(m.recent[component], score)
	if len(window) > m.windowSize {
		window = window[1:]
	}
	m.recent[component] = window

	if len(window) < m.windowSize {
		return
	}
	drift := m.driftLocked(component)
	RecordScoreDrift(component, m.modelVersion, drift)
	if drift > m.driftThreshold {
		slog.Warn("score drift detected",
			slog.String("component", component),
			slog.Float64("drift", drift),
			slog.Float64("threshold", m.driftThreshold),
			slog.String("model_version", m.modelVersion))
	}
}

// Drift returns the current absolute drift for a component.
func (m *ScoreDriftMonitor) Drift(component string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.driftLocked(component)
}

func (m *ScoreDriftMonitor) driftLocked(component string) float64 {
	baseline, ok := m.baseline[component]
	if !ok {
		return 0
	}
	window := m.recent[component]
	if len(window) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range window {
		sum += s
	}
	return math.Abs(sum/float64(len(window)) - baseline)
}

// Reset clears all baselines and windows.
func (m *ScoreDriftMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseline = make(map[string]float64)
	m.recent = make(map[string][]float64)
}
