package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWithRegistry(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.PredictionsTotal.Inc()
	m.PredictionsTotal.Inc()
	if got := testutil.ToFloat64(m.PredictionsTotal); got != 2 {
		t.Errorf("PredictionsTotal = %v, want 2", got)
	}

	m.PredictionFailures.Inc()
	if got := testutil.ToFloat64(m.PredictionFailures); got != 1 {
		t.Errorf("PredictionFailures = %v, want 1", got)
	}

	m.ModelLoaded.Set(1)
	if got := testutil.ToFloat64(m.ModelLoaded); got != 1 {
		t.Errorf("ModelLoaded = %v, want 1", got)
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	// Two instances on distinct registries must not panic on registration.
	a := NewWithRegistry(prometheus.NewRegistry())
	b := NewWithRegistry(prometheus.NewRegistry())

	a.PredictionsTotal.Inc()
	if got := testutil.ToFloat64(b.PredictionsTotal); got != 0 {
		t.Errorf("second instance counter = %v, want 0", got)
	}
}
