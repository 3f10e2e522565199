package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAll(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.EventsTracked.WithLabelValues("Autocomplete").Inc()
	m.RequestsSkipped.Inc()
	m.PersistResults.WithLabelValues("ok").Inc()
	m.ArchiveRuns.WithLabelValues("ok").Inc()
	m.StreamSubscribers.Set(2)

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTracked.WithLabelValues("Autocomplete")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StreamSubscribers))
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)

	assert.Panics(t, func() { New(registry) })
}
