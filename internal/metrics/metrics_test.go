package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStage(t *testing.T) {
	m := New(func() float64 { return 4 })

	m.ObserveStage("transcription", OutcomeOK, 120*time.Millisecond)
	m.ObserveStage("retrieval", OutcomeDegraded, time.Second)
	m.ObserveStage("synthesis", OutcomeError, time.Second)
	m.ObserveStage("synthesis", OutcomeError, time.Second)
	m.SynthesisAttempts(3)
	m.SynthesisAttempts(0)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("transcription")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("retrieval")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("synthesis")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.synthesisAttempts))

	expected := `
# HELP medivoice_conversations Conversations held in memory.
# TYPE medivoice_conversations gauge
medivoice_conversations 4
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "medivoice_conversations"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("generation", OutcomeError, time.Second)
		m.SynthesisAttempts(1)
	})
}
