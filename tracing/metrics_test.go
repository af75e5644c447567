package tracing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsRecordProcessedUpdatesThroughputAndLatency(t *testing.T) {
	m := NewMetrics()

	m.recordProcessed(10 * time.Millisecond)
	m.recordProcessed(20 * time.Millisecond)

	require.Equal(t, uint64(2), m.Processed())
	require.Greater(t, m.AverageLatency(), time.Duration(0))
}

func TestMetricsRecordErrorRestartDeadLetter(t *testing.T) {
	m := NewMetrics()

	m.recordError()
	m.recordRestart()
	m.recordDeadLetter()

	require.Equal(t, uint64(1), m.Errors())
	require.Equal(t, uint64(1), m.DeadLetters())
	require.GreaterOrEqual(t, m.RestartRate(), 0.0)
}

func TestMetricsActiveCellCountTracksAddsAndRemoves(t *testing.T) {
	m := NewMetrics()

	m.activeCells.Add(3)
	require.Equal(t, int64(3), m.ActiveCellCount())

	m.activeCells.Add(-1)
	require.Equal(t, int64(2), m.ActiveCellCount())
}
