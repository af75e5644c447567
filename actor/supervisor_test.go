package actor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRestartStatisticsFailureCountWithinWindow(t *testing.T) {
	t.Parallel()

	stats := NewRestartStatistics()
	base := time.Now()

	stats.Record(base)
	stats.Record(base.Add(time.Second))
	stats.Record(base.Add(2 * time.Second))

	// All three fall within a 10s window measured from the last entry.
	require.Equal(t, 3, stats.FailureCountWithin(base.Add(2*time.Second), 10*time.Second))

	// Advancing the clock so that all three fall outside the window
	// should discard every entry.
	count := stats.FailureCountWithin(base.Add(20*time.Second), 10*time.Second)
	require.Equal(t, 0, count)
}

func TestRestartStatisticsReset(t *testing.T) {
	t.Parallel()

	stats := NewRestartStatistics()
	stats.Record(time.Now())
	stats.Reset()

	require.Equal(t, 0, stats.FailureCountWithin(time.Now(), time.Minute))
}

func TestOneForOneStrategyRestartsUntilBoundExceeded(t *testing.T) {
	t.Parallel()

	strategy := NewOneForOneStrategy(2, time.Minute)
	stats := NewRestartStatistics()
	pid := NewLocalPID("child")

	for i := 0; i < 2; i++ {
		d := strategy.HandleFailure(FailureInfo{Child: pid, Reason: errors.New("boom"), Stats: stats})
		require.Equal(t, Restart, d, "restart %d should still be within bound", i+1)
	}

	// Third failure exceeds MaxRestarts=2 and escalates rather than
	// stopping outright (spec.md §4.4, §8 scenario 2).
	d := strategy.HandleFailure(FailureInfo{Child: pid, Reason: errors.New("boom"), Stats: stats})
	require.Equal(t, Escalate, d)
}

func TestOneForOneStrategyDeciderOverridesBaseDirective(t *testing.T) {
	t.Parallel()

	fatalErr := errors.New("fatal")
	strategy := &OneForOneStrategy{
		MaxRestarts:    5,
		WithinDuration: time.Minute,
		Decider: func(reason error) Directive {
			if errors.Is(reason, fatalErr) {
				return Stop
			}
			return Restart
		},
	}

	d := strategy.HandleFailure(FailureInfo{
		Reason: fatalErr,
		Stats:  NewRestartStatistics(),
	})
	require.Equal(t, Stop, d)
}

func TestOneForOneStrategyNoStatsAlwaysRestarts(t *testing.T) {
	t.Parallel()

	strategy := NewOneForOneStrategy(1, time.Minute)
	d := strategy.HandleFailure(FailureInfo{Reason: errors.New("boom"), Stats: nil})
	require.Equal(t, Restart, d)
}

func TestAllForOneStrategyMirrorsOneForOneBounds(t *testing.T) {
	t.Parallel()

	strategy := NewAllForOneStrategy(1, time.Minute)
	stats := NewRestartStatistics()

	d := strategy.HandleFailure(FailureInfo{Reason: errors.New("x"), Stats: stats})
	require.Equal(t, Restart, d)

	d = strategy.HandleFailure(FailureInfo{Reason: errors.New("x"), Stats: stats})
	require.Equal(t, Escalate, d)
}

func TestDirectiveString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "resume", Resume.String())
	require.Equal(t, "restart", Restart.String())
	require.Equal(t, "stop", Stop.String())
	require.Equal(t, "escalate", Escalate.String())
	require.Equal(t, "unknown", Directive(99).String())
}
