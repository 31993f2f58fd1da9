package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLatencyMetrics_Sample(t *testing.T) {
	var l LatencyMetrics
	assert.Zero(t, l.Sample())

	for i := 100; i >= 1; i-- {
		l.Record(time.Duration(i) * time.Millisecond)
	}
	assert.Equal(t, 100, l.Sample())
	assert.Equal(t, 51*time.Millisecond, l.P50)
	assert.Equal(t, 91*time.Millisecond, l.P90)
	assert.Equal(t, 100*time.Millisecond, l.P99)
	assert.Equal(t, 100*time.Millisecond, l.Max)
	assert.Equal(t, 5050*time.Millisecond, l.Sum)
	assert.Equal(t, 50500*time.Microsecond, l.Mean)
}

func TestLatencyMetrics_rolling(t *testing.T) {
	var l LatencyMetrics
	for i := 0; i < sampleSize; i++ {
		l.Record(time.Second)
	}
	for i := 0; i < sampleSize; i++ {
		l.Record(time.Millisecond)
	}
	assert.Equal(t, sampleSize, l.Count())
	l.Sample()
	assert.Equal(t, time.Millisecond, l.Max)
	assert.Equal(t, time.Duration(sampleSize)*time.Millisecond, l.Sum)
}

func TestPercentileIndex(t *testing.T) {
	assert.Equal(t, 0, percentileIndex(1, 99))
	assert.Equal(t, 5, percentileIndex(10, 50))
	assert.Equal(t, 9, percentileIndex(10, 100))
}

func TestMetrics_concurrentSnapshot(t *testing.T) {
	m := new(Metrics)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			m.record(&tickStats{ready: 2, ioCalls: 2, taskRuns: 1}, time.Microsecond)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			s := m.snapshot()
			assert.Equal(t, s.ReadyHandles, 2*s.Ticks)
		}
	}()
	wg.Wait()

	s := m.snapshot()
	assert.Equal(t, uint64(500), s.Ticks)
	assert.Equal(t, uint64(1000), s.IOCallbacks)
	assert.Equal(t, uint64(500), s.TaskRuns)
	assert.Equal(t, 500, s.TickLatency.Count())
	assert.Equal(t, time.Microsecond, s.TickLatency.P99)
}
