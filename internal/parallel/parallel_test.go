package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCoversEveryIndexOnce(t *testing.T) {
	for _, n := range []int{1, 100, serialThreshold - 1, serialThreshold, 100000} {
		p := New(4)
		hits := make([]int32, n)
		p.Run(n, func(_, start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		p.Stop()

		for i, h := range hits {
			require.Equal(t, int32(1), h, "n=%d index %d hit %d times", n, i, h)
		}
	}
}

func TestSmallRangeRunsSerially(t *testing.T) {
	p := New(4)
	defer p.Stop()

	calls := 0
	p.Run(100, func(id, start, end int) {
		calls++
		assert.Equal(t, 0, id)
		assert.Equal(t, 0, start)
		assert.Equal(t, 100, end)
	})
	assert.Equal(t, 1, calls, "below the threshold the caller runs the pass")
}

func TestChunkIDsAreStable(t *testing.T) {
	p := New(3)
	defer p.Stop()

	n := serialThreshold * 3
	starts := make([]int64, p.Chunks())
	p.Run(n, func(id, start, _ int) {
		atomic.StoreInt64(&starts[id], int64(start))
	})

	// Chunk ids map to contiguous ranges in order.
	for id := 1; id < p.Chunks(); id++ {
		assert.Greater(t, starts[id], starts[id-1])
	}
}

func TestRunZeroIsNoop(t *testing.T) {
	p := New(2)
	defer p.Stop()
	p.Run(0, func(_, _, _ int) { t.Fatal("fn must not run") })
}

func TestPoolRestartsAfterStop(t *testing.T) {
	p := New(2)

	var count atomic.Int64
	p.Run(serialThreshold*2, func(_, start, end int) { count.Add(int64(end - start)) })
	p.Stop()

	p.Run(serialThreshold*2, func(_, start, end int) { count.Add(int64(end - start)) })
	p.Stop()

	assert.Equal(t, int64(serialThreshold*4), count.Load())
}

func TestSingleWorkerStaysSerial(t *testing.T) {
	p := New(1)
	defer p.Stop()

	calls := 0
	p.Run(serialThreshold*2, func(id, start, end int) {
		calls++
		assert.Equal(t, 0, id)
	})
	assert.Equal(t, 1, calls)
}
