package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1}

	var counter int64
	n := 1000

	For(n, func(_ int) {
		atomic.AddInt64(&counter, 1)
	}, cfg)

	assert.Equal(t, int64(n), counter)
}

func TestFor_VisitsEachIndexOnce(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Sequential(), {Enabled: true, NumWorkers: 3, MinChunkSize: 2}} {
		seen := make([]int32, 37)
		For(len(seen), func(i int) {
			atomic.AddInt32(&seen[i], 1)
		}, cfg)
		for i, v := range seen {
			assert.Equal(t, int32(1), v, "index %d with %+v", i, cfg)
		}
	}
}

func TestForBatch(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 2, MinChunkSize: 1}
	grid := make([][]int32, 3)
	for i := range grid {
		grid[i] = make([]int32, 5)
	}

	ForBatch(3, 5, func(b, c int) {
		atomic.AddInt32(&grid[b][c], 1)
	}, cfg)

	for b := range grid {
		for c := range grid[b] {
			assert.Equal(t, int32(1), grid[b][c])
		}
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}
