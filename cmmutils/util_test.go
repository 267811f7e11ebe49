package cmmutils_test

import (
	"math"
	"testing"

	"github.com/axsys-go/cmm/cmmutils"
	"github.com/stretchr/testify/require"
)

func TestCheckPow2(t *testing.T) {
	require.NoError(t, cmmutils.CheckPow2(uint32(0x1000), "alignment"))
	require.NoError(t, cmmutils.CheckPow2(1, "alignment"))

	err := cmmutils.CheckPow2(uint32(0x1800), "alignment")
	require.ErrorIs(t, err, cmmutils.PowerOfTwoError)
	require.Contains(t, err.Error(), "alignment is 6144")

	require.ErrorIs(t, cmmutils.CheckPow2(0, "alignment"), cmmutils.PowerOfTwoError)
}

func TestAlign(t *testing.T) {
	require.Equal(t, 128, cmmutils.AlignUp(65, 64))
	require.Equal(t, 64, cmmutils.AlignUp(64, 64))
	require.Equal(t, 0, cmmutils.AlignUp(0, 64))
	require.Equal(t, 64, cmmutils.AlignDown(127, 64))
	require.Equal(t, 0, cmmutils.AlignDown(63, 64))
}

func TestChunkCount(t *testing.T) {
	require.Equal(t, 0, cmmutils.ChunkCount(0, 10))
	require.Equal(t, 1, cmmutils.ChunkCount(10, 10))
	require.Equal(t, 2, cmmutils.ChunkCount(11, 10))
	require.Equal(t, 3, cmmutils.ChunkCount(25, 10))
	require.Equal(t, 2, cmmutils.ChunkCount(math.MaxUint32+1, math.MaxUint32))
}

func TestRangeFits(t *testing.T) {
	require.True(t, cmmutils.RangeFits(0, 100, 100))
	require.True(t, cmmutils.RangeFits(100, 0, 100))
	require.True(t, cmmutils.RangeFits(40, 60, 100))
	require.False(t, cmmutils.RangeFits(40, 61, 100))
	require.False(t, cmmutils.RangeFits(101, 0, 100))
	require.False(t, cmmutils.RangeFits(-1, 10, 100))
	require.False(t, cmmutils.RangeFits(1, math.MaxInt, 100))
}

func TestStatistics(t *testing.T) {
	stats := cmmutils.Statistics{BlockCount: 1, BlockBytes: 4096, ViewCount: 2, ViewBytes: 8192}
	stats.AddStatistics(&cmmutils.Statistics{BlockCount: 1, BlockBytes: 100, ViewCount: 1, ViewBytes: 100})
	require.Equal(t, cmmutils.Statistics{BlockCount: 2, BlockBytes: 4196, ViewCount: 3, ViewBytes: 8292}, stats)

	stats.Clear()
	require.Equal(t, cmmutils.Statistics{}, stats)

	var cache cmmutils.CacheStatistics
	cache.AddCacheStatistics(&cmmutils.CacheStatistics{FlushCalls: 1, FlushChunks: 3, FlushBytes: 30})
	cache.AddCacheStatistics(&cmmutils.CacheStatistics{InvalidateCalls: 2, InvalidateChunks: 2, InvalidateBytes: 8})
	require.Equal(t, cmmutils.CacheStatistics{
		FlushCalls:       1,
		FlushChunks:      3,
		FlushBytes:       30,
		InvalidateCalls:  2,
		InvalidateChunks: 2,
		InvalidateBytes:  8,
	}, cache)
}
