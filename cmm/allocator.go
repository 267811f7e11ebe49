package cmm

import (
	"github.com/axsys-go/cmm/cmm/internal/platform"
	"github.com/axsys-go/cmm/cmmutils"
	"github.com/axsys-go/cmm/driver"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"golang.org/x/exp/slog"
)

// AnonymousPartition is the name of the general-purpose partition allocations come from by default
const AnonymousPartition = "anonymous"

// Allocator creates Buffers against one platform driver and owns the bookkeeping they share:
// the logger, the synchronization mode, usage counters and the list of live allocations.
type Allocator struct {
	useMutex    bool
	logger      *slog.Logger
	driver      driver.Driver
	createFlags CreateFlags

	memory      *platform.Memory
	allocations allocationList
}

// NewBuffer returns an idle Buffer
func (a *Allocator) NewBuffer() *Buffer {
	a.logger.Debug("Allocator::NewBuffer")

	return newBuffer(a, nil)
}

func (a *Allocator) Driver() driver.Driver { return a.driver }
func (a *Allocator) Flags() CreateFlags     { return a.createFlags }

// QueryPartitions lists the platform's physical partitions
func (a *Allocator) QueryPartitions() ([]driver.Partition, error) {
	a.logger.Debug("Allocator::QueryPartitions")

	parts, err := a.driver.Partitions()
	if err != nil {
		return nil, wrapError(SystemCallFailed, err, func() string { return "failed to query partitions" })
	}
	return parts, nil
}

// FindAnonymous returns the partition named "anonymous". The boolean is false if the platform
// has no such partition.
func (a *Allocator) FindAnonymous() (driver.Partition, bool, error) {
	a.logger.Debug("Allocator::FindAnonymous")

	parts, err := a.QueryPartitions()
	if err != nil {
		return driver.Partition{}, false, err
	}

	for _, part := range parts {
		if part.Name == AnonymousPartition {
			return part, true, nil
		}
	}
	return driver.Partition{}, false, nil
}

// QueryStatus reports the platform's overall usage
func (a *Allocator) QueryStatus() (driver.Status, error) {
	a.logger.Debug("Allocator::QueryStatus")

	status, err := a.driver.QueryStatus()
	if err != nil {
		return driver.Status{}, wrapError(SystemCallFailed, err, func() string { return "failed to query status" })
	}
	return status, nil
}

// Statistics fills stats with the blocks held from the platform and the views mapped onto them
// by this allocator
func (a *Allocator) Statistics(stats *cmmutils.Statistics) {
	a.logger.Debug("Allocator::Statistics")

	stats.Clear()
	a.memory.AddStatistics(stats)
}

// CacheStatistics fills stats with the flush and invalidate activity of this allocator's views
func (a *Allocator) CacheStatistics(stats *cmmutils.CacheStatistics) {
	a.logger.Debug("Allocator::CacheStatistics")

	stats.Clear()
	a.memory.AddCacheStatistics(stats)
}

// BuildStatsString renders the allocator's statistics as JSON. When detailedMap is set every
// live allocation and its open views are included.
func (a *Allocator) BuildStatsString(detailedMap bool) string {
	a.logger.Debug("Allocator::BuildStatsString")

	var stats cmmutils.Statistics
	a.memory.AddStatistics(&stats)

	var cacheStats cmmutils.CacheStatistics
	a.memory.AddCacheStatistics(&cacheStats)

	var tracked cmmutils.Statistics
	a.allocations.AddStatistics(&tracked)

	writer := jwriter.NewWriter()
	obj := writer.Object()

	totalObj := obj.Name("Total").Object()
	totalObj.Name("BlockCount").Int(stats.BlockCount)
	totalObj.Name("BlockBytes").Int(stats.BlockBytes)
	totalObj.Name("ViewCount").Int(stats.ViewCount)
	totalObj.Name("ViewBytes").Int(stats.ViewBytes)
	totalObj.Name("TrackedAllocations").Int(tracked.BlockCount)
	totalObj.Name("TrackedBytes").Int(tracked.BlockBytes)
	totalObj.End()

	cacheObj := obj.Name("CacheOperations").Object()
	cacheObj.Name("FlushCalls").Int(cacheStats.FlushCalls)
	cacheObj.Name("FlushChunks").Int(cacheStats.FlushChunks)
	cacheObj.Name("FlushBytes").Int(cacheStats.FlushBytes)
	cacheObj.Name("InvalidateCalls").Int(cacheStats.InvalidateCalls)
	cacheObj.Name("InvalidateChunks").Int(cacheStats.InvalidateChunks)
	cacheObj.Name("InvalidateBytes").Int(cacheStats.InvalidateBytes)
	cacheObj.End()

	obj.Name("Flags").String(a.createFlags.String())
	obj.Name("CacheOpChunkSize").Int(a.memory.ChunkSize())

	if detailedMap {
		a.allocations.BuildStatsString(obj.Name("Allocations"))
	}

	obj.End()
	return string(writer.Bytes())
}
