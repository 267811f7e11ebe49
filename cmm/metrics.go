package cmm

import (
	"github.com/axsys-go/cmm/cmmutils"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	blocksDesc = prometheus.NewDesc(
		"cmm_blocks",
		"The current number of physical blocks held from the platform.",
		nil,
		nil,
	)
	blockBytesDesc = prometheus.NewDesc(
		"cmm_block_bytes",
		"The current size in bytes of physical blocks held from the platform.",
		nil,
		nil,
	)
	allocationsDesc = prometheus.NewDesc(
		"cmm_allocations",
		"The current number of live allocations, owned and attached.",
		nil,
		nil,
	)
	viewsDesc = prometheus.NewDesc(
		"cmm_views",
		"The current number of mapped views, including the base view of each allocation.",
		nil,
		nil,
	)
	viewBytesDesc = prometheus.NewDesc(
		"cmm_view_bytes",
		"The current size in bytes of mapped views.",
		nil,
		nil,
	)
	cacheOperationsDesc = prometheus.NewDesc(
		"cmm_cache_operations_total",
		"The number of flush and invalidate requests made on views.",
		[]string{"operation"},
		nil,
	)
	cacheChunksDesc = prometheus.NewDesc(
		"cmm_cache_chunks_total",
		"The number of platform cache calls the requests were split into.",
		[]string{"operation"},
		nil,
	)
	cacheBytesDesc = prometheus.NewDesc(
		"cmm_cache_bytes_total",
		"The number of bytes flushed or invalidated.",
		[]string{"operation"},
		nil,
	)
	partitionBytesDesc = prometheus.NewDesc(
		"cmm_partition_bytes",
		"The size in bytes of each platform partition.",
		[]string{"partition"},
		nil,
	)
	platformBytesDesc = prometheus.NewDesc(
		"cmm_platform_bytes",
		"The platform-wide total and remaining bytes as reported by the platform.",
		[]string{"state"},
		nil,
	)
)

// Collector exports the usage of one or more Allocators as Prometheus metrics. Usage and cache
// series are summed over the allocators; platform series come from the first allocator's
// driver, so the allocators are expected to share one platform.
type Collector struct {
	allocators []*Allocator
}

func NewCollector(allocator *Allocator, others ...*Allocator) *Collector {
	return &Collector{allocators: append([]*Allocator{allocator}, others...)}
}

func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- blocksDesc
	descs <- blockBytesDesc
	descs <- allocationsDesc
	descs <- viewsDesc
	descs <- viewBytesDesc
	descs <- cacheOperationsDesc
	descs <- cacheChunksDesc
	descs <- cacheBytesDesc
	descs <- partitionBytesDesc
	descs <- platformBytesDesc
}

func (c *Collector) Collect(m chan<- prometheus.Metric) {
	var stats cmmutils.Statistics
	var cacheStats cmmutils.CacheStatistics
	allocations := 0

	for _, allocator := range c.allocators {
		var allocatorStats cmmutils.Statistics
		allocator.memory.AddStatistics(&allocatorStats)
		stats.AddStatistics(&allocatorStats)

		var allocatorCacheStats cmmutils.CacheStatistics
		allocator.memory.AddCacheStatistics(&allocatorCacheStats)
		cacheStats.AddCacheStatistics(&allocatorCacheStats)

		allocations += allocator.allocations.Count()
	}

	m <- prometheus.MustNewConstMetric(blocksDesc, prometheus.GaugeValue, float64(stats.BlockCount))
	m <- prometheus.MustNewConstMetric(blockBytesDesc, prometheus.GaugeValue, float64(stats.BlockBytes))
	m <- prometheus.MustNewConstMetric(allocationsDesc, prometheus.GaugeValue, float64(allocations))
	m <- prometheus.MustNewConstMetric(viewsDesc, prometheus.GaugeValue, float64(stats.ViewCount))
	m <- prometheus.MustNewConstMetric(viewBytesDesc, prometheus.GaugeValue, float64(stats.ViewBytes))

	m <- prometheus.MustNewConstMetric(cacheOperationsDesc, prometheus.CounterValue, float64(cacheStats.FlushCalls), "flush")
	m <- prometheus.MustNewConstMetric(cacheOperationsDesc, prometheus.CounterValue, float64(cacheStats.InvalidateCalls), "invalidate")
	m <- prometheus.MustNewConstMetric(cacheChunksDesc, prometheus.CounterValue, float64(cacheStats.FlushChunks), "flush")
	m <- prometheus.MustNewConstMetric(cacheChunksDesc, prometheus.CounterValue, float64(cacheStats.InvalidateChunks), "invalidate")
	m <- prometheus.MustNewConstMetric(cacheBytesDesc, prometheus.CounterValue, float64(cacheStats.FlushBytes), "flush")
	m <- prometheus.MustNewConstMetric(cacheBytesDesc, prometheus.CounterValue, float64(cacheStats.InvalidateBytes), "invalidate")

	// Platform queries are best effort; a failing platform only loses these series
	status, err := c.allocators[0].driver.QueryStatus()
	if err != nil {
		return
	}

	m <- prometheus.MustNewConstMetric(platformBytesDesc, prometheus.GaugeValue, float64(status.TotalBytes), "total")
	m <- prometheus.MustNewConstMetric(platformBytesDesc, prometheus.GaugeValue, float64(status.RemainBytes), "remain")

	for _, part := range status.Partitions {
		m <- prometheus.MustNewConstMetric(partitionBytesDesc, prometheus.GaugeValue, float64(part.SizeKB)*1024, part.Name)
	}
}
