package cmmutils

// Statistics summarizes physical blocks and the views mapped onto them
type Statistics struct {
	BlockCount int
	ViewCount  int
	BlockBytes int
	ViewBytes  int
}

func (s *Statistics) Clear() {
	s.BlockCount = 0
	s.ViewCount = 0
	s.BlockBytes = 0
	s.ViewBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.ViewCount += other.ViewCount
	s.BlockBytes += other.BlockBytes
	s.ViewBytes += other.ViewBytes
}

// CacheStatistics counts cache maintenance. Calls are API-level operations, Chunks are
// the individual platform calls they were split into.
type CacheStatistics struct {
	FlushCalls       int
	FlushChunks      int
	FlushBytes       int
	InvalidateCalls  int
	InvalidateChunks int
	InvalidateBytes  int
}

func (s *CacheStatistics) Clear() {
	*s = CacheStatistics{}
}

func (s *CacheStatistics) AddCacheStatistics(other *CacheStatistics) {
	s.FlushCalls += other.FlushCalls
	s.FlushChunks += other.FlushChunks
	s.FlushBytes += other.FlushBytes
	s.InvalidateCalls += other.InvalidateCalls
	s.InvalidateChunks += other.InvalidateChunks
	s.InvalidateBytes += other.InvalidateBytes
}
