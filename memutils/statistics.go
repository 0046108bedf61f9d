package memutils

import (
	"math"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// Statistics sums up device memory usage. A block is one device memory allocation, an allocation is one
// resource bound inside a block.
type Statistics struct {
	BlockCount      int
	AllocationCount int
	BlockBytes      uint64
	AllocationBytes uint64
}

func (s *Statistics) Clear() {
	*s = Statistics{}
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.BlockCount += other.BlockCount
	s.AllocationCount += other.AllocationCount
	s.BlockBytes += other.BlockBytes
	s.AllocationBytes += other.AllocationBytes
}

// WriteJson adds the statistics fields to an open json object
func (s *Statistics) WriteJson(json jwriter.ObjectState) {
	json.Name("BlockCount").Int(s.BlockCount)
	json.Name("BlockBytes").Float64(float64(s.BlockBytes))
	json.Name("AllocationCount").Int(s.AllocationCount)
	json.Name("AllocationBytes").Float64(float64(s.AllocationBytes))
}

type DetailedStatistics struct {
	Statistics
	UnusedRangeCount   int
	AllocationSizeMin  uint64
	AllocationSizeMax  uint64
	UnusedRangeSizeMin uint64
	UnusedRangeSizeMax uint64
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxUint64
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxUint64
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size uint64) {
	s.UnusedRangeCount++
	s.UnusedRangeSizeMin = min(s.UnusedRangeSizeMin, size)
	s.UnusedRangeSizeMax = max(s.UnusedRangeSizeMax, size)
}

func (s *DetailedStatistics) AddAllocation(size uint64) {
	s.AllocationCount++
	s.AllocationBytes += size
	s.AllocationSizeMin = min(s.AllocationSizeMin, size)
	s.AllocationSizeMax = max(s.AllocationSizeMax, size)
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.UnusedRangeCount += other.UnusedRangeCount
	s.UnusedRangeSizeMin = min(s.UnusedRangeSizeMin, other.UnusedRangeSizeMin)
	s.UnusedRangeSizeMax = max(s.UnusedRangeSizeMax, other.UnusedRangeSizeMax)
	s.AllocationSizeMin = min(s.AllocationSizeMin, other.AllocationSizeMin)
	s.AllocationSizeMax = max(s.AllocationSizeMax, other.AllocationSizeMax)
}

// WriteJson adds the detailed statistics fields to an open json object. Min fields are omitted while
// nothing has been counted.
func (s *DetailedStatistics) WriteJson(json jwriter.ObjectState) {
	s.Statistics.WriteJson(json)
	json.Name("UnusedRangeCount").Int(s.UnusedRangeCount)
	if s.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Float64(float64(s.AllocationSizeMin))
		json.Name("AllocationSizeMax").Float64(float64(s.AllocationSizeMax))
	}
	if s.UnusedRangeCount > 0 {
		json.Name("UnusedRangeSizeMin").Float64(float64(s.UnusedRangeSizeMin))
		json.Name("UnusedRangeSizeMax").Float64(float64(s.UnusedRangeSizeMax))
	}
}
