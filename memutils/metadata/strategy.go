package metadata

// AllocationStrategy chooses which free region receives a new allocation. If none is chosen,
// AllocationStrategyMinMemory is used.
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory picks the smallest free region that fits, keeping large regions intact
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime picks the first free region that fits
	AllocationStrategyMinTime
	// AllocationStrategyMinOffset picks the fitting free region with the lowest offset
	AllocationStrategyMinOffset
)

var strategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "MinMemory",
	AllocationStrategyMinTime:   "MinTime",
	AllocationStrategyMinOffset: "MinOffset",
}

func (s AllocationStrategy) String() string {
	str, ok := strategyMapping[s]
	if !ok {
		return "Default"
	}
	return str
}
