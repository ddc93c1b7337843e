package metadata

// AllocationStrategy chooses which free block FindFit returns when more than one is large enough.
// If none is chosen, the first adequate block in free list order is used.
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory selects the smallest adequate free block, scanning the entire
	// free list to find it. Ties go to the block nearest the head of the list.
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime selects the first adequate free block in list order. Because freed
	// blocks are pushed onto the head of the list, this favors recently freed memory.
	AllocationStrategyMinTime
	// AllocationStrategyMinOffset selects the adequate free block with the lowest address, scanning
	// the entire free list to find it. This keeps allocations packed toward the start of the arena.
	AllocationStrategyMinOffset

	AllocationStrategyMask = AllocationStrategyMinMemory | AllocationStrategyMinTime | AllocationStrategyMinOffset
)

var allocationStrategyMapping = map[AllocationStrategy]string{
	0:                           "AllocationStrategyFirstFit",
	AllocationStrategyMinMemory: "AllocationStrategyMinMemory",
	AllocationStrategyMinTime:   "AllocationStrategyMinTime",
	AllocationStrategyMinOffset: "AllocationStrategyMinOffset",
}

func (s AllocationStrategy) String() string {
	str, ok := allocationStrategyMapping[s]
	if !ok {
		return "AllocationStrategyUnknown"
	}
	return str
}
