package malloc

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/mmalloc/memutils"
)

// CalculateStatistics walks every block in the arena and writes a summary into stats. Any
// data already in stats is cleared.
func (a *Allocator) CalculateStatistics(stats *memutils.DetailedStatistics) {
	stats.Clear()
	if a.metadata != nil {
		a.metadata.AddDetailedStatistics(stats)
	}
}

// BuildStatsString returns a JSON document describing the arena and the blocks within it
func (a *Allocator) BuildStatsString() string {
	var stats memutils.DetailedStatistics
	a.CalculateStatistics(&stats)

	writer := jwriter.NewWriter()
	json := writer.Object()

	if a.metadata != nil {
		arenaJson := json.Name("Arena").Object()
		a.metadata.BlockJsonData(arenaJson)
		arenaJson.End()
	}

	statsJson := json.Name("Statistics").Object()
	printDetailedStatistics(&statsJson, &stats)
	statsJson.End()

	json.End()
	return string(writer.Bytes())
}

func printDetailedStatistics(json *jwriter.ObjectState, stats *memutils.DetailedStatistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("ArenaBytes").Int(stats.ArenaBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
	json.Name("FreeBlockCount").Int(stats.FreeBlockCount)
	json.Name("FreeBytes").Int(stats.FreeBytes)
	json.Name("Utilization").Float64(stats.Utilization())

	if stats.AllocationCount > 0 {
		json.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		json.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}

	if stats.FreeBlockCount > 0 {
		json.Name("FreeBlockSizeMin").Int(stats.FreeBlockSizeMin)
		json.Name("FreeBlockSizeMax").Int(stats.FreeBlockSizeMax)
	}
}
