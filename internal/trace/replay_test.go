package trace_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/mmalloc/internal/trace"
	"github.com/vkngwrapper/mmalloc/malloc"
	"github.com/vkngwrapper/mmalloc/memutils"
	"github.com/vkngwrapper/mmalloc/memutils/arena"
)

func newReplayer(t *testing.T, validate bool) (*trace.Replayer, *malloc.Allocator) {
	allocator, err := malloc.New(nil, malloc.CreateOptions{})
	require.NoError(t, err)

	replayer := trace.NewReplayer(allocator)
	replayer.ValidateEachOp = validate
	return replayer, allocator
}

func TestReplayShortTrace(t *testing.T) {
	parsed, err := trace.Parse("short", strings.NewReader(shortTrace))
	require.NoError(t, err)

	replayer, allocator := newReplayer(t, true)
	result, err := replayer.Replay(parsed)
	require.NoError(t, err)

	require.Equal(t, "short", result.Name)
	require.Equal(t, 7, result.Ops)
	require.Equal(t, 500, result.PeakPayloadBytes)
	require.Equal(t, allocator.ArenaSize(), result.ArenaBytes)
	require.Greater(t, result.Utilization(), 0.0)
	require.LessOrEqual(t, result.Utilization(), 1.0)

	var stats memutils.DetailedStatistics
	allocator.CalculateStatistics(&stats)
	require.Equal(t, 0, stats.AllocationCount)
	require.NoError(t, allocator.Destroy())
}

func TestReplayFreesLeftovers(t *testing.T) {
	parsed, err := trace.Parse("leftovers", strings.NewReader("0\n2\n3\n1\na 0 64\na 1 0\nr 0 128\n"))
	require.NoError(t, err)

	replayer, allocator := newReplayer(t, false)
	result, err := replayer.Replay(parsed)
	require.NoError(t, err)
	require.Equal(t, 128, result.PeakPayloadBytes)
	require.NoError(t, allocator.Destroy())
}

func TestReplayZeroSizedOps(t *testing.T) {
	parsed, err := trace.Parse("zero", strings.NewReader("0\n1\n5\n1\na 0 0\nr 0 40\nr 0 0\nr 0 16\nf 0\n"))
	require.NoError(t, err)

	replayer, _ := newReplayer(t, true)
	result, err := replayer.Replay(parsed)
	require.NoError(t, err)
	require.Equal(t, 40, result.PeakPayloadBytes)
}

func TestReplayRejectsUnknownIds(t *testing.T) {
	testCases := map[string]string{
		"free before allocate":    "0\n1\n1\n1\nf 0\n",
		"realloc before allocate": "0\n1\n1\n1\nr 0 10\n",
		"double allocate":         "0\n1\n2\n1\na 0 10\na 0 10\n",
		"double free":             "0\n1\n3\n1\na 0 10\nf 0\nf 0\n",
	}

	for name, contents := range testCases {
		parsed, err := trace.Parse(name, strings.NewReader(contents))
		require.NoError(t, err, name)

		replayer, _ := newReplayer(t, false)
		_, err = replayer.Replay(parsed)
		require.ErrorIs(t, err, trace.ErrMalformedTrace, name)
	}
}

func TestReplayOutOfMemory(t *testing.T) {
	parsed, err := trace.Parse("oom", strings.NewReader("0\n1\n1\n1\na 0 100000\n"))
	require.NoError(t, err)

	allocator, err := malloc.New(nil, malloc.CreateOptions{Provider: arena.NewHeap(4096)})
	require.NoError(t, err)

	_, err = trace.NewReplayer(allocator).Replay(parsed)
	require.ErrorIs(t, err, arena.ErrOutOfMemory)
}

func randomTrace(seed int64, ids int) string {
	random := rand.New(rand.NewSource(seed))
	live := make([]bool, ids)

	var ops []string
	for i := 0; i < ids*4; i++ {
		id := random.Intn(ids)
		switch {
		case !live[id]:
			ops = append(ops, fmt.Sprintf("a %d %d", id, random.Intn(2000)))
			live[id] = true
		case random.Intn(2) == 0:
			ops = append(ops, fmt.Sprintf("r %d %d", id, 1+random.Intn(4000)))
		default:
			ops = append(ops, fmt.Sprintf("f %d", id))
			live[id] = false
		}
	}

	return fmt.Sprintf("0\n%d\n%d\n1\n%s\n", ids, len(ops), strings.Join(ops, "\n"))
}

func TestReplayRandomTraces(t *testing.T) {
	for seed := int64(1); seed <= 4; seed++ {
		parsed, err := trace.Parse("random", strings.NewReader(randomTrace(seed, 200)))
		require.NoError(t, err)

		replayer, allocator := newReplayer(t, seed == 1)
		result, err := replayer.Replay(parsed)
		require.NoError(t, err, "seed %d", seed)
		require.Equal(t, 800, result.Ops)
		require.NoError(t, allocator.Destroy())
	}
}

func TestReplayHugeIdCounts(t *testing.T) {
	testCases := map[string]string{
		"near uint32 limit":  "0\n3000000000\n2\n1\na 2999999999 8\nf 2999999999\n",
		"beyond uint32":      "0\n5000000000\n2\n1\na 4294967297 8\nr 4294967297 64\n",
		"single id":          "0\n1\n1\n1\na 0 8\n",
	}

	for name, contents := range testCases {
		parsed, err := trace.Parse(name, strings.NewReader(contents))
		require.NoError(t, err, name)

		replayer, allocator := newReplayer(t, true)
		_, err = replayer.Replay(parsed)
		require.NoError(t, err, name)
		require.NoError(t, allocator.Destroy(), name)
	}
}

func TestReplayRejectsHugeOpCount(t *testing.T) {
	_, err := trace.Parse("huge", strings.NewReader("0 1 9223372036854775807 1\na 0 8\n"))
	require.ErrorIs(t, err, trace.ErrMalformedTrace)
}
