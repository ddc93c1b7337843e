// Package trace reads allocation trace files and replays them against a malloc.Allocator,
// checking every result for correctness and measuring how well the arena is used.
//
// A trace file starts with four integers: the suggested heap size, the number of distinct
// allocation ids, the number of operations and a weight. The operations follow, one per line:
//
//	a <id> <size>   allocate size bytes and remember the result as id
//	r <id> <size>   reallocate id to size bytes
//	f <id>          free id
package trace

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
)

// maxPreallocatedOps bounds the capacity reserved from a header's op count. Longer traces grow
// the slice as ops are actually read.
const maxPreallocatedOps = 1 << 16

// ErrMalformedTrace is the root of all errors caused by the contents of a trace file
var ErrMalformedTrace = errors.New("malformed trace")

type OpKind byte

const (
	OpAllocate   OpKind = 'a'
	OpReallocate OpKind = 'r'
	OpFree       OpKind = 'f'
)

func (k OpKind) String() string {
	switch k {
	case OpAllocate:
		return "allocate"
	case OpReallocate:
		return "reallocate"
	case OpFree:
		return "free"
	}
	return "unknown"
}

type Op struct {
	Kind OpKind
	ID   int
	// Size is unused for OpFree
	Size int
}

type Trace struct {
	Name              string
	SuggestedHeapSize int
	IDCount           int
	Weight            int
	Ops               []Op
}

// Load parses the trace file at path. The trace is named after the file.
func Load(path string) (*Trace, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open trace %s", path)
	}
	defer file.Close()

	return Parse(filepath.Base(path), file)
}

type tokenReader struct {
	name    string
	scanner *bufio.Scanner
}

func (r *tokenReader) next(what string) (string, error) {
	if !r.scanner.Scan() {
		err := r.scanner.Err()
		if err != nil {
			return "", errors.Wrapf(err, "%s: failed to read %s", r.name, what)
		}
		return "", errors.Wrapf(ErrMalformedTrace, "%s: unexpected end of file reading %s", r.name, what)
	}

	return r.scanner.Text(), nil
}

func (r *tokenReader) nextInt(what string) (int, error) {
	token, err := r.next(what)
	if err != nil {
		return 0, err
	}

	value, err := strconv.Atoi(token)
	if err != nil || value < 0 {
		return 0, errors.Wrapf(ErrMalformedTrace, "%s: %s must be a non-negative integer, but was %q", r.name, what, token)
	}

	return value, nil
}

// Parse reads a trace from r. name is used in error messages and results.
func Parse(name string, r io.Reader) (*Trace, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	tokens := &tokenReader{name: name, scanner: scanner}

	trace := &Trace{Name: name}

	var err error
	trace.SuggestedHeapSize, err = tokens.nextInt("suggested heap size")
	if err != nil {
		return nil, err
	}

	trace.IDCount, err = tokens.nextInt("id count")
	if err != nil {
		return nil, err
	}

	opCount, err := tokens.nextInt("op count")
	if err != nil {
		return nil, err
	}

	trace.Weight, err = tokens.nextInt("weight")
	if err != nil {
		return nil, err
	}

	trace.Ops = make([]Op, 0, min(opCount, maxPreallocatedOps))
	for i := 0; i < opCount; i++ {
		what := "op " + strconv.Itoa(i)

		kind, err := tokens.next(what)
		if err != nil {
			return nil, err
		}

		if len(kind) != 1 {
			return nil, errors.Wrapf(ErrMalformedTrace, "%s: %s has unknown type %q", name, what, kind)
		}

		op := Op{Kind: OpKind(kind[0])}
		switch op.Kind {
		case OpAllocate, OpReallocate, OpFree:
		default:
			return nil, errors.Wrapf(ErrMalformedTrace, "%s: %s has unknown type %q", name, what, kind)
		}

		op.ID, err = tokens.nextInt(what + " id")
		if err != nil {
			return nil, err
		}

		if op.ID >= trace.IDCount {
			return nil, errors.Wrapf(ErrMalformedTrace, "%s: %s uses id %d, but the trace declares only %d ids", name, what, op.ID, trace.IDCount)
		}

		if op.Kind != OpFree {
			op.Size, err = tokens.nextInt(what + " size")
			if err != nil {
				return nil, err
			}
		}

		trace.Ops = append(trace.Ops, op)
	}

	if scanner.Scan() {
		return nil, errors.Wrapf(ErrMalformedTrace, "%s: unexpected %q after the last of %d ops", name, scanner.Text(), opCount)
	}

	return trace, nil
}
