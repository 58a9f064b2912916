package execdata

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
)

// ErrVersionMismatch is returned when two records for the same class id
// disagree on name or probe count.
var ErrVersionMismatch = errors.New("execution data version mismatch")

// Mode selects how a record stores probe hits.
type Mode uint8

const (
	// ModeBoolean stores 1 for every probe that executed at least once.
	ModeBoolean Mode = iota
	// ModeCount counts executions, saturating at math.MaxUint32.
	ModeCount
)

func (m Mode) String() string {
	switch m {
	case ModeBoolean:
		return "boolean"
	case ModeCount:
		return "count"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses "boolean" or "count".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "boolean", "bool":
		return ModeBoolean, nil
	case "count":
		return ModeCount, nil
	default:
		return 0, fmt.Errorf("unknown record mode %q", s)
	}
}

// Record holds the probe vector of one class. Hit is safe for concurrent
// use without additional locking.
type Record struct {
	id     uint64
	name   string
	mode   Mode
	probes []atomic.Uint32
}

// NewRecord allocates a record with n probes, all unexecuted.
func NewRecord(id uint64, name string, n int, mode Mode) *Record {
	return &Record{id: id, name: name, mode: mode, probes: make([]atomic.Uint32, n)}
}

// ID returns the class id.
func (r *Record) ID() uint64 { return r.id }

// Name returns the internal class name.
func (r *Record) Name() string { return r.name }

// Mode returns the storage mode.
func (r *Record) Mode() Mode { return r.mode }

// Len returns the number of probes.
func (r *Record) Len() int { return len(r.probes) }

// Hit marks probe i as executed. Out-of-range ids are ignored.
func (r *Record) Hit(i int) {
	if i < 0 || i >= len(r.probes) {
		return
	}
	p := &r.probes[i]
	if r.mode == ModeBoolean {
		if p.Load() == 0 {
			p.Store(1)
		}
		return
	}
	addSaturating(p, 1)
}

func addSaturating(p *atomic.Uint32, n uint32) {
	for {
		old := p.Load()
		if old == math.MaxUint32 {
			return
		}
		next := old + n
		if next < old {
			next = math.MaxUint32
		}
		if p.CompareAndSwap(old, next) {
			return
		}
	}
}

// Executed reports whether probe i fired.
func (r *Record) Executed(i int) bool {
	return i >= 0 && i < len(r.probes) && r.probes[i].Load() > 0
}

// Probes returns a snapshot of the executed flags.
func (r *Record) Probes() []bool {
	out := make([]bool, len(r.probes))
	for i := range r.probes {
		out[i] = r.probes[i].Load() > 0
	}
	return out
}

// Counts returns a snapshot of the raw probe values.
func (r *Record) Counts() []uint32 {
	out := make([]uint32, len(r.probes))
	for i := range r.probes {
		out[i] = r.probes[i].Load()
	}
	return out
}

// Covered returns the number of probes that fired.
func (r *Record) Covered() int {
	n := 0
	for i := range r.probes {
		if r.probes[i].Load() > 0 {
			n++
		}
	}
	return n
}

// Reset clears every probe.
func (r *Record) Reset() {
	for i := range r.probes {
		r.probes[i].Store(0)
	}
}

// Clone returns an independent snapshot of the record.
func (r *Record) Clone() *Record {
	c := NewRecord(r.id, r.name, len(r.probes), r.mode)
	for i := range r.probes {
		c.probes[i].Store(r.probes[i].Load())
	}
	return c
}

// Merge folds other into r: OR in boolean mode, saturating addition in
// count mode. Merging is commutative and associative.
func (r *Record) Merge(other *Record) error {
	if r.id != other.id || r.name != other.name || len(r.probes) != len(other.probes) {
		return fmt.Errorf("%w: cannot merge %s/%016x[%d] with %s/%016x[%d]", ErrVersionMismatch,
			r.name, r.id, len(r.probes), other.name, other.id, len(other.probes))
	}
	for i := range other.probes {
		v := other.probes[i].Load()
		if v == 0 {
			continue
		}
		if r.mode == ModeBoolean {
			r.probes[i].Store(1)
		} else {
			addSaturating(&r.probes[i], v)
		}
	}
	return nil
}

// load overwrites the probe values after decoding.
func (r *Record) load(values []uint32) {
	for i, v := range values {
		if i >= len(r.probes) {
			return
		}
		if r.mode == ModeBoolean && v > 0 {
			v = 1
		}
		r.probes[i].Store(v)
	}
}
