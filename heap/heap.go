// Package heap implements gel's object store: a two-generation,
// semispace-copying garbage collector.
//
// The original interpreter represents a Pointer as a raw address into a
// byte-addressed memory region, with an object header living directly
// in front of the payload. Go gives no safe way to reinterpret a slice
// offset as a typed struct pointer without `unsafe`, so Pointer here is
// an opaque handle — {space, index} — into a Semispace's slot table,
// and the header is a Go struct stored in the same slot as its payload
// rather than raw bytes in front of it. The allocation discipline (bump-pointer new space,
// Cheney-style copy-and-forward on collection, tenuring into an old
// space after surviving collections) is unchanged; only the addressing
// scheme is idiomatic Go instead of a transliterated C++ pointer.
package heap

import "fmt"

// spaceID identifies which region a Pointer was allocated from.
type spaceID uint8

const (
	spaceFrom spaceID = iota + 1
	spaceTo
	spaceOld
)

// Pointer is a handle to a live heap slot. It is stable across a
// Semispace's lifetime but is rewritten by Collect when its referent is
// copied — callers must re-resolve a Pointer (via Heap.Header/Heap.Get)
// after every collection rather than caching the slot index.
type Pointer struct {
	space spaceID
	index int
}

// IsNil reports whether p is the zero Pointer, used as the null
// reference.
func (p Pointer) IsNil() bool { return p.space == 0 && p.index == 0 }

func (p Pointer) String() string { return fmt.Sprintf("Pointer(%d:%d)", p.space, p.index) }

// Header is the per-object metadata stored with each payload: a
// ClassID for callers plus Marked and Forward fields. MinorCollect and
// MajorCollect track forwarding and reachability in maps local to each
// collection; they do not write Marked or Forward.
type Header struct {
	// ClassID identifies the payload's runtime type for root scanning;
	// the heap package itself is agnostic to what it stores (an
	// object.Object), ClassID is opaque bookkeeping for callers.
	ClassID int
	// Marked is carried as given; no collector in this package sets it.
	Marked bool
	// Forward is carried as given; no collector in this package sets it.
	Forward Pointer
	forwarded bool
}

// slot holds one object's header and opaque payload together.
type slot struct {
	header  Header
	payload any
}

// Semispace is a bump-allocated, linearly scannable region of slots.
type Semispace struct {
	id       spaceID
	slots    []slot
	capacity int
}

func newSemispace(id spaceID, capacity int) *Semispace {
	return &Semispace{id: id, slots: make([]slot, 0, capacity), capacity: capacity}
}

// TryAllocate appends payload with the given header, returning the new
// Pointer, or ok=false if the space is full.
func (s *Semispace) TryAllocate(header Header, payload any) (Pointer, bool) {
	if len(s.slots) >= s.capacity {
		return Pointer{}, false
	}
	s.slots = append(s.slots, slot{header: header, payload: payload})
	return Pointer{space: s.id, index: len(s.slots) - 1}, true
}

// NumAllocated reports how many slots are currently occupied.
func (s *Semispace) NumAllocated() int { return len(s.slots) }

// Capacity reports the maximum number of slots this space can hold.
func (s *Semispace) Capacity() int { return s.capacity }

// reset empties the space for reuse as the new to-space after a flip.
func (s *Semispace) reset() { s.slots = s.slots[:0] }

// Heap is gel's object store: a new generation (from/to semispaces, the
// classic Cheney design) plus an old generation for objects that have
// survived enough minor collections to be tenured.
type Heap struct {
	from, to *Semispace
	old      *Semispace

	tenureAfter int
	survivors   map[Pointer]int

	// NumMinorCollections and NumMajorCollections are exposed for the
	// `gc:stats` debug native and disasm reporting.
	NumMinorCollections int
	NumMajorCollections int
}

// Config controls the sizes of a new Heap's generations.
type Config struct {
	NewSpaceSize int
	OldSpaceSize int
	// TenureAfter is how many minor collections an object must survive
	// before it is promoted into the old generation. A value of 0
	// disables tenuring — objects stay in new space until explicitly
	// major-collected.
	TenureAfter int
}

// DefaultConfig returns reasonable generation sizes for an interactive
// session or short-lived script.
func DefaultConfig() Config {
	return Config{NewSpaceSize: 4096, OldSpaceSize: 16384, TenureAfter: 2}
}

// New creates a Heap per cfg.
func New(cfg Config) *Heap {
	return &Heap{
		from:        newSemispace(spaceFrom, cfg.NewSpaceSize),
		to:          newSemispace(spaceTo, cfg.NewSpaceSize),
		old:         newSemispace(spaceOld, cfg.OldSpaceSize),
		tenureAfter: cfg.TenureAfter,
		survivors:   make(map[Pointer]int),
	}
}

// RootProvider supplies the set of Pointers directly reachable from
// outside the heap — the operand stack, frame locals, globals, and the
// current exception in flight. The collector copies everything
// transitively reachable from these roots and discards the rest.
type RootProvider interface {
	Roots() []Pointer
}

// ChildVisitor is implemented by a payload that itself holds Pointers
// (a Pair's Car/Cdr, an Array's elements, an Instance's fields) so the
// collector can trace through it. Payloads with no Pointer fields don't
// need to implement it.
type ChildVisitor interface {
	VisitChildren(func(Pointer) Pointer)
}

// Allocate stores payload in new space, triggering a minor collection
// via roots if the space is full. It returns an error only if the
// object still doesn't fit after collecting — i.e. the new generation
// itself is undersized for this allocation.
func (h *Heap) Allocate(header Header, payload any, roots RootProvider) (Pointer, error) {
	if ptr, ok := h.from.TryAllocate(header, payload); ok {
		return ptr, nil
	}
	h.MinorCollect(roots)
	if ptr, ok := h.from.TryAllocate(header, payload); ok {
		return ptr, nil
	}
	return Pointer{}, fmt.Errorf("heap: new space exhausted, requested allocation does not fit after collection")
}

// Header returns the header for ptr.
func (h *Heap) Header(ptr Pointer) Header {
	return h.space(ptr.space).slots[ptr.index].header
}

// Get returns the payload stored at ptr.
func (h *Heap) Get(ptr Pointer) any {
	return h.space(ptr.space).slots[ptr.index].payload
}

// Set overwrites the payload stored at ptr, used by SetField/SetExpr
// mutation.
func (h *Heap) Set(ptr Pointer, payload any) {
	sp := h.space(ptr.space)
	sp.slots[ptr.index].payload = payload
}

func (h *Heap) space(id spaceID) *Semispace {
	switch id {
	case spaceFrom:
		return h.from
	case spaceTo:
		return h.to
	default:
		return h.old
	}
}

// MinorCollect performs a Cheney copying collection of the new
// generation: every object transitively reachable from roots is copied
// from from-space into to-space (or tenured into old-space, if it has
// survived TenureAfter prior collections), from/to are then swapped,
// and the old from-space is discarded wholesale.
func (h *Heap) MinorCollect(roots RootProvider) {
	h.NumMinorCollections++
	h.to.reset()

	forwarded := make(map[Pointer]Pointer)
	var worklist []Pointer

	forward := func(p Pointer) Pointer {
		if p.IsNil() || p.space != spaceFrom {
			return p
		}
		if np, ok := forwarded[p]; ok {
			return np
		}
		sl := h.from.slots[p.index]
		survivals := h.survivors[p] + 1

		var np Pointer
		var ok bool
		if h.tenureAfter > 0 && survivals >= h.tenureAfter {
			np, ok = h.old.TryAllocate(sl.header, sl.payload)
		}
		if !ok {
			np, ok = h.to.TryAllocate(sl.header, sl.payload)
			if ok {
				h.survivors[np] = survivals
			}
		}
		if !ok {
			// Both to-space and old-space are exhausted; leave the
			// object in place rather than losing it. A well-sized heap
			// should never hit this.
			return p
		}
		forwarded[p] = np
		worklist = append(worklist, np)
		return np
	}

	for _, r := range roots.Roots() {
		forward(r)
	}
	for len(worklist) > 0 {
		p := worklist[0]
		worklist = worklist[1:]
		sl := &h.space(p.space).slots[p.index]
		if cv, ok := sl.payload.(ChildVisitor); ok {
			cv.VisitChildren(forward)
		}
	}

	h.from, h.to = h.to, h.from
	h.from.id, h.to.id = spaceFrom, spaceTo

	next := make(map[Pointer]int, len(forwarded))
	for _, np := range forwarded {
		if np.space == spaceFrom {
			if s, ok := h.survivors[np]; ok {
				next[np] = s
			}
		}
	}
	h.survivors = next
}

// MajorCollect performs a full mark-sweep-compact pass over the old
// generation in addition to a minor collection of new space. gel's old
// space never needs copying — tenured objects are long-lived by
// assumption — so major collection only marks reachable old-space slots
// and compacts the survivors down, dropping the rest.
func (h *Heap) MajorCollect(roots RootProvider) {
	h.NumMajorCollections++
	h.MinorCollect(roots)

	reachable := make(map[int]bool)
	var mark func(Pointer)
	mark = func(p Pointer) {
		if p.IsNil() || p.space != spaceOld || reachable[p.index] {
			return
		}
		reachable[p.index] = true
		if cv, ok := h.old.slots[p.index].payload.(ChildVisitor); ok {
			cv.VisitChildren(func(child Pointer) Pointer {
				mark(child)
				return child
			})
		}
	}
	for _, r := range roots.Roots() {
		mark(r)
	}

	kept := make([]slot, 0, len(h.old.slots))
	remap := make(map[int]int, len(h.old.slots))
	for i, sl := range h.old.slots {
		if reachable[i] {
			remap[i] = len(kept)
			kept = append(kept, sl)
		}
	}
	h.old.slots = kept
	for i := range h.old.slots {
		if cv, ok := h.old.slots[i].payload.(ChildVisitor); ok {
			cv.VisitChildren(func(child Pointer) Pointer {
				if child.space != spaceOld {
					return child
				}
				if ni, ok := remap[child.index]; ok {
					return Pointer{space: spaceOld, index: ni}
				}
				return Pointer{}
			})
		}
	}
}

// Stats is the snapshot returned by the `gc:stats` debug native.
type Stats struct {
	NewSpaceUsed, NewSpaceCapacity int
	OldSpaceUsed, OldSpaceCapacity int
	MinorCollections, MajorCollections int
}

// Stat returns a snapshot of the heap's current occupancy.
func (h *Heap) Stat() Stats {
	return Stats{
		NewSpaceUsed:       h.from.NumAllocated(),
		NewSpaceCapacity:    h.from.Capacity(),
		OldSpaceUsed:        h.old.NumAllocated(),
		OldSpaceCapacity:    h.old.Capacity(),
		MinorCollections:    h.NumMinorCollections,
		MajorCollections:    h.NumMajorCollections,
	}
}
