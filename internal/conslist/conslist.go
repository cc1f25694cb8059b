// Package conslist builds shared, mutable cons lists on top of the
// arena and cell packages.
//
// A list is a chain of nodes, each holding a handle to a shared scalar
// and a handle to its tail. Scalars and nodes live in two separate
// reference-counted arenas, so several list heads can own one common
// tail subgraph and one scalar can be owned both by a node and by the
// surrounding scope. The scalar sits behind a cell, making in-place
// mutation runtime-checked and visible through every owner at once.
//
// Ownership follows the classic retain/release discipline: Cons
// retains the handles it links, callers keep their own counts and
// release them when their scope ends. References between nodes only
// ever point from a newer node to an older one, so the graph is
// acyclic by construction and eviction needs no cycle collector.
package conslist

import (
	"fmt"
	"strings"

	"github.com/castamos/learn-rust-by-testing/internal/arena"
	"github.com/castamos/learn-rust-by-testing/internal/cell"
)

// node links one shared scalar to the rest of the list. A zero tail
// handle terminates the chain.
type node struct {
	value arena.Handle
	tail  arena.Handle
}

// Heap owns the two arenas a list graph lives in.
type Heap[T any] struct {
	values *arena.Arena[*cell.Cell[T]]
	nodes  *arena.Arena[node]
}

// NewHeap returns an empty heap.
func NewHeap[T any]() *Heap[T] {
	return &Heap[T]{
		values: arena.New[*cell.Cell[T]](),
		nodes:  arena.New[node](),
	}
}

// NewValue allocates a shared scalar with an owner count of one. The
// caller owns that count and must release it when its scope ends.
func (h *Heap[T]) NewValue(v T) arena.Handle {
	return h.values.Alloc(cell.New(v))
}

// RetainValue adds an owner to a shared scalar.
func (h *Heap[T]) RetainValue(v arena.Handle) arena.Handle {
	return h.values.Retain(v)
}

// ReleaseValue removes an owner from a shared scalar.
func (h *Heap[T]) ReleaseValue(v arena.Handle) {
	h.values.Release(v)
}

// GetValue reads a shared scalar through a scoped read ticket.
func (h *Heap[T]) GetValue(v arena.Handle) T {
	r := h.values.Get(v).Borrow()
	defer r.Release()
	return r.Get()
}

// SetValue replaces a shared scalar through a scoped write ticket.
// The new value is immediately visible to every owner of the scalar.
func (h *Heap[T]) SetValue(v arena.Handle, val T) {
	w := h.values.Get(v).BorrowMut()
	defer w.Release()
	w.Set(val)
}

// ValueRefCount returns the owner count of a shared scalar.
func (h *Heap[T]) ValueRefCount(v arena.Handle) int {
	return h.values.RefCount(v)
}

// Cons allocates a node linking value to tail and returns its handle
// with an owner count of one. The node retains both handles: the
// caller's own counts are untouched and remain the caller's to
// release. A zero tail handle ends the list.
func (h *Heap[T]) Cons(value, tail arena.Handle) arena.Handle {
	h.values.Retain(value)
	if !tail.IsZero() {
		h.nodes.Retain(tail)
	}
	return h.nodes.Alloc(node{value: value, tail: tail})
}

// Retain adds an owner to a list head.
func (h *Heap[T]) Retain(list arena.Handle) arena.Handle {
	return h.nodes.Retain(list)
}

// Release removes an owner from a list head. When a node's count
// reaches zero the node is evicted and its counts on the scalar and
// the tail are released in turn, walking down the chain until a node
// survives through another owner.
func (h *Heap[T]) Release(list arena.Handle) {
	cur := list
	for !cur.IsZero() {
		n := h.nodes.Get(cur)
		if h.nodes.Release(cur) > 0 {
			return
		}
		h.values.Release(n.value)
		cur = n.tail
	}
}

// RefCount returns the owner count of a list node.
func (h *Heap[T]) RefCount(list arena.Handle) int {
	return h.nodes.RefCount(list)
}

// Items reads the current scalar values along the chain. Mutations
// through any owner are reflected, not the values at construction
// time.
func (h *Heap[T]) Items(list arena.Handle) []T {
	var items []T
	for cur := list; !cur.IsZero(); {
		n := h.nodes.Get(cur)
		items = append(items, h.GetValue(n.value))
		cur = n.tail
	}
	return items
}

// String renders the chain's current values as "[3, 10]".
func (h *Heap[T]) String(list arena.Handle) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range h.Items(list) {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%v", v)
	}
	b.WriteByte(']')
	return b.String()
}

// LiveValues returns the number of live scalar slots.
func (h *Heap[T]) LiveValues() int {
	return h.values.Live()
}

// LiveNodes returns the number of live node slots. A demonstration
// that ends with live slots has leaked owners.
func (h *Heap[T]) LiveNodes() int {
	return h.nodes.Live()
}
