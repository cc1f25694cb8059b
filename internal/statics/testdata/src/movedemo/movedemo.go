// Package movedemo exercises the movecheck analyzer with a
// self-contained box type and a consuming free function.
package movedemo

type box struct {
	v string
}

// take moves the contents out of the box.
//
//movecheck:consumes b
func (b *box) take() string {
	s := b.v
	b.v = ""
	return s
}

// store takes ownership of its argument.
//
//movecheck:consumes s
func store(s string) int {
	return len(s)
}

// give consumes only its second argument.
//
//movecheck:consumes owned
func give(borrowed string, owned string) string {
	return borrowed + owned
}

func useAfterConsumingCall() {
	s := "hello"
	n := store(s)
	_ = n
	println(s) // want `use of moved value: s`
}

func useAfterMethodMove() {
	b := &box{v: "x"}
	taken := b.take()
	_ = taken
	println(b.v) // want `use of moved value: b`
}

func consumeTwice() {
	s := "x"
	_ = store(s)
	_ = store(s) // want `use of moved value: s`
}

func onlyOwnedSlotConsumes() {
	keep := "keep"
	gone := "gone"
	_ = give(keep, gone)
	println(keep)
	println(gone) // want `use of moved value: gone`
}

func reassignmentRevives() {
	s := "first"
	_ = store(s)
	s = "second"
	println(s)
}

func addressOfMovedValue() {
	s := "x"
	_ = store(s)
	p := &s // want `use of moved value: s`
	_ = p
}

func cleanSequence() {
	s := "fine"
	println(s)
	_ = store(s)
}
