// Package harness executes lesson scenarios against the ownership
// primitives and records what happened as a deterministic trace.
//
// # Scenario format
//
// Scenarios are YAML documents:
//
//	name: shared_then_exclusive
//	summary: A write ticket is refused while a read ticket is out.
//	run_token: golden-shared-then-exclusive
//	steps:
//	  - op: cell.new
//	    as: counter
//	    args: {value: 5}
//	  - op: cell.borrow
//	    as: reader
//	    args: {cell: counter}
//	  - op: cell.borrow_mut
//	    as: writer
//	    args: {cell: counter}
//	    expect:
//	      violation: BORROW_CONFLICT
//
// Each step invokes one op against the session's named bindings. "as"
// names the binding a constructing op produces; later steps refer to
// it by that name. "expect" checks the step's recorded outcome:
//
//   - result: subset match against the outcome's result object
//   - violation: the fault code the step must die with
//   - messages: the exact ordered notifier output of a quota.set step
//
// run_token fixes the token stamped into every record, which makes the
// whole trace reproducible byte for byte; scenarios without one get a
// fresh UUIDv7 per run.
//
// # Execution model
//
// A Session executes steps strictly in order against one heap of
// shared scalars and lists, one set of named bindings, and one logical
// clock. Every step appends exactly two records: a Step saying what
// was asked (op and arguments, odd seq) and an Outcome saying what
// happened (output case and result, even seq). Record IDs are content
// hashes over canonical JSON, so one scenario with one run token
// yields one byte-exact trace, run after run.
//
// A fatal usage violation ends the scenario at the step that raised
// it: the step's outcome carries output case "violation" and no later
// step runs. Scenario validation therefore requires a step expecting a
// violation to be the final step. An unexpected violation fails the
// scenario; an expected one that does not occur fails it too.
//
// # Ops
//
//	cell.new/borrow/borrow_mut/read/write/release   runtime-checked cell
//	rc.alloc/retain/release/refs/get/set            shared scalars
//	list.cons/retain/release/render/items/refs      shared cons lists
//	quota.new/set                                   threshold notifier
//	box.new/get/set/move/take                       owning box
//	types.name                                      inference probe
//
// Release ops leave their binding in place on purpose: reading through
// a released ticket or a dead handle is exactly the misuse the
// primitives exist to catch, and scenarios demonstrate it by doing it.
package harness
