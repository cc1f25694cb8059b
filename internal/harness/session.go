package harness

import (
	"fmt"
	"math"

	"github.com/castamos/learn-rust-by-testing/internal/arena"
	"github.com/castamos/learn-rust-by-testing/internal/boxed"
	"github.com/castamos/learn-rust-by-testing/internal/cell"
	"github.com/castamos/learn-rust-by-testing/internal/conslist"
	"github.com/castamos/learn-rust-by-testing/internal/fault"
	"github.com/castamos/learn-rust-by-testing/internal/quota"
	"github.com/castamos/learn-rust-by-testing/internal/statics"
	"github.com/castamos/learn-rust-by-testing/internal/trace"
)

// opSpec ties an op name to its executor. binds marks ops that produce
// a named binding and so require the step's "as" field.
type opSpec struct {
	binds bool
	run   func(s *Session, st Step) (trace.Object, error)
}

// ops is the whole vocabulary scenarios can speak.
var ops = map[string]opSpec{
	"cell.new":        {binds: true, run: (*Session).opCellNew},
	"cell.borrow":     {binds: true, run: (*Session).opCellBorrow},
	"cell.borrow_mut": {binds: true, run: (*Session).opCellBorrowMut},
	"cell.read":       {run: (*Session).opCellRead},
	"cell.write":      {run: (*Session).opCellWrite},
	"cell.release":    {run: (*Session).opCellRelease},

	"rc.alloc":   {binds: true, run: (*Session).opRcAlloc},
	"rc.retain":  {binds: true, run: (*Session).opRcRetain},
	"rc.release": {run: (*Session).opRcRelease},
	"rc.refs":    {run: (*Session).opRcRefs},
	"rc.get":     {run: (*Session).opRcGet},
	"rc.set":     {run: (*Session).opRcSet},

	"list.cons":    {binds: true, run: (*Session).opListCons},
	"list.retain":  {binds: true, run: (*Session).opListRetain},
	"list.release": {run: (*Session).opListRelease},
	"list.render":  {run: (*Session).opListRender},
	"list.items":   {run: (*Session).opListItems},
	"list.refs":    {run: (*Session).opListRefs},

	"quota.new": {binds: true, run: (*Session).opQuotaNew},
	"quota.set": {run: (*Session).opQuotaSet},

	"box.new":  {binds: true, run: (*Session).opBoxNew},
	"box.get":  {run: (*Session).opBoxGet},
	"box.set":  {run: (*Session).opBoxSet},
	"box.move": {binds: true, run: (*Session).opBoxMove},
	"box.take": {run: (*Session).opBoxTake},

	"types.name": {run: (*Session).opTypesName},
}

// trackerBinding pairs a tracker with the recorder wired as its sink.
// seen counts the messages earlier quota.set steps already reported,
// so each step's result carries only what that call emitted.
type trackerBinding struct {
	tracker  *quota.Tracker
	recorder *quota.Recorder
	seen     int
}

// Session holds the mutable world one scenario executes against:
// named bindings over one heap, plus the trace being recorded.
//
// Bindings are never removed. A release op leaves its name pointing at
// the released ticket or dead handle, so a later step can demonstrate
// the use-after-release family of violations through it.
type Session struct {
	runToken string
	clock    *trace.Clock
	heap     *conslist.Heap[int64]

	cells    map[string]*cell.Cell[int64]
	readers  map[string]*cell.Ref[int64]
	writers  map[string]*cell.RefMut[int64]
	values   map[string]arena.Handle
	lists    map[string]arena.Handle
	trackers map[string]*trackerBinding
	boxes    map[string]*boxed.Box[int64]

	steps    []trace.Step
	outcomes []trace.Outcome
}

// NewSession returns an empty session whose records all carry
// runToken. The logical clock starts at zero, so the first step is
// seq 1 and its outcome seq 2.
func NewSession(runToken string) *Session {
	return &Session{
		runToken: runToken,
		clock:    trace.NewClock(),
		heap:     conslist.NewHeap[int64](),
		cells:    map[string]*cell.Cell[int64]{},
		readers:  map[string]*cell.Ref[int64]{},
		writers:  map[string]*cell.RefMut[int64]{},
		values:   map[string]arena.Handle{},
		lists:    map[string]arena.Handle{},
		trackers: map[string]*trackerBinding{},
		boxes:    map[string]*boxed.Box[int64]{},
	}
}

// RunToken returns the token every record of this session carries.
func (s *Session) RunToken() string {
	return s.runToken
}

// Recorded returns the trace appended so far, steps and outcomes
// paired by index.
func (s *Session) Recorded() ([]trace.Step, []trace.Outcome) {
	return s.steps, s.outcomes
}

// Execute runs one step and appends its Step and Outcome records.
//
// A fault.Violation raised by the op is caught here, at the runner
// boundary, and recorded as a "violation" outcome; whether that passes
// or fails the scenario is the expectation's business. The returned
// error covers authoring problems instead (unknown ops, unknown
// bindings, malformed arguments), which abort the run without
// recording anything.
func (s *Session) Execute(st Step) (trace.Step, trace.Outcome, error) {
	spec, ok := ops[st.Op]
	if !ok {
		return trace.Step{}, trace.Outcome{}, fmt.Errorf("unknown op %q", st.Op)
	}
	args, err := convertArgs(st.Args)
	if err != nil {
		return trace.Step{}, trace.Outcome{}, fmt.Errorf("%s: %w", st.Op, err)
	}
	rec, err := trace.NewStep(s.runToken, st.Op, args, s.clock.Next())
	if err != nil {
		return trace.Step{}, trace.Outcome{}, fmt.Errorf("%s: %w", st.Op, err)
	}

	var result trace.Object
	var opErr error
	violation := fault.Catch(func() {
		result, opErr = spec.run(s, st)
	})
	if opErr != nil {
		return trace.Step{}, trace.Outcome{}, fmt.Errorf("%s: %w", st.Op, opErr)
	}

	outputCase := trace.OutputOK
	if violation != nil {
		outputCase = trace.OutputViolation
		result = trace.Object{
			"code": trace.Str(string(violation.Code)),
			"op":   trace.Str(violation.Op),
		}
	}
	if result == nil {
		result = trace.Object{}
	}
	out, err := trace.NewOutcome(rec.ID, outputCase, result, s.clock.Next())
	if err != nil {
		return trace.Step{}, trace.Outcome{}, fmt.Errorf("%s: %w", st.Op, err)
	}

	s.steps = append(s.steps, rec)
	s.outcomes = append(s.outcomes, out)
	return rec, out, nil
}

// bind reserves a fresh binding name. Names are unique across all
// binding kinds; reusing one is an authoring error, not a violation.
func (s *Session) bind(name string) error {
	if s.bound(name) {
		return fmt.Errorf("binding %q already exists", name)
	}
	return nil
}

func (s *Session) bound(name string) bool {
	if _, ok := s.cells[name]; ok {
		return true
	}
	if _, ok := s.readers[name]; ok {
		return true
	}
	if _, ok := s.writers[name]; ok {
		return true
	}
	if _, ok := s.values[name]; ok {
		return true
	}
	if _, ok := s.lists[name]; ok {
		return true
	}
	if _, ok := s.trackers[name]; ok {
		return true
	}
	if _, ok := s.boxes[name]; ok {
		return true
	}
	return false
}

func (s *Session) cellNamed(name string) (*cell.Cell[int64], error) {
	c, ok := s.cells[name]
	if !ok {
		return nil, fmt.Errorf("unknown cell %q", name)
	}
	return c, nil
}

func (s *Session) valueNamed(name string) (arena.Handle, error) {
	h, ok := s.values[name]
	if !ok {
		return arena.Handle{}, fmt.Errorf("unknown value %q", name)
	}
	return h, nil
}

func (s *Session) listNamed(name string) (arena.Handle, error) {
	h, ok := s.lists[name]
	if !ok {
		return arena.Handle{}, fmt.Errorf("unknown list %q", name)
	}
	return h, nil
}

func (s *Session) trackerNamed(name string) (*trackerBinding, error) {
	tb, ok := s.trackers[name]
	if !ok {
		return nil, fmt.Errorf("unknown tracker %q", name)
	}
	return tb, nil
}

func (s *Session) boxNamed(name string) (*boxed.Box[int64], error) {
	b, ok := s.boxes[name]
	if !ok {
		return nil, fmt.Errorf("unknown box %q", name)
	}
	return b, nil
}

// Cell ops.

func (s *Session) opCellNew(st Step) (trace.Object, error) {
	v, err := argInt(st.Args, "value")
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	s.cells[st.As] = cell.New(v)
	return trace.Object{"value": trace.Int(v)}, nil
}

func (s *Session) opCellBorrow(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "cell")
	if err != nil {
		return nil, err
	}
	c, err := s.cellNamed(name)
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	s.readers[st.As] = c.Borrow()
	return trace.Object{"readers": trace.Int(int64(c.Readers()))}, nil
}

func (s *Session) opCellBorrowMut(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "cell")
	if err != nil {
		return nil, err
	}
	c, err := s.cellNamed(name)
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	s.writers[st.As] = c.BorrowMut()
	return trace.Object{"writing": trace.Bool(true)}, nil
}

func (s *Session) opCellRead(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "ticket")
	if err != nil {
		return nil, err
	}
	if r, ok := s.readers[name]; ok {
		return trace.Object{"value": trace.Int(r.Get())}, nil
	}
	if w, ok := s.writers[name]; ok {
		return trace.Object{"value": trace.Int(w.Get())}, nil
	}
	return nil, fmt.Errorf("unknown ticket %q", name)
}

func (s *Session) opCellWrite(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "ticket")
	if err != nil {
		return nil, err
	}
	to, err := argInt(st.Args, "to")
	if err != nil {
		return nil, err
	}
	w, ok := s.writers[name]
	if !ok {
		if _, isReader := s.readers[name]; isReader {
			return nil, fmt.Errorf("ticket %q grants read access only", name)
		}
		return nil, fmt.Errorf("unknown ticket %q", name)
	}
	w.Set(to)
	return trace.Object{"value": trace.Int(to)}, nil
}

func (s *Session) opCellRelease(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "ticket")
	if err != nil {
		return nil, err
	}
	if r, ok := s.readers[name]; ok {
		r.Release()
		return trace.Object{}, nil
	}
	if w, ok := s.writers[name]; ok {
		w.Release()
		return trace.Object{}, nil
	}
	return nil, fmt.Errorf("unknown ticket %q", name)
}

// Shared scalar ops.

func (s *Session) opRcAlloc(st Step) (trace.Object, error) {
	v, err := argInt(st.Args, "value")
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	h := s.heap.NewValue(v)
	s.values[st.As] = h
	return trace.Object{"refs": trace.Int(int64(s.heap.ValueRefCount(h)))}, nil
}

func (s *Session) opRcRetain(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "value")
	if err != nil {
		return nil, err
	}
	h, err := s.valueNamed(name)
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	s.values[st.As] = s.heap.RetainValue(h)
	return trace.Object{"refs": trace.Int(int64(s.heap.ValueRefCount(h)))}, nil
}

func (s *Session) opRcRelease(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "value")
	if err != nil {
		return nil, err
	}
	h, err := s.valueNamed(name)
	if err != nil {
		return nil, err
	}
	s.heap.ReleaseValue(h)
	return trace.Object{}, nil
}

func (s *Session) opRcRefs(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "value")
	if err != nil {
		return nil, err
	}
	h, err := s.valueNamed(name)
	if err != nil {
		return nil, err
	}
	return trace.Object{"refs": trace.Int(int64(s.heap.ValueRefCount(h)))}, nil
}

func (s *Session) opRcGet(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "value")
	if err != nil {
		return nil, err
	}
	h, err := s.valueNamed(name)
	if err != nil {
		return nil, err
	}
	return trace.Object{"value": trace.Int(s.heap.GetValue(h))}, nil
}

func (s *Session) opRcSet(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "value")
	if err != nil {
		return nil, err
	}
	to, err := argInt(st.Args, "to")
	if err != nil {
		return nil, err
	}
	h, err := s.valueNamed(name)
	if err != nil {
		return nil, err
	}
	s.heap.SetValue(h, to)
	return trace.Object{"value": trace.Int(to)}, nil
}

// List ops.

func (s *Session) opListCons(st Step) (trace.Object, error) {
	valueName, err := argString(st.Args, "value")
	if err != nil {
		return nil, err
	}
	v, err := s.valueNamed(valueName)
	if err != nil {
		return nil, err
	}
	var tail arena.Handle
	if tailName, ok, err := optionalArgString(st.Args, "tail"); err != nil {
		return nil, err
	} else if ok {
		if tail, err = s.listNamed(tailName); err != nil {
			return nil, err
		}
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	head := s.heap.Cons(v, tail)
	s.lists[st.As] = head
	return trace.Object{"len": trace.Int(int64(len(s.heap.Items(head))))}, nil
}

func (s *Session) opListRetain(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "list")
	if err != nil {
		return nil, err
	}
	h, err := s.listNamed(name)
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	s.lists[st.As] = s.heap.Retain(h)
	return trace.Object{"refs": trace.Int(int64(s.heap.RefCount(h)))}, nil
}

func (s *Session) opListRelease(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "list")
	if err != nil {
		return nil, err
	}
	h, err := s.listNamed(name)
	if err != nil {
		return nil, err
	}
	s.heap.Release(h)
	return trace.Object{}, nil
}

func (s *Session) opListRender(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "list")
	if err != nil {
		return nil, err
	}
	h, err := s.listNamed(name)
	if err != nil {
		return nil, err
	}
	return trace.Object{"text": trace.Str(s.heap.String(h))}, nil
}

func (s *Session) opListItems(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "list")
	if err != nil {
		return nil, err
	}
	h, err := s.listNamed(name)
	if err != nil {
		return nil, err
	}
	items := s.heap.Items(h)
	arr := make(trace.Array, 0, len(items))
	for _, v := range items {
		arr = append(arr, trace.Int(v))
	}
	return trace.Object{"items": arr}, nil
}

func (s *Session) opListRefs(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "list")
	if err != nil {
		return nil, err
	}
	h, err := s.listNamed(name)
	if err != nil {
		return nil, err
	}
	return trace.Object{"refs": trace.Int(int64(s.heap.RefCount(h)))}, nil
}

// Quota ops.

func (s *Session) opQuotaNew(st Step) (trace.Object, error) {
	max, err := argInt(st.Args, "max")
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, fmt.Errorf("max must be positive, got %d", max)
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	rec := quota.NewRecorder()
	s.trackers[st.As] = &trackerBinding{
		tracker:  quota.NewTracker(rec, max),
		recorder: rec,
	}
	return trace.Object{"max": trace.Int(max)}, nil
}

func (s *Session) opQuotaSet(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "tracker")
	if err != nil {
		return nil, err
	}
	v, err := argInt(st.Args, "value")
	if err != nil {
		return nil, err
	}
	tb, err := s.trackerNamed(name)
	if err != nil {
		return nil, err
	}
	tb.tracker.SetValue(v)

	all := tb.recorder.Messages()
	emitted := all[tb.seen:]
	tb.seen = len(all)

	msgs := make(trace.Array, 0, len(emitted))
	for _, m := range emitted {
		msgs = append(msgs, trace.Str(m.Text))
	}
	return trace.Object{"messages": msgs}, nil
}

// Box ops.

func (s *Session) opBoxNew(st Step) (trace.Object, error) {
	v, err := argInt(st.Args, "value")
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	s.boxes[st.As] = boxed.New(v)
	return trace.Object{"value": trace.Int(v)}, nil
}

func (s *Session) opBoxGet(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "box")
	if err != nil {
		return nil, err
	}
	b, err := s.boxNamed(name)
	if err != nil {
		return nil, err
	}
	return trace.Object{"value": trace.Int(b.Get())}, nil
}

func (s *Session) opBoxSet(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "box")
	if err != nil {
		return nil, err
	}
	to, err := argInt(st.Args, "to")
	if err != nil {
		return nil, err
	}
	b, err := s.boxNamed(name)
	if err != nil {
		return nil, err
	}
	b.Set(to)
	return trace.Object{"value": trace.Int(to)}, nil
}

func (s *Session) opBoxMove(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "box")
	if err != nil {
		return nil, err
	}
	b, err := s.boxNamed(name)
	if err != nil {
		return nil, err
	}
	if err := s.bind(st.As); err != nil {
		return nil, err
	}
	s.boxes[st.As] = b.Move()
	return trace.Object{}, nil
}

func (s *Session) opBoxTake(st Step) (trace.Object, error) {
	name, err := argString(st.Args, "box")
	if err != nil {
		return nil, err
	}
	b, err := s.boxNamed(name)
	if err != nil {
		return nil, err
	}
	return trace.Object{"value": trace.Int(b.Take())}, nil
}

// Statics probe.

func (s *Session) opTypesName(st Step) (trace.Object, error) {
	expr, err := argString(st.Args, "expr")
	if err != nil {
		return nil, err
	}
	kind, err := statics.DefaultKind(expr)
	if err != nil {
		return nil, err
	}
	return trace.Object{"type": trace.Str(kind)}, nil
}

// Argument extraction. YAML integers arrive as int or int64 depending
// on magnitude.

func argInt(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, fmt.Errorf("argument %q must be an integer, got %T", key, v)
}

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", key, v)
	}
	return s, nil
}

func optionalArgString(args map[string]any, key string) (string, bool, error) {
	if _, ok := args[key]; !ok {
		return "", false, nil
	}
	s, err := argString(args, key)
	return s, err == nil, err
}

// convertArgs renders a step's YAML arguments as a trace object.
// Floats with fractional parts and nulls have no canonical encoding
// and are rejected here, before anything is recorded.
func convertArgs(args map[string]any) (trace.Object, error) {
	obj := make(trace.Object, len(args))
	for k, v := range args {
		tv, err := convertValue(v)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		obj[k] = tv
	}
	return obj, nil
}

func convertValue(v any) (trace.Value, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("null values are forbidden in trace payloads")
	case string:
		return trace.Str(x), nil
	case bool:
		return trace.Bool(x), nil
	case int:
		return trace.Int(x), nil
	case int64:
		return trace.Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d overflows int64", x)
		}
		return trace.Int(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return nil, fmt.Errorf("floats are forbidden in trace payloads, got %v", x)
		}
		return trace.Int(x), nil
	case []any:
		arr := make(trace.Array, 0, len(x))
		for i, el := range x {
			tv, err := convertValue(el)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, tv)
		}
		return arr, nil
	case map[string]any:
		obj := make(trace.Object, len(x))
		for k, el := range x {
			tv, err := convertValue(el)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = tv
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unsupported argument type %T", v)
}
