package masedb

import (
	"math"
	"strings"
	"time"

	"github.com/autom8ter/masedb/errors"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// UpdateOperator is a field level update operator
type UpdateOperator string

const (
	UpdateSet         UpdateOperator = "$set"
	UpdateUnset       UpdateOperator = "$unset"
	UpdateInc         UpdateOperator = "$inc"
	UpdateMul         UpdateOperator = "$mul"
	UpdateMin         UpdateOperator = "$min"
	UpdateMax         UpdateOperator = "$max"
	UpdateRename      UpdateOperator = "$rename"
	UpdateCurrentDate UpdateOperator = "$currentDate"
	UpdatePush        UpdateOperator = "$push"
	UpdateAddToSet    UpdateOperator = "$addToSet"
	UpdatePop         UpdateOperator = "$pop"
	UpdatePull        UpdateOperator = "$pull"
	UpdatePullAll     UpdateOperator = "$pullAll"
)

const eachModifier = "$each"

var updateOperators = []UpdateOperator{
	UpdateSet, UpdateUnset, UpdateInc, UpdateMul, UpdateMin, UpdateMax, UpdateRename, UpdateCurrentDate,
	UpdatePush, UpdateAddToSet, UpdatePop, UpdatePull, UpdatePullAll,
}

// Update is a validated, compiled update specification. It is immutable and safe for concurrent use.
type Update struct {
	source  *Document
	actions []action
	now     func() time.Time
}

type action struct {
	op      UpdateOperator
	path    string
	segs    []string
	operand Value
	values  []Value
	target  []string
	pull    Predicate
	pullDoc bool
	stamp   bool
}

// CompileUpdate compiles a MongoDB style update such as {"$set": {"name": "John"}, "$inc": {"visits": 1}}.
// A spec without operators is a direct field update and is applied as $set.
func CompileUpdate(spec map[string]any) (*Update, error) {
	doc, err := NewDocumentFrom(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.Query, "invalid update")
	}
	return NewUpdate(doc)
}

// ParseUpdate compiles a json encoded update, applying its operators in the order they are written
func ParseUpdate(json []byte) (*Update, error) {
	doc, err := NewDocumentFromBytes(json)
	if err != nil {
		return nil, errors.Wrap(err, errors.Query, "invalid update")
	}
	return NewUpdate(doc)
}

// MustUpdate is like CompileUpdate but panics on error
func MustUpdate(spec map[string]any) *Update {
	u, err := CompileUpdate(spec)
	if err != nil {
		panic(err)
	}
	return u
}

// NewUpdate compiles an update document
func NewUpdate(doc *Document) (*Update, error) {
	if doc.Len() == 0 {
		return nil, errors.New(errors.Query, "update document is empty")
	}
	var ops, plain int
	for _, f := range doc.fields {
		if strings.HasPrefix(f.Name, "$") {
			ops++
		} else {
			plain++
		}
	}
	if ops > 0 && plain > 0 {
		return nil, errors.New(errors.Query, "cannot mix update operators and fields in %s", doc.String())
	}
	u := &Update{source: doc, now: time.Now}
	if plain > 0 {
		if err := u.compileOperator(UpdateSet, doc); err != nil {
			return nil, err
		}
	} else {
		for _, f := range doc.fields {
			op := UpdateOperator(f.Name)
			if !lo.Contains(updateOperators, op) {
				return nil, errors.New(errors.Update, "unknown update operator: '%s'", f.Name)
			}
			if f.Value.kind != KindDocument {
				return nil, errors.New(errors.Query, "%s requires a document of field paths, got %s", op, f.Value.kind)
			}
			if err := u.compileOperator(op, f.Value.doc); err != nil {
				return nil, err
			}
		}
	}
	if err := u.checkConflicts(); err != nil {
		return nil, err
	}
	return u, nil
}

func (u *Update) compileOperator(op UpdateOperator, fields *Document) error {
	for _, f := range fields.fields {
		if !validPath(f.Name) {
			return errors.New(errors.Query, "%s: invalid field path: '%s'", op, f.Name)
		}
		a := action{op: op, path: f.Name, segs: splitPath(f.Name), operand: f.Value}
		switch op {
		case UpdateSet, UpdateUnset, UpdateMin, UpdateMax:
		case UpdateInc, UpdateMul:
			if !f.Value.IsNumber() {
				return errors.New(errors.Query, "%s: cannot apply a non-numeric value to '%s'", op, f.Name)
			}
		case UpdateRename:
			if f.Value.kind != KindString || !validPath(f.Value.s) {
				return errors.New(errors.Query, "$rename: target of '%s' must be a field path", f.Name)
			}
			a.target = splitPath(f.Value.s)
		case UpdateCurrentDate:
			switch f.Value.kind {
			case KindBool:
			case KindDocument:
				typ, ok := f.Value.doc.Field("$type")
				if !ok || f.Value.doc.Len() != 1 || (typ.s != "date" && typ.s != "timestamp") {
					return errors.New(errors.Query, "$currentDate: '%s' requires true or {\"$type\": \"date\"|\"timestamp\"}", f.Name)
				}
				a.stamp = typ.s == "timestamp"
			default:
				return errors.New(errors.Query, "$currentDate: '%s' requires true or a $type document", f.Name)
			}
		case UpdatePush, UpdateAddToSet:
			values, err := eachValues(op, f.Value)
			if err != nil {
				return err
			}
			a.values = values
		case UpdatePop:
			n, err := cast.ToIntE(f.Value.Interface())
			if err != nil || !f.Value.IsNumber() || (n != 1 && n != -1) {
				return errors.New(errors.Query, "$pop: '%s' requires 1 or -1", f.Name)
			}
			a.operand = Int(int64(n))
		case UpdatePull:
			if f.Value.kind == KindDocument {
				isOps, err := isOperatorDocument(f.Value.doc)
				if err != nil {
					return err
				}
				if isOps {
					a.pull, err = compileOperators("", f.Value.doc)
				} else {
					a.pull, err = compileDocument(f.Value.doc)
					a.pullDoc = true
				}
				if err != nil {
					return err
				}
			}
		case UpdatePullAll:
			if f.Value.kind != KindArray {
				return errors.New(errors.Query, "$pullAll: '%s' requires an array", f.Name)
			}
			a.values = f.Value.arr
		}
		u.actions = append(u.actions, a)
	}
	return nil
}

func eachValues(op UpdateOperator, operand Value) ([]Value, error) {
	if operand.kind != KindDocument {
		return []Value{operand}, nil
	}
	each, ok := operand.doc.Field(eachModifier)
	if !ok {
		return []Value{operand}, nil
	}
	if operand.doc.Len() != 1 {
		return nil, errors.New(errors.Query, "%s: only the $each modifier is supported", op)
	}
	if each.kind != KindArray {
		return nil, errors.New(errors.Query, "%s: $each requires an array", op)
	}
	return each.arr, nil
}

// checkConflicts rejects updates that touch the same path, or a path and one of its prefixes, more than once
func (u *Update) checkConflicts() error {
	var touched [][]string
	for _, a := range u.actions {
		touched = append(touched, a.segs)
		if a.target != nil {
			touched = append(touched, a.target)
		}
	}
	for i := 0; i < len(touched); i++ {
		for j := i + 1; j < len(touched); j++ {
			if isPrefix(touched[i], touched[j]) || isPrefix(touched[j], touched[i]) {
				return errors.New(errors.Query, "conflicting update paths: '%s' and '%s'",
					strings.Join(touched[i], "."), strings.Join(touched[j], "."))
			}
		}
	}
	return nil
}

func isPrefix(prefix, path []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	return true
}

// WithClock returns a copy of the update that reads the time for $currentDate from now
func (u *Update) WithClock(now func() time.Time) *Update {
	cp := *u
	cp.now = now
	return &cp
}

// Source returns the update document the update was compiled from
func (u *Update) Source() *Document {
	return u.source
}

// MarshalJSON encodes the update's source document
func (u *Update) MarshalJSON() ([]byte, error) {
	return u.source.MarshalJSON()
}

func (u *Update) String() string {
	return u.source.String()
}

// Apply applies the update to doc and returns the result as a new document. doc is never modified.
func (u *Update) Apply(doc *Document) (*Document, error) {
	root := Doc(doc)
	now := u.now()
	for i := range u.actions {
		next, err := u.actions[i].apply(root, now)
		if err != nil {
			return nil, err
		}
		root = next
	}
	return root.doc, nil
}

// Apply compiles spec and applies it to doc
func Apply(doc *Document, spec map[string]any) (*Document, error) {
	u, err := CompileUpdate(spec)
	if err != nil {
		return nil, err
	}
	return u.Apply(doc)
}

// mutator computes the replacement for the value at a path. Returning keep=false removes the field, or leaves
// the document untouched when the field does not exist.
type mutator func(cur Value, exists bool) (next Value, keep bool, err error)

func (a *action) apply(root Value, now time.Time) (Value, error) {
	switch a.op {
	case UpdateRename:
		return a.rename(root)
	case UpdateCurrentDate:
		stamp := String(now.UTC().Format(time.RFC3339Nano))
		if a.stamp {
			stamp = Int(now.UnixMilli())
		}
		return modifyPath(root, a.segs, a.path, func(Value, bool) (Value, bool, error) {
			return stamp, true, nil
		})
	}
	return modifyPath(root, a.segs, a.path, a.mutate)
}

func (a *action) mutate(cur Value, exists bool) (Value, bool, error) {
	switch a.op {
	case UpdateSet:
		return a.operand, true, nil
	case UpdateUnset:
		return Null(), false, nil
	case UpdateInc:
		if !exists {
			return a.operand, true, nil
		}
		if !cur.IsNumber() {
			return Null(), false, a.incompatible(cur)
		}
		return a.arith(cur, addInts, func(x, y float64) float64 { return x + y })
	case UpdateMul:
		if !exists {
			if a.operand.kind == KindInt64 {
				return Int(0), true, nil
			}
			return Float(0), true, nil
		}
		if !cur.IsNumber() {
			return Null(), false, a.incompatible(cur)
		}
		return a.arith(cur, mulInts, func(x, y float64) float64 { return x * y })
	case UpdateMin, UpdateMax:
		if !exists {
			return a.operand, true, nil
		}
		c, ok := Compare(a.operand, cur)
		if !ok {
			return Null(), false, a.incompatible(cur)
		}
		if (a.op == UpdateMin && c < 0) || (a.op == UpdateMax && c > 0) {
			return a.operand, true, nil
		}
		return cur, true, nil
	case UpdatePush, UpdateAddToSet:
		var elems []Value
		if exists {
			if cur.kind != KindArray {
				return Null(), false, a.incompatible(cur)
			}
			elems = make([]Value, len(cur.arr), len(cur.arr)+len(a.values))
			copy(elems, cur.arr)
		}
		for _, v := range a.values {
			v := v
			if a.op == UpdateAddToSet && lo.ContainsBy(elems, func(e Value) bool { return Equal(e, v) }) {
				continue
			}
			elems = append(elems, v)
		}
		if elems == nil {
			elems = []Value{}
		}
		return arrayOf(elems), true, nil
	case UpdatePop:
		if !exists {
			return Null(), false, nil
		}
		if cur.kind != KindArray {
			return Null(), false, a.incompatible(cur)
		}
		if len(cur.arr) == 0 {
			return cur, true, nil
		}
		if a.operand.i == 1 {
			return Array(cur.arr[:len(cur.arr)-1]...), true, nil
		}
		return Array(cur.arr[1:]...), true, nil
	case UpdatePull, UpdatePullAll:
		if !exists {
			return Null(), false, nil
		}
		if cur.kind != KindArray {
			return Null(), false, a.incompatible(cur)
		}
		kept := make([]Value, 0, len(cur.arr))
		for _, elem := range cur.arr {
			if !a.pulls(elem) {
				kept = append(kept, elem)
			}
		}
		return arrayOf(kept), true, nil
	}
	return Null(), false, errors.New(errors.Update, "unknown update operator: '%s'", a.op)
}

func (a *action) pulls(elem Value) bool {
	switch {
	case a.op == UpdatePullAll:
		return lo.ContainsBy(a.values, func(v Value) bool { return Equal(v, elem) })
	case a.pull == nil:
		return Equal(elem, a.operand)
	case a.pullDoc:
		return elem.kind == KindDocument && eval(a.pull, elem)
	}
	return eval(a.pull, elem)
}

func (a *action) arith(cur Value, ints func(x, y int64) (int64, bool), floats func(x, y float64) float64) (Value, bool, error) {
	if cur.kind == KindInt64 && a.operand.kind == KindInt64 {
		n, ok := ints(cur.i, a.operand.i)
		if !ok {
			return Null(), false, errors.New(errors.Update, "%s: integer overflow applying %s to '%s' (%d)", a.op, a.operand, a.path, cur.i)
		}
		return Int(n), true, nil
	}
	return Float(floats(cur.Float64(), a.operand.Float64())), true, nil
}

func (a *action) incompatible(cur Value) error {
	return errors.New(errors.Update, "%s: cannot apply to '%s' holding a value of type %s", a.op, a.path, cur.kind).
		WithDetail("path", a.path).
		WithDetail("type", cur.kind.String())
}

func (a *action) rename(root Value) (Value, error) {
	cur, ok, err := lookupDocumentPath(root, a.segs)
	if err != nil {
		return Null(), errors.Wrap(err, errors.Update, "$rename: source '%s'", a.path)
	}
	if !ok {
		return root, nil
	}
	next, err := modifyPath(root, a.segs, a.path, func(Value, bool) (Value, bool, error) {
		return Null(), false, nil
	})
	if err != nil {
		return Null(), err
	}
	return modifyPath(next, a.target, strings.Join(a.target, "."), func(Value, bool) (Value, bool, error) {
		return cur, true, nil
	})
}

// lookupDocumentPath resolves a path through nested documents only
func lookupDocumentPath(root Value, segs []string) (Value, bool, error) {
	cur := root
	for _, seg := range segs {
		switch cur.kind {
		case KindDocument:
			next, ok := cur.doc.Field(seg)
			if !ok {
				return Null(), false, nil
			}
			cur = next
		case KindArray:
			return Null(), false, errors.New(errors.Update, "cannot traverse array at '%s'", seg)
		default:
			return Null(), false, nil
		}
	}
	return cur, true, nil
}

// modifyPath returns a copy of root with fn applied at segs. Only the containers along the path are copied.
func modifyPath(root Value, segs []string, path string, fn mutator) (Value, error) {
	seg, rest := segs[0], segs[1:]
	switch root.kind {
	case KindDocument:
		child, exists := root.doc.Field(seg)
		var (
			next Value
			keep bool
			err  error
		)
		switch {
		case len(rest) == 0:
			next, keep, err = fn(child, exists)
		case exists && (child.kind == KindDocument || child.kind == KindArray):
			next, err = modifyPath(child, rest, path, fn)
			keep = true
		default:
			if _, creates, probeErr := fn(Null(), false); probeErr != nil || !creates {
				return root, probeErr
			}
			if exists {
				return Null(), cannotCreate(path, seg, child)
			}
			next, err = modifyPath(Doc(NewDocument()), rest, path, fn)
			keep = true
		}
		if err != nil {
			return Null(), err
		}
		if !keep {
			if !exists {
				return root, nil
			}
			return Doc(root.doc.without(seg)), nil
		}
		return Doc(root.doc.with(seg, next)), nil
	case KindArray:
		idx, ok := arrayIndex(seg)
		if !ok {
			if _, creates, probeErr := fn(Null(), false); probeErr != nil || !creates {
				return root, probeErr
			}
			return Null(), errors.New(errors.Update, "cannot use the part '%s' of '%s' to traverse an array", seg, path).
				WithDetail("path", path)
		}
		exists := idx < len(root.arr)
		var child Value
		if exists {
			child = root.arr[idx]
		}
		var (
			next Value
			keep bool
			err  error
		)
		switch {
		case len(rest) == 0:
			next, keep, err = fn(child, exists)
			if err == nil && !keep {
				if !exists {
					return root, nil
				}
				next = Null()
			}
		case exists && (child.kind == KindDocument || child.kind == KindArray):
			next, err = modifyPath(child, rest, path, fn)
		default:
			if _, creates, probeErr := fn(Null(), false); probeErr != nil || !creates {
				return root, probeErr
			}
			if exists {
				return Null(), cannotCreate(path, seg, child)
			}
			next, err = modifyPath(Doc(NewDocument()), rest, path, fn)
		}
		if err != nil {
			return Null(), err
		}
		size := len(root.arr)
		if idx >= size {
			if idx-size > maxArrayPadding {
				return Null(), errors.New(errors.Update, "array index %d of '%s' is more than %d elements past the end of the array", idx, path, maxArrayPadding).
					WithDetail("path", path).
					WithDetail("index", idx)
			}
			size = idx + 1
		}
		elems := make([]Value, size)
		copy(elems, root.arr)
		elems[idx] = next
		return arrayOf(elems), nil
	}
	return Null(), cannotCreate(path, seg, root)
}

// maxArrayPadding bounds how many nulls a positional write may append to an array
const maxArrayPadding = 1 << 16

func cannotCreate(path, seg string, in Value) error {
	return errors.New(errors.Update, "cannot create field '%s' of '%s' in element %s", seg, path, in).
		WithDetail("path", path).
		WithDetail("type", in.kind.String())
}

func addInts(x, y int64) (int64, bool) {
	s := x + y
	if (x > 0 && y > 0 && s < 0) || (x < 0 && y < 0 && s >= 0) {
		return 0, false
	}
	return s, true
}

func mulInts(x, y int64) (int64, bool) {
	if x == 0 || y == 0 {
		return 0, true
	}
	if (x == -1 && y == math.MinInt64) || (y == -1 && x == math.MinInt64) {
		return 0, false
	}
	p := x * y
	if p/y != x {
		return 0, false
	}
	return p, true
}
