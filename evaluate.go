package masedb

import (
	"math"
	"time"

	"github.com/dop251/goja"
	"github.com/samber/lo"
)

// Evaluate returns true if the document satisfies the predicate. It never fails: missing fields, type mismatches
// and script errors evaluate to false.
func Evaluate(p Predicate, doc *Document) bool {
	return eval(p, Doc(doc))
}

func eval(p Predicate, root Value) bool {
	switch p := p.(type) {
	case *Logical:
		switch p.Kind {
		case And:
			for _, child := range p.Children {
				if !eval(child, root) {
					return false
				}
			}
			return true
		case Or:
			for _, child := range p.Children {
				if eval(child, root) {
					return true
				}
			}
			return false
		case Nor:
			for _, child := range p.Children {
				if eval(child, root) {
					return false
				}
			}
			return true
		case Not:
			return len(p.Children) == 1 && !eval(p.Children[0], root)
		}
	case *FieldTest:
		return p.test(root)
	}
	return false
}

func (t *FieldTest) test(root Value) bool {
	if t.Operator == OpWhere {
		return runScript(t.script, root)
	}
	var buf [4]Value
	found := resolve(root, t.segs, buf[:0])
	switch t.Operator {
	case OpExists:
		return (len(found) > 0) == t.exists
	case OpEq:
		return t.matchEq(found)
	case OpNe:
		return !t.matchEq(found)
	case OpIn:
		return t.matchIn(found)
	case OpNin:
		return !t.matchIn(found)
	case OpGt, OpGte, OpLt, OpLte:
		return anyElement(found, func(v Value) bool {
			c, ok := Compare(v, t.Operand)
			if !ok {
				return false
			}
			switch t.Operator {
			case OpGt:
				return c > 0
			case OpGte:
				return c >= 0
			case OpLt:
				return c < 0
			}
			return c <= 0
		})
	case OpAll:
		return t.matchAll(found)
	case OpElemMatch:
		for _, v := range found {
			if v.kind != KindArray {
				continue
			}
			for _, elem := range v.arr {
				if t.elemDoc && elem.kind != KindDocument {
					continue
				}
				if eval(t.elem, elem) {
					return true
				}
			}
		}
		return false
	case OpSize:
		for _, v := range found {
			if v.kind == KindArray && len(v.arr) == t.size {
				return true
			}
		}
		return false
	case OpType:
		return anyElement(found, func(v Value) bool {
			return lo.Contains(t.kinds, v.kind)
		})
	case OpRegex:
		return anyElement(found, func(v Value) bool {
			if v.kind != KindString {
				return false
			}
			ok, err := t.re.MatchString(v.s)
			return err == nil && ok
		})
	case OpMod:
		return anyElement(found, func(v Value) bool {
			n, ok := truncate(v)
			return ok && n%t.mod[0] == t.mod[1]
		})
	}
	return false
}

// matchEq treats an absent path as equal to a null operand only
func (t *FieldTest) matchEq(found []Value) bool {
	if len(found) == 0 {
		return t.Operand.IsNull()
	}
	return anyElement(found, func(v Value) bool {
		return Equal(v, t.Operand)
	})
}

func (t *FieldTest) matchIn(found []Value) bool {
	if len(found) == 0 {
		return lo.ContainsBy(t.set, func(v Value) bool { return v.IsNull() })
	}
	return anyElement(found, func(v Value) bool {
		return lo.ContainsBy(t.set, func(candidate Value) bool { return Equal(v, candidate) })
	})
}

func (t *FieldTest) matchAll(found []Value) bool {
	if len(t.set) == 0 {
		return false
	}
	for _, v := range found {
		elems := []Value{v}
		if v.kind == KindArray {
			elems = v.arr
		}
		matched := true
		for _, want := range t.set {
			want := want
			if !lo.ContainsBy(elems, func(e Value) bool { return Equal(e, want) }) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// anyElement applies fn to each value and, for array values, to each of their elements
func anyElement(found []Value, fn func(v Value) bool) bool {
	for _, v := range found {
		if fn(v) {
			return true
		}
		if v.kind == KindArray {
			for _, elem := range v.arr {
				if fn(elem) {
					return true
				}
			}
		}
	}
	return false
}

func truncate(v Value) (int64, bool) {
	switch v.kind {
	case KindInt64:
		return v.i, true
	case KindFloat64:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) || v.f >= math.MaxInt64 || v.f < math.MinInt64 {
			return 0, false
		}
		return int64(v.f), true
	}
	return 0, false
}

// runScript evaluates a compiled $where program on a fresh runtime; goja runtimes are not safe for concurrent use
func runScript(prog *goja.Program, root Value) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			matched = false
		}
	}()
	vm := goja.New()
	timer := time.AfterFunc(whereScriptTimeout, func() {
		vm.Interrupt("$where timed out")
	})
	defer timer.Stop()
	obj := vm.ToValue(root.Interface())
	if err := vm.Set("obj", obj); err != nil {
		return false
	}
	fnVal, err := vm.RunProgram(prog)
	if err != nil {
		return false
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return false
	}
	res, err := fn(obj)
	if err != nil {
		return false
	}
	b, ok := res.Export().(bool)
	return ok && b
}
