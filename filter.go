package masedb

import (
	"math"
	"strings"
	"time"

	"github.com/autom8ter/masedb/errors"
	"github.com/dlclark/regexp2"
	"github.com/dop251/goja"
	"github.com/samber/lo"
	"github.com/spf13/cast"
)

// Operator is a field level query operator
type Operator string

const (
	OpEq        Operator = "$eq"
	OpNe        Operator = "$ne"
	OpGt        Operator = "$gt"
	OpGte       Operator = "$gte"
	OpLt        Operator = "$lt"
	OpLte       Operator = "$lte"
	OpIn        Operator = "$in"
	OpNin       Operator = "$nin"
	OpAll       Operator = "$all"
	OpElemMatch Operator = "$elemMatch"
	OpSize      Operator = "$size"
	OpExists    Operator = "$exists"
	OpType      Operator = "$type"
	OpRegex     Operator = "$regex"
	OpMod       Operator = "$mod"
	// OpWhere evaluates a javascript expression against the whole document. Its FieldTest has an empty Path.
	OpWhere Operator = "$where"

	opOptions Operator = "$options"
	opNot     Operator = "$not"
)

// LogicalKind is a boolean connective over child predicates
type LogicalKind string

const (
	And LogicalKind = "$and"
	Or  LogicalKind = "$or"
	Not LogicalKind = "$not"
	Nor LogicalKind = "$nor"
)

const (
	regexMatchTimeout  = time.Second
	whereScriptTimeout = time.Second
)

// Predicate is a compiled boolean expression over a document: either a *FieldTest or a *Logical
type Predicate interface {
	predicate()
}

// FieldTest compares the values found at Path against Operand using Operator
type FieldTest struct {
	Path     string
	Operator Operator
	Operand  Value

	segs    []string
	set     []Value
	kinds   []Kind
	size    int
	exists  bool
	elem    Predicate
	elemDoc bool
	re      *regexp2.Regexp
	mod     [2]int64
	script  *goja.Program
}

// Logical combines child predicates. Not always has exactly one child.
type Logical struct {
	Kind     LogicalKind
	Children []Predicate
}

func (*FieldTest) predicate() {}
func (*Logical) predicate()   {}

// Filter is a validated, compiled query filter. It is immutable and safe for concurrent use.
type Filter struct {
	source *Document
	root   Predicate
}

// CompileFilter compiles a MongoDB style filter such as {"age": {"$gt": 25}}. A nil or empty spec matches every document.
func CompileFilter(spec map[string]any) (*Filter, error) {
	doc, err := NewDocumentFrom(spec)
	if err != nil {
		return nil, errors.Wrap(err, errors.Query, "invalid filter")
	}
	return NewFilter(doc)
}

// ParseFilter compiles a json encoded filter, evaluating its clauses in the order they are written
func ParseFilter(json []byte) (*Filter, error) {
	doc, err := NewDocumentFromBytes(json)
	if err != nil {
		return nil, errors.Wrap(err, errors.Query, "invalid filter")
	}
	return NewFilter(doc)
}

// NewFilter compiles a filter document. A nil document matches every document.
func NewFilter(doc *Document) (*Filter, error) {
	if doc == nil {
		doc = NewDocument()
	}
	root, err := compileDocument(doc)
	if err != nil {
		return nil, err
	}
	return &Filter{source: doc, root: root}, nil
}

// MustFilter is like CompileFilter but panics on error
func MustFilter(spec map[string]any) *Filter {
	f, err := CompileFilter(spec)
	if err != nil {
		panic(err)
	}
	return f
}

// Match returns true if the document satisfies the filter. A nil filter matches everything.
func (f *Filter) Match(doc *Document) bool {
	if f == nil {
		return true
	}
	return Evaluate(f.root, doc)
}

// Predicate returns the compiled predicate tree
func (f *Filter) Predicate() Predicate {
	if f == nil {
		return &Logical{Kind: And}
	}
	return f.root
}

// Source returns the filter document the filter was compiled from
func (f *Filter) Source() *Document {
	if f == nil {
		return NewDocument()
	}
	return f.source
}

// MarshalJSON encodes the filter's source document
func (f *Filter) MarshalJSON() ([]byte, error) {
	return f.Source().MarshalJSON()
}

func (f *Filter) String() string {
	return f.Source().String()
}

func compileDocument(doc *Document) (Predicate, error) {
	children := make([]Predicate, 0, doc.Len())
	for _, field := range doc.fields {
		p, err := compileEntry(field.Name, field.Value)
		if err != nil {
			return nil, err
		}
		children = append(children, p)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Logical{Kind: And, Children: children}, nil
}

func compileEntry(key string, v Value) (Predicate, error) {
	switch key {
	case string(And), string(Or), string(Nor):
		if v.kind != KindArray {
			return nil, errors.New(errors.Query, "%s requires an array of filters", key)
		}
		children := make([]Predicate, 0, len(v.arr))
		for _, elem := range v.arr {
			if elem.kind != KindDocument {
				return nil, errors.New(errors.Query, "%s elements must be filter documents, got %s", key, elem.kind)
			}
			child, err := compileDocument(elem.doc)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return &Logical{Kind: LogicalKind(key), Children: children}, nil
	case string(Not):
		if v.kind != KindDocument {
			return nil, errors.New(errors.Query, "$not requires a filter document, got %s", v.kind)
		}
		child, err := compileDocument(v.doc)
		if err != nil {
			return nil, err
		}
		return &Logical{Kind: Not, Children: []Predicate{child}}, nil
	case string(OpWhere):
		if v.kind != KindString {
			return nil, errors.New(errors.Query, "$where requires a javascript string, got %s", v.kind)
		}
		prog, err := compileScript(v.s)
		if err != nil {
			return nil, errors.Wrap(err, errors.Query, "invalid $where script")
		}
		return &FieldTest{Operator: OpWhere, Operand: v, script: prog}, nil
	}
	if strings.HasPrefix(key, "$") {
		return nil, errors.New(errors.Query, "unknown top level operator: %s", key)
	}
	if !validPath(key) {
		return nil, errors.New(errors.Query, "invalid field path: '%s'", key)
	}
	if v.kind == KindDocument {
		isOps, err := isOperatorDocument(v.doc)
		if err != nil {
			return nil, err
		}
		if isOps {
			return compileOperators(key, v.doc)
		}
	}
	return compileTest(key, OpEq, v)
}

func isLogicalKey(key string) bool {
	switch key {
	case string(And), string(Or), string(Nor), string(OpWhere):
		return true
	}
	return false
}

// isOperatorDocument reports whether every key of d is a field operator. Mixing operators with plain fields is an error.
func isOperatorDocument(d *Document) (bool, error) {
	var ops, plain int
	for _, f := range d.fields {
		if strings.HasPrefix(f.Name, "$") && !isLogicalKey(f.Name) {
			ops++
		} else {
			plain++
		}
	}
	if ops > 0 && plain > 0 {
		return false, errors.New(errors.Query, "cannot mix operators and fields in %s", d.String())
	}
	return ops > 0, nil
}

func compileOperators(path string, ops *Document) (Predicate, error) {
	var (
		tests   []Predicate
		options = ""
	)
	if v, ok := ops.Field(string(opOptions)); ok {
		if v.kind != KindString {
			return nil, errors.New(errors.Query, "$options must be a string, got %s", v.kind)
		}
		if _, hasRegex := ops.Field(string(OpRegex)); !hasRegex {
			return nil, errors.New(errors.Query, "$options requires $regex")
		}
		options = v.s
	}
	for _, f := range ops.fields {
		switch op := Operator(f.Name); op {
		case opOptions:
			continue
		case OpRegex:
			t, err := compileRegexTest(path, f.Value, options)
			if err != nil {
				return nil, err
			}
			tests = append(tests, t)
		case opNot:
			var (
				inner Predicate
				err   error
			)
			switch f.Value.kind {
			case KindString:
				inner, err = compileRegexTest(path, f.Value, "")
			case KindDocument:
				isOps, opErr := isOperatorDocument(f.Value.doc)
				if opErr != nil {
					return nil, opErr
				}
				if !isOps || f.Value.doc.Len() == 0 {
					return nil, errors.New(errors.Query, "$not requires an operator document or a regex")
				}
				inner, err = compileOperators(path, f.Value.doc)
			default:
				return nil, errors.New(errors.Query, "$not requires an operator document or a regex, got %s", f.Value.kind)
			}
			if err != nil {
				return nil, err
			}
			tests = append(tests, &Logical{Kind: Not, Children: []Predicate{inner}})
		default:
			t, err := compileTest(path, op, f.Value)
			if err != nil {
				return nil, err
			}
			tests = append(tests, t)
		}
	}
	if len(tests) == 1 {
		return tests[0], nil
	}
	return &Logical{Kind: And, Children: tests}, nil
}

func compileTest(path string, op Operator, operand Value) (*FieldTest, error) {
	t := &FieldTest{
		Path:     path,
		Operator: op,
		Operand:  operand,
		segs:     splitPath(path),
	}
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
	case OpIn, OpNin:
		if operand.kind != KindArray {
			return nil, errors.New(errors.Query, "%s requires an array, got %s", op, operand.kind)
		}
		t.set = operand.arr
	case OpAll:
		if operand.kind != KindArray {
			return nil, errors.New(errors.Query, "$all requires an array, got %s", operand.kind)
		}
		t.set = uniqueValues(operand.arr)
	case OpElemMatch:
		if operand.kind != KindDocument {
			return nil, errors.New(errors.Query, "$elemMatch requires a document, got %s", operand.kind)
		}
		isOps, err := isOperatorDocument(operand.doc)
		if err != nil {
			return nil, err
		}
		if isOps {
			t.elem, err = compileOperators("", operand.doc)
		} else {
			t.elem, err = compileDocument(operand.doc)
			t.elemDoc = true
		}
		if err != nil {
			return nil, err
		}
	case OpSize:
		if !operand.IsNumber() {
			return nil, errors.New(errors.Query, "$size requires a number, got %s", operand.kind)
		}
		f := operand.Float64()
		if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
			return nil, errors.New(errors.Query, "$size requires a non-negative integer, got %s", operand)
		}
		t.size = int(operand.Int64())
	case OpExists:
		switch {
		case operand.kind == KindBool:
			t.exists = operand.b
		case operand.IsNumber():
			t.exists = operand.Float64() != 0
		default:
			return nil, errors.New(errors.Query, "$exists requires a boolean, got %s", operand.kind)
		}
	case OpType:
		kinds, err := typeOperand(operand)
		if err != nil {
			return nil, err
		}
		t.kinds = kinds
	case OpMod:
		if operand.kind != KindArray || len(operand.arr) != 2 || !operand.arr[0].IsNumber() || !operand.arr[1].IsNumber() {
			return nil, errors.New(errors.Query, "$mod requires [divisor, remainder], got %s", operand)
		}
		t.mod = [2]int64{operand.arr[0].Int64(), operand.arr[1].Int64()}
		if t.mod[0] == 0 {
			return nil, errors.New(errors.Query, "$mod divisor cannot be 0")
		}
	default:
		return nil, errors.New(errors.Query, "unknown operator: '%s'", op)
	}
	return t, nil
}

func compileRegexTest(path string, pattern Value, options string) (*FieldTest, error) {
	if pattern.kind != KindString {
		return nil, errors.New(errors.Query, "$regex requires a string pattern, got %s", pattern.kind)
	}
	var opts regexp2.RegexOptions
	for _, o := range options {
		switch o {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		default:
			return nil, errors.New(errors.Query, "unsupported $options flag: '%c'", o)
		}
	}
	re, err := regexp2.Compile(pattern.s, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.Query, "invalid $regex: %s", pattern.s)
	}
	re.MatchTimeout = regexMatchTimeout
	return &FieldTest{
		Path:     path,
		Operator: OpRegex,
		Operand:  pattern,
		segs:     splitPath(path),
		re:       re,
	}, nil
}

var typeAliases = map[string][]Kind{
	"null":     {KindNull},
	"bool":     {KindBool},
	"boolean":  {KindBool},
	"int":      {KindInt64},
	"long":     {KindInt64},
	"double":   {KindFloat64},
	"number":   {KindInt64, KindFloat64},
	"string":   {KindString},
	"array":    {KindArray},
	"object":   {KindDocument},
	"document": {KindDocument},
}

var typeCodes = map[int][]Kind{
	1:  {KindFloat64},
	2:  {KindString},
	3:  {KindDocument},
	4:  {KindArray},
	8:  {KindBool},
	10: {KindNull},
	16: {KindInt64},
	18: {KindInt64},
}

func typeOperand(operand Value) ([]Kind, error) {
	switch operand.kind {
	case KindString:
		kinds, ok := typeAliases[operand.s]
		if !ok {
			return nil, errors.New(errors.Query, "unknown $type: '%s'", operand.s)
		}
		return kinds, nil
	case KindInt64, KindFloat64:
		code, err := cast.ToIntE(operand.Interface())
		if err != nil {
			return nil, errors.Wrap(err, errors.Query, "invalid $type code")
		}
		kinds, ok := typeCodes[code]
		if !ok {
			return nil, errors.New(errors.Query, "unknown $type code: %d", code)
		}
		return kinds, nil
	case KindArray:
		if len(operand.arr) == 0 {
			return nil, errors.New(errors.Query, "$type requires at least one type")
		}
		var kinds []Kind
		for _, elem := range operand.arr {
			if elem.kind == KindArray {
				return nil, errors.New(errors.Query, "$type does not accept nested arrays")
			}
			k, err := typeOperand(elem)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k...)
		}
		return lo.Uniq(kinds), nil
	}
	return nil, errors.New(errors.Query, "$type requires a type name or code, got %s", operand.kind)
}

func compileScript(src string) (*goja.Program, error) {
	body := strings.TrimSpace(src)
	if body == "" {
		return nil, errors.New(errors.Query, "empty $where script")
	}
	if strings.HasPrefix(body, "function") {
		body = "(" + body + ")"
	} else {
		body = "(function() { return (" + body + "); })"
	}
	return goja.Compile(string(OpWhere), body, false)
}

func uniqueValues(values []Value) []Value {
	out := make([]Value, 0, len(values))
	for _, v := range values {
		v := v
		if !lo.ContainsBy(out, func(existing Value) bool { return Equal(existing, v) }) {
			out = append(out, v)
		}
	}
	return out
}

// EqualityOn returns the operand when the filter is exactly one equality test on path
func (f *Filter) EqualityOn(path string) (Value, bool) {
	if f == nil {
		return Null(), false
	}
	t, ok := f.root.(*FieldTest)
	if !ok || t.Path != path || t.Operator != OpEq {
		return Null(), false
	}
	return t.Operand, true
}
