// Package framescript runs the small data-frame scripts the generator emits
// for spreadsheet sources. Scripts use a pandas-flavoured subset of Python;
// every frame lives as a table in an in-memory DuckDB database and each
// frame operation compiles to SQL against it.
package framescript

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nlquery/nlquery/internal/query/duckdb"
)

// ErrUnsupported marks constructs outside the allow-listed language.
var ErrUnsupported = errors.New("unsupported construct")

// Error locates a failure at a script line.
type Error struct {
	Line int
	Err  error
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReadSQLFunc runs a statement against the relational source of a combined
// session.
type ReadSQLFunc func(ctx context.Context, statement string) (columns []string, rows [][]any, err error)

type Runtime struct {
	engine  *duckdb.Engine
	globals map[string]Value
	output  []string
	readSQL ReadSQLFunc

	// queryFrame is set while a DataFrame.query string is evaluated.
	queryFrame *Frame
}

var builtinNames = []string{
	"print", "len", "str", "int", "float", "round", "abs", "sum", "min", "max",
	"list", "sorted", "bool",
}

func New(engine *duckdb.Engine) *Runtime {
	rt := &Runtime{engine: engine, globals: make(map[string]Value)}
	for _, name := range builtinNames {
		rt.globals[name] = &builtinFunc{name: name}
	}
	rt.globals["pd"] = &module{name: "pandas"}
	rt.globals["np"] = &module{name: "numpy"}
	return rt
}

func (rt *Runtime) SetReadSQL(fn ReadSQLFunc) {
	rt.readSQL = fn
}

func (rt *Runtime) Bind(name string, value Value) {
	rt.globals[name] = value
}

func (rt *Runtime) Lookup(name string) (Value, bool) {
	value, ok := rt.globals[name]
	return value, ok
}

// Output returns the lines printed so far, one per print call.
func (rt *Runtime) Output() []string {
	return append([]string(nil), rt.output...)
}

// Exec parses the whole script before running any of it, so a syntax error
// never leaves a half-executed namespace behind.
func (rt *Runtime) Exec(ctx context.Context, script string) error {
	stmts, err := parseScript(script)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rt.execStmt(ctx, s); err != nil {
			var located *Error
			if errors.As(err, &located) {
				return err
			}
			return &Error{Line: s.stmtLine(), Err: err}
		}
	}
	return nil
}

func (rt *Runtime) execStmt(ctx context.Context, s stmt) error {
	switch st := s.(type) {
	case *importStmt:
		for alias, name := range st.aliases {
			rt.globals[alias] = &module{name: name}
		}
		return nil
	case *exprStmt:
		_, err := rt.eval(ctx, st.x)
		return err
	case *assignStmt:
		value, err := rt.eval(ctx, st.value)
		if err != nil {
			return err
		}
		for _, target := range st.targets {
			if err := rt.assign(ctx, target, value); err != nil {
				return err
			}
		}
		return nil
	case *augAssignStmt:
		current, err := rt.eval(ctx, st.target)
		if err != nil {
			return err
		}
		operand, err := rt.eval(ctx, st.value)
		if err != nil {
			return err
		}
		value, err := rt.binary(ctx, st.op, current, operand)
		if err != nil {
			return err
		}
		return rt.assign(ctx, st.target, value)
	default:
		return fmt.Errorf("%w: statement %T", ErrUnsupported, s)
	}
}

func (rt *Runtime) assign(ctx context.Context, target expr, value Value) error {
	switch t := target.(type) {
	case *nameExpr:
		rt.globals[t.name] = value
		return nil
	case *tupleExpr:
		return rt.unpack(ctx, t.elts, value)
	case *listExpr:
		return rt.unpack(ctx, t.elts, value)
	case *indexExpr:
		container, err := rt.eval(ctx, t.x)
		if err != nil {
			return err
		}
		key, err := rt.eval(ctx, t.index)
		if err != nil {
			return err
		}
		return rt.setItem(ctx, container, key, value)
	case *attrExpr:
		owner, err := rt.eval(ctx, t.x)
		if err != nil {
			return err
		}
		frame, ok := owner.(*Frame)
		if !ok || t.name != "columns" {
			return fmt.Errorf("%w: assignment to attribute %q of %s", ErrUnsupported, t.name, typeName(owner))
		}
		return rt.setColumns(ctx, frame, value)
	default:
		return fmt.Errorf("%w: assignment target %T", ErrUnsupported, target)
	}
}

func (rt *Runtime) unpack(ctx context.Context, targets []expr, value Value) error {
	items, err := rt.iterate(ctx, value)
	if err != nil {
		return err
	}
	if len(items) != len(targets) {
		return fmt.Errorf("ValueError: expected %d values to unpack, got %d", len(targets), len(items))
	}
	for i, target := range targets {
		if err := rt.assign(ctx, target, items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) setItem(ctx context.Context, container, key, value Value) error {
	switch c := container.(type) {
	case *Frame:
		name, ok := key.(string)
		if !ok {
			return fmt.Errorf("%w: DataFrame column key %s", ErrUnsupported, typeName(key))
		}
		return rt.setColumn(ctx, c, name, value)
	case *Dict:
		if !IsScalar(key) && key != nil {
			return fmt.Errorf("TypeError: unhashable type: '%s'", typeName(key))
		}
		c.Set(key, value)
		return nil
	case *List:
		if c.Tuple {
			return errors.New("TypeError: 'tuple' object does not support item assignment")
		}
		i, err := listIndex(key, len(c.Items))
		if err != nil {
			return err
		}
		c.Items[i] = value
		return nil
	case *indexer:
		return rt.setIndexer(ctx, c, key, value)
	default:
		return fmt.Errorf("TypeError: '%s' object does not support item assignment", typeName(container))
	}
}

func (rt *Runtime) eval(ctx context.Context, e expr) (Value, error) {
	switch x := e.(type) {
	case *constExpr:
		return x.value, nil
	case *nameExpr:
		return rt.lookupName(ctx, x.name)
	case *atExpr:
		value, ok := rt.globals[x.name]
		if !ok {
			return nil, fmt.Errorf("UndefinedVariableError: local variable '%s' is not defined", x.name)
		}
		return value, nil
	case *fstringExpr:
		return rt.evalFString(ctx, x)
	case *listExpr:
		items, err := rt.evalAll(ctx, x.elts)
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil
	case *tupleExpr:
		items, err := rt.evalAll(ctx, x.elts)
		if err != nil {
			return nil, err
		}
		return &List{Items: items, Tuple: true}, nil
	case *dictExpr:
		d := NewDict()
		for i := range x.keys {
			key, err := rt.eval(ctx, x.keys[i])
			if err != nil {
				return nil, err
			}
			if !IsScalar(key) && key != nil {
				return nil, fmt.Errorf("TypeError: unhashable type: '%s'", typeName(key))
			}
			value, err := rt.eval(ctx, x.values[i])
			if err != nil {
				return nil, err
			}
			d.Set(key, value)
		}
		return d, nil
	case *binaryExpr:
		left, err := rt.eval(ctx, x.left)
		if err != nil {
			return nil, err
		}
		right, err := rt.eval(ctx, x.right)
		if err != nil {
			return nil, err
		}
		return rt.binary(ctx, x.op, left, right)
	case *unaryExpr:
		operand, err := rt.eval(ctx, x.x)
		if err != nil {
			return nil, err
		}
		return rt.unary(ctx, x.op, operand)
	case *boolExpr:
		return rt.evalBool(ctx, x)
	case *compareExpr:
		return rt.evalCompare(ctx, x)
	case *condExpr:
		cond, err := rt.eval(ctx, x.cond)
		if err != nil {
			return nil, err
		}
		ok, err := truthy(cond)
		if err != nil {
			return nil, err
		}
		if ok {
			return rt.eval(ctx, x.then)
		}
		return rt.eval(ctx, x.orElse)
	case *attrExpr:
		owner, err := rt.eval(ctx, x.x)
		if err != nil {
			return nil, err
		}
		return rt.attr(ctx, owner, x.name)
	case *indexExpr:
		owner, err := rt.eval(ctx, x.x)
		if err != nil {
			return nil, err
		}
		key, err := rt.eval(ctx, x.index)
		if err != nil {
			return nil, err
		}
		return rt.getItem(ctx, owner, key)
	case *sliceExpr:
		return rt.evalSlice(ctx, x)
	case *callExpr:
		fn, err := rt.eval(ctx, x.fn)
		if err != nil {
			return nil, err
		}
		args, err := rt.evalAll(ctx, x.args)
		if err != nil {
			return nil, err
		}
		call := callArgs{pos: args, kw: make(map[string]Value, len(x.kwargs))}
		for _, kw := range x.kwargs {
			value, err := rt.eval(ctx, kw.value)
			if err != nil {
				return nil, err
			}
			call.kw[kw.name] = value
			call.kwOrder = append(call.kwOrder, kw.name)
		}
		return rt.call(ctx, fn, call)
	default:
		return nil, fmt.Errorf("%w: expression %T", ErrUnsupported, e)
	}
}

func (rt *Runtime) evalAll(ctx context.Context, exprs []expr) ([]Value, error) {
	out := make([]Value, 0, len(exprs))
	for _, e := range exprs {
		value, err := rt.eval(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	return out, nil
}

func (rt *Runtime) lookupName(ctx context.Context, name string) (Value, error) {
	if rt.queryFrame != nil {
		if column, ok := rt.queryFrame.column(name); ok {
			return rt.queryFrame.series(column), nil
		}
		if label, ok := rt.queryFrame.indexLabel(name); ok {
			return rt.queryFrame.indexSeries(label), nil
		}
		return nil, fmt.Errorf("UndefinedVariableError: name '%s' is not defined", name)
	}
	value, ok := rt.globals[name]
	if !ok {
		return nil, fmt.Errorf("NameError: name '%s' is not defined", name)
	}
	return value, nil
}

type sliceValue struct {
	lo, hi, step Value
}

func (rt *Runtime) evalSlice(ctx context.Context, x *sliceExpr) (Value, error) {
	out := &sliceValue{}
	for _, part := range []struct {
		e    expr
		into *Value
	}{{x.lo, &out.lo}, {x.hi, &out.hi}, {x.step, &out.step}} {
		if part.e == nil {
			continue
		}
		value, err := rt.eval(ctx, part.e)
		if err != nil {
			return nil, err
		}
		if value != nil {
			if _, ok := value.(int64); !ok {
				return nil, fmt.Errorf("TypeError: slice indices must be integers or None")
			}
		}
		*part.into = value
	}
	return out, nil
}

// bounds resolves the slice against a sequence of length n.
func (s *sliceValue) bounds(n int) (lo, hi, step int, err error) {
	step = 1
	if s.step != nil {
		step = int(s.step.(int64))
	}
	if step == 0 {
		return 0, 0, 0, errors.New("ValueError: slice step cannot be zero")
	}
	clamp := func(v Value, def int) int {
		if v == nil {
			return def
		}
		i := int(v.(int64))
		if i < 0 {
			i += n
		}
		if step > 0 {
			return min(max(i, 0), n)
		}
		return min(max(i, -1), n-1)
	}
	if step > 0 {
		return clamp(s.lo, 0), clamp(s.hi, n), step, nil
	}
	return clamp(s.lo, n-1), clamp(s.hi, -1), step, nil
}

func sliceItems[T any](items []T, s *sliceValue) ([]T, error) {
	lo, hi, step, err := s.bounds(len(items))
	if err != nil {
		return nil, err
	}
	var out []T
	if step > 0 {
		for i := lo; i < hi; i += step {
			out = append(out, items[i])
		}
	} else {
		for i := lo; i > hi; i += step {
			out = append(out, items[i])
		}
	}
	return out, nil
}

func (rt *Runtime) evalBool(ctx context.Context, x *boolExpr) (Value, error) {
	left, err := rt.eval(ctx, x.left)
	if err != nil {
		return nil, err
	}
	if ls, ok := left.(*Series); ok && rt.queryFrame != nil {
		right, err := rt.eval(ctx, x.right)
		if err != nil {
			return nil, err
		}
		op := "&"
		if x.op == "or" {
			op = "|"
		}
		return rt.seriesBinary(ctx, op, ls, right, false)
	}
	ok, err := truthy(left)
	if err != nil {
		return nil, err
	}
	if (x.op == "and" && !ok) || (x.op == "or" && ok) {
		return left, nil
	}
	return rt.eval(ctx, x.right)
}

func (rt *Runtime) evalCompare(ctx context.Context, x *compareExpr) (Value, error) {
	left, err := rt.eval(ctx, x.left)
	if err != nil {
		return nil, err
	}
	var result Value = true
	for i, op := range x.ops {
		right, err := rt.eval(ctx, x.rights[i])
		if err != nil {
			return nil, err
		}
		value, err := rt.compare(ctx, op, left, right)
		if err != nil {
			return nil, err
		}
		if len(x.ops) == 1 {
			return value, nil
		}
		ok, err := truthy(value)
		if err != nil {
			return nil, err
		}
		if !ok {
			return false, nil
		}
		result = value
		left = right
	}
	return result, nil
}

func (rt *Runtime) compare(ctx context.Context, op string, left, right Value) (Value, error) {
	switch op {
	case "in", "not in":
		var found Value
		var err error
		if ls, ok := left.(*Series); ok && rt.queryFrame != nil {
			found, err = rt.seriesIsIn(ctx, ls, right)
			if err == nil && op == "not in" {
				return rt.unary(ctx, "~", found)
			}
			return found, err
		}
		found, err = rt.contains(ctx, right, left)
		if err != nil {
			return nil, err
		}
		if op == "not in" {
			return !found.(bool), nil
		}
		return found, nil
	case "is", "is not":
		same := left == nil && right == nil
		if left != nil && right != nil {
			same = identical(left, right)
		}
		if op == "is not" {
			return !same, nil
		}
		return same, nil
	}
	if ls, ok := left.(*Series); ok {
		if list, isList := right.(*List); isList && rt.queryFrame != nil && (op == "==" || op == "!=") {
			found, err := rt.seriesIsIn(ctx, ls, list)
			if err == nil && op == "!=" {
				return rt.unary(ctx, "~", found)
			}
			return found, err
		}
		return rt.seriesBinary(ctx, op, ls, right, false)
	}
	if rs, ok := right.(*Series); ok {
		return rt.seriesBinary(ctx, op, rs, left, true)
	}
	return compareScalars(op, left, right)
}

func identical(a, b Value) bool {
	return a == b
}

func (rt *Runtime) contains(ctx context.Context, container, item Value) (Value, error) {
	switch c := container.(type) {
	case *List:
		for _, v := range c.Items {
			if equalScalars(v, item) {
				return true, nil
			}
		}
		return false, nil
	case *Dict:
		_, ok := c.Get(item)
		return ok, nil
	case string:
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("TypeError: 'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case *Frame:
		name, _ := item.(string)
		_, ok := c.column(name)
		return ok, nil
	case *Series:
		labels, err := rt.indexLabels(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, label := range labels {
			if equalScalars(label, item) {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, fmt.Errorf("TypeError: argument of type '%s' is not iterable", typeName(container))
	}
}

func compareScalars(op string, left, right Value) (Value, error) {
	if op == "==" || op == "!=" {
		eq := equalScalars(left, right)
		if ll, ok := left.(*List); ok {
			if rl, ok := right.(*List); ok {
				eq = listsEqual(ll, rl)
			}
		}
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	}
	var cmp int
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	ls, lsok := left.(string)
	rs, rsok := right.(string)
	switch {
	case lok && rok:
		if math.IsNaN(lf) || math.IsNaN(rf) {
			return false, nil
		}
		switch {
		case lf < rf:
			cmp = -1
		case lf > rf:
			cmp = 1
		}
	case lsok && rsok:
		cmp = strings.Compare(ls, rs)
	default:
		return nil, fmt.Errorf("TypeError: '%s' not supported between instances of '%s' and '%s'", op, typeName(left), typeName(right))
	}
	switch op {
	case "<":
		return cmp < 0, nil
	case "<=":
		return cmp <= 0, nil
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
}

func listsEqual(a, b *List) bool {
	if len(a.Items) != len(b.Items) {
		return false
	}
	for i := range a.Items {
		if !equalScalars(a.Items[i], b.Items[i]) {
			return false
		}
	}
	return true
}

func (rt *Runtime) evalFString(ctx context.Context, x *fstringExpr) (Value, error) {
	var b strings.Builder
	for _, part := range x.parts {
		if part.expr == nil {
			b.WriteString(part.literal)
			continue
		}
		value, err := rt.eval(ctx, part.expr)
		if err != nil {
			return nil, err
		}
		var text string
		switch {
		case part.conv == 'r':
			text, err = rt.repr(ctx, value)
		case part.spec != "" && IsScalar(value):
			text, err = applyFormatSpec(value, part.spec)
		default:
			text, err = rt.str(ctx, value)
		}
		if err != nil {
			return nil, err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func (rt *Runtime) iterate(ctx context.Context, value Value) ([]Value, error) {
	switch v := value.(type) {
	case *List:
		return v.Items, nil
	case *Dict:
		return v.Keys(), nil
	case string:
		out := make([]Value, 0, len(v))
		for _, r := range v {
			out = append(out, string(r))
		}
		return out, nil
	case *Frame:
		return stringValues(v.columnNames()), nil
	case *Series:
		return rt.seriesValues(ctx, v)
	default:
		return nil, fmt.Errorf("TypeError: '%s' object is not iterable", typeName(value))
	}
}

func stringValues(names []string) []Value {
	out := make([]Value, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}

func listIndex(key Value, n int) (int, error) {
	i, ok := key.(int64)
	if !ok {
		return 0, fmt.Errorf("TypeError: list indices must be integers, not %s", typeName(key))
	}
	if i < 0 {
		i += int64(n)
	}
	if i < 0 || i >= int64(n) {
		return 0, errors.New("IndexError: list index out of range")
	}
	return int(i), nil
}

func (rt *Runtime) getItem(ctx context.Context, owner, key Value) (Value, error) {
	switch o := owner.(type) {
	case *Frame:
		return rt.frameGetItem(ctx, o, key)
	case *Series:
		return rt.seriesGetItem(ctx, o, key)
	case *GroupBy:
		return o.selectColumns(key)
	case *indexer:
		return rt.indexerGet(ctx, o, key)
	case *Row:
		return o.get(key)
	case *Dict:
		value, ok := o.Get(key)
		if !ok {
			r, _ := rt.repr(ctx, key)
			return nil, fmt.Errorf("KeyError: %s", r)
		}
		return value, nil
	case *List:
		if s, ok := key.(*sliceValue); ok {
			items, err := sliceItems(o.Items, s)
			if err != nil {
				return nil, err
			}
			return &List{Items: items, Tuple: o.Tuple}, nil
		}
		i, err := listIndex(key, len(o.Items))
		if err != nil {
			return nil, err
		}
		return o.Items[i], nil
	case string:
		runes := []rune(o)
		if s, ok := key.(*sliceValue); ok {
			items, err := sliceItems(runes, s)
			if err != nil {
				return nil, err
			}
			return string(items), nil
		}
		i, err := listIndex(key, len(runes))
		if err != nil {
			return nil, errors.New("IndexError: string index out of range")
		}
		return string(runes[i]), nil
	default:
		return nil, fmt.Errorf("TypeError: '%s' object is not subscriptable", typeName(owner))
	}
}

func (rt *Runtime) unary(ctx context.Context, op string, operand Value) (Value, error) {
	if s, ok := operand.(*Series); ok {
		if op == "not" && rt.queryFrame == nil {
			return nil, errors.New("ValueError: the truth value of a Series is ambiguous")
		}
		return rt.seriesUnary(ctx, op, s)
	}
	switch op {
	case "not":
		ok, err := truthy(operand)
		if err != nil {
			return nil, err
		}
		return !ok, nil
	case "-":
		switch v := operand.(type) {
		case int64:
			return -v, nil
		case float64:
			return -v, nil
		case bool:
			if v {
				return int64(-1), nil
			}
			return int64(0), nil
		}
	case "+":
		switch v := operand.(type) {
		case int64, float64:
			return v, nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case "~":
		switch v := operand.(type) {
		case int64:
			return ^v, nil
		case bool:
			if v {
				return int64(-2), nil
			}
			return int64(-1), nil
		}
	}
	return nil, fmt.Errorf("TypeError: bad operand type for unary %s: '%s'", op, typeName(operand))
}

func (rt *Runtime) binary(ctx context.Context, op string, left, right Value) (Value, error) {
	if ls, ok := left.(*Series); ok {
		return rt.seriesBinary(ctx, op, ls, right, false)
	}
	if rs, ok := right.(*Series); ok {
		return rt.seriesBinary(ctx, op, rs, left, true)
	}
	if _, ok := left.(*Frame); ok {
		return nil, fmt.Errorf("%w: arithmetic on a whole DataFrame", ErrUnsupported)
	}
	if _, ok := right.(*Frame); ok {
		return nil, fmt.Errorf("%w: arithmetic on a whole DataFrame", ErrUnsupported)
	}
	return binaryScalars(op, left, right)
}

func binaryScalars(op string, left, right Value) (Value, error) {
	typeErr := func() error {
		return fmt.Errorf("TypeError: unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(left), typeName(right))
	}
	switch l := left.(type) {
	case string:
		switch op {
		case "+":
			if r, ok := right.(string); ok {
				return l + r, nil
			}
			return nil, fmt.Errorf("TypeError: can only concatenate str (not \"%s\") to str", typeName(right))
		case "*":
			if n, ok := right.(int64); ok {
				return strings.Repeat(l, int(max(n, 0))), nil
			}
		case "%":
			return percentFormat(l, right)
		}
		return nil, typeErr()
	case *List:
		switch op {
		case "+":
			if r, ok := right.(*List); ok && r.Tuple == l.Tuple {
				items := append(append([]Value(nil), l.Items...), r.Items...)
				return &List{Items: items, Tuple: l.Tuple}, nil
			}
		case "*":
			if n, ok := right.(int64); ok {
				var items []Value
				for i := int64(0); i < n; i++ {
					items = append(items, l.Items...)
				}
				return &List{Items: items, Tuple: l.Tuple}, nil
			}
		}
		return nil, typeErr()
	}

	li, lInt := toInt64Strict(left)
	ri, rInt := toInt64Strict(right)
	if lInt && rInt {
		return binaryInts(op, li, ri)
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, typeErr()
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, errors.New("ZeroDivisionError: float division by zero")
		}
		return lf / rf, nil
	case "//":
		if rf == 0 {
			return nil, errors.New("ZeroDivisionError: float floor division by zero")
		}
		return math.Floor(lf / rf), nil
	case "%":
		if rf == 0 {
			return nil, errors.New("ZeroDivisionError: float modulo")
		}
		m := math.Mod(lf, rf)
		if m != 0 && (m < 0) != (rf < 0) {
			m += rf
		}
		return m, nil
	case "**":
		return math.Pow(lf, rf), nil
	}
	return nil, typeErr()
}

// toInt64Strict accepts ints and bools but never floats.
func toInt64Strict(v Value) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func binaryInts(op string, l, r int64) (Value, error) {
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, errors.New("ZeroDivisionError: division by zero")
		}
		return float64(l) / float64(r), nil
	case "//":
		if r == 0 {
			return nil, errors.New("ZeroDivisionError: integer division or modulo by zero")
		}
		q := l / r
		if (l%r != 0) && ((l < 0) != (r < 0)) {
			q--
		}
		return q, nil
	case "%":
		if r == 0 {
			return nil, errors.New("ZeroDivisionError: integer division or modulo by zero")
		}
		m := l % r
		if m != 0 && (m < 0) != (r < 0) {
			m += r
		}
		return m, nil
	case "**":
		if r < 0 {
			return math.Pow(float64(l), float64(r)), nil
		}
		out := int64(1)
		for i := int64(0); i < r; i++ {
			out *= l
		}
		return out, nil
	case "&":
		return l & r, nil
	case "|":
		return l | r, nil
	case "^":
		return l ^ r, nil
	}
	return nil, fmt.Errorf("%w: operator %s", ErrUnsupported, op)
}

// percentFormat handles the printf-style "%.2f" % x form.
func percentFormat(format string, arg Value) (Value, error) {
	args := []Value{arg}
	if list, ok := arg.(*List); ok && list.Tuple {
		args = list.Items
	}
	var b strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		c := format[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(format) && strings.IndexByte("0123456789.-+ ,", format[j]) >= 0 {
			j++
		}
		if j >= len(format) {
			return nil, errors.New("ValueError: incomplete format")
		}
		verb := format[j]
		if verb == '%' {
			b.WriteByte('%')
			i = j
			continue
		}
		if next >= len(args) {
			return nil, errors.New("TypeError: not enough arguments for format string")
		}
		spec := format[i+1 : j]
		var text string
		var err error
		switch verb {
		case 's':
			text, _ = scalarStr(args[next])
			if spec != "" {
				align := ">"
				if strings.HasPrefix(spec, "-") {
					align, spec = "<", spec[1:]
				}
				text, err = applyFormatSpec(text, align+spec)
			}
		case 'd', 'i':
			n, ok := toFloat(args[next])
			if !ok {
				return nil, fmt.Errorf("TypeError: %%d format: a real number is required, not %s", typeName(args[next]))
			}
			text, err = applyFormatSpec(int64(n), spec+"d")
		case 'f', 'F', 'e', 'E', 'g', 'G':
			n, ok := toFloat(args[next])
			if !ok {
				return nil, fmt.Errorf("TypeError: must be real number, not %s", typeName(args[next]))
			}
			text, err = applyFormatSpec(n, spec+string(verb))
		default:
			return nil, fmt.Errorf("ValueError: unsupported format character '%c'", verb)
		}
		if err != nil {
			return nil, err
		}
		b.WriteString(text)
		next++
		i = j
	}
	return b.String(), nil
}
