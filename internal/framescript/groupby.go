package framescript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nlquery/nlquery/internal/query/duckdb"
)

type groupKey struct {
	label string
	expr  string
}

// GroupBy is a pending df.groupby(...) waiting for its aggregation.
type GroupBy struct {
	frame     *Frame
	keys      []groupKey
	selection []string
	single    bool
	asIndex   bool
	dropna    bool
	// hidden holds computed key columns carried alongside the frame.
	hidden []string
}

type aggSpec struct {
	column string
	fn     string
	name   string
}

func (rt *Runtime) groupBy(ctx context.Context, f *Frame, args callArgs) (Value, error) {
	if err := args.allow("groupby", 1, "by", "as_index", "dropna", "sort", "observed", "group_keys"); err != nil {
		return nil, err
	}
	by, ok := args.get(0, "by")
	if !ok {
		return nil, errors.New("TypeError: You have to supply one of 'by' and 'level'")
	}
	items := []Value{by}
	if list, isList := by.(*List); isList {
		items = list.Items
	}
	g := &GroupBy{frame: f, asIndex: args.boolKw("as_index", true), dropna: args.boolKw("dropna", true)}
	for i, item := range items {
		switch key := item.(type) {
		case string:
			keyExpr, err := f.keyExpr(key)
			if err != nil {
				return nil, err
			}
			g.keys = append(g.keys, groupKey{label: key, expr: keyExpr})
		case *Series:
			keyExpr := key.expr
			if key.table != g.frame.table {
				hidden := fmt.Sprintf("__key%d", i)
				columns := append(g.frame.physical(), g.hidden...)
				table, _, err := rt.engine.Materialize(ctx, fmt.Sprintf("SELECT %s, b.v AS %s FROM %s AS a POSITIONAL JOIN (SELECT %s AS v FROM %s) AS b",
					strings.Join(qualified("a", columns), ", "), q(hidden), q(g.frame.table), key.expr, q(key.table)))
				if err != nil {
					return nil, err
				}
				g.frame = &Frame{table: table, index: g.frame.index, columns: g.frame.columns}
				g.hidden = append(g.hidden, hidden)
				keyExpr = q(hidden)
			}
			label := key.name
			if label == "" {
				label = fmt.Sprintf("key_%d", i)
			}
			g.keys = append(g.keys, groupKey{label: label, expr: keyExpr})
		default:
			return nil, fmt.Errorf("%w: grouping by %s", ErrUnsupported, typeName(item))
		}
	}
	if len(g.keys) == 0 {
		return nil, errors.New("ValueError: No group keys passed!")
	}
	return g, nil
}

func (g *GroupBy) isKey(name string) bool {
	for _, key := range g.keys {
		if key.label == name {
			return true
		}
	}
	return false
}

func (g *GroupBy) selectColumns(key Value) (Value, error) {
	out := *g
	switch k := key.(type) {
	case string:
		if _, ok := g.frame.column(k); !ok {
			return nil, fmt.Errorf("KeyError: 'Column not found: %s'", k)
		}
		out.selection, out.single = []string{k}, true
	case *List:
		names, err := stringList(k)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			if _, ok := g.frame.column(name); !ok {
				return nil, fmt.Errorf("KeyError: 'Columns not found: %s'", name)
			}
		}
		out.selection, out.single = names, false
	default:
		return nil, fmt.Errorf("%w: groupby selection of type %s", ErrUnsupported, typeName(key))
	}
	return &out, nil
}

// targets lists the columns an aggregation applies to.
func (g *GroupBy) targets(fn string) []duckdb.Column {
	var out []duckdb.Column
	if len(g.selection) > 0 {
		for _, name := range g.selection {
			column, _ := g.frame.column(name)
			out = append(out, column)
		}
		return out
	}
	for _, column := range g.frame.columns {
		if g.isKey(column.Name) {
			continue
		}
		if numericOnly(fn) && !duckdb.IsNumeric(column.Type) && column.Type != duckdb.TypeBoolean {
			continue
		}
		out = append(out, column)
	}
	return out
}

var groupMethods = map[string]bool{
	"sum": true, "mean": true, "count": true, "min": true, "max": true, "median": true,
	"nunique": true, "size": true, "agg": true, "aggregate": true, "std": true, "var": true,
	"first": true, "last": true,
}

func (rt *Runtime) groupAttr(g *GroupBy, name string) (Value, error) {
	if groupMethods[name] {
		return &boundMethod{recv: g, name: name}, nil
	}
	if _, ok := g.frame.column(name); ok {
		return g.selectColumns(name)
	}
	return nil, fmt.Errorf("%w: '%s' object has no attribute '%s'", ErrUnsupported, typeName(g), name)
}

func (rt *Runtime) groupMethod(ctx context.Context, g *GroupBy, name string, args callArgs) (Value, error) {
	switch name {
	case "size":
		if err := args.allow(name, 0); err != nil {
			return nil, err
		}
		if !g.asIndex {
			return rt.runAggregation(ctx, g, []aggSpec{{fn: "size", name: "size"}})
		}
		out, err := rt.runAggregation(ctx, g, []aggSpec{{fn: "size", name: "__value"}})
		if err != nil {
			return nil, err
		}
		label := ""
		if g.single {
			label = g.selection[0]
		}
		f := out.(*Frame)
		return &Series{table: f.table, index: f.index, expr: q("__value"), name: label, typ: duckdb.TypeBigint}, nil
	case "agg", "aggregate":
		specs, single, err := g.aggSpecs(args)
		if err != nil {
			return nil, err
		}
		out, err := rt.runAggregation(ctx, g, specs)
		if err != nil {
			return nil, err
		}
		if single && g.asIndex {
			f := out.(*Frame)
			return f.series(f.columns[0]), nil
		}
		return out, nil
	}
	if !groupMethods[name] {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnsupported, typeName(g), name)
	}
	if err := args.allow(name, 0, "numeric_only", "skipna", "dropna"); err != nil {
		return nil, err
	}
	var specs []aggSpec
	for _, column := range g.targets(name) {
		specs = append(specs, aggSpec{column: column.Name, fn: name, name: column.Name})
	}
	out, err := rt.runAggregation(ctx, g, specs)
	if err != nil {
		return nil, err
	}
	if g.single && g.asIndex {
		f := out.(*Frame)
		return f.series(f.columns[0]), nil
	}
	return out, nil
}

// aggSpecs reads the forms agg accepts: a function name, a list of names, a
// column mapping, or named aggregations. single reports a Series result.
func (g *GroupBy) aggSpecs(args callArgs) ([]aggSpec, bool, error) {
	var specs []aggSpec
	if len(args.pos) == 0 {
		for _, name := range args.kwOrder {
			switch v := args.kw[name].(type) {
			case *List:
				if len(v.Items) != 2 {
					return nil, false, fmt.Errorf("TypeError: named aggregation %s needs (column, func)", name)
				}
				column, ok1 := v.Items[0].(string)
				fn, ok2 := v.Items[1].(string)
				if !ok1 || !ok2 {
					return nil, false, fmt.Errorf("TypeError: named aggregation %s needs (column, func)", name)
				}
				specs = append(specs, aggSpec{column: column, fn: fn, name: name})
			case string:
				if !g.single {
					return nil, false, fmt.Errorf("TypeError: named aggregation %s needs (column, func)", name)
				}
				specs = append(specs, aggSpec{column: g.selection[0], fn: v, name: name})
			default:
				return nil, false, fmt.Errorf("%w: aggregation of type %s", ErrUnsupported, typeName(v))
			}
		}
		if len(specs) == 0 {
			return nil, false, errors.New("TypeError: Must provide 'func' or tuples of '(column, aggfunc)'")
		}
		return specs, false, g.checkSpecs(specs)
	}

	switch arg := args.pos[0].(type) {
	case string:
		for _, column := range g.targets(arg) {
			specs = append(specs, aggSpec{column: column.Name, fn: arg, name: column.Name})
		}
		return specs, g.single, g.checkSpecs(specs)
	case *List:
		fns, err := stringList(arg)
		if err != nil {
			return nil, false, err
		}
		for _, column := range g.targets("") {
			for _, fn := range fns {
				name := column.Name + "_" + fn
				if g.single {
					name = fn
				}
				specs = append(specs, aggSpec{column: column.Name, fn: fn, name: name})
			}
		}
		return specs, false, g.checkSpecs(specs)
	case *Dict:
		for _, key := range arg.Keys() {
			column, ok := key.(string)
			if !ok {
				return nil, false, fmt.Errorf("TypeError: aggregation keys must be column names")
			}
			value, _ := arg.Get(key)
			switch fns := value.(type) {
			case string:
				specs = append(specs, aggSpec{column: column, fn: fns, name: column})
			case *List:
				names, err := stringList(fns)
				if err != nil {
					return nil, false, err
				}
				for _, fn := range names {
					specs = append(specs, aggSpec{column: column, fn: fn, name: column + "_" + fn})
				}
			default:
				return nil, false, fmt.Errorf("%w: aggregation of type %s", ErrUnsupported, typeName(value))
			}
		}
		return specs, false, g.checkSpecs(specs)
	}
	return nil, false, fmt.Errorf("%w: agg with %s", ErrUnsupported, typeName(args.pos[0]))
}

func (g *GroupBy) checkSpecs(specs []aggSpec) error {
	for _, spec := range specs {
		if _, ok := g.frame.column(spec.column); !ok {
			return fmt.Errorf("KeyError: \"Column(s) ['%s'] do not exist\"", spec.column)
		}
	}
	return nil
}

// runAggregation groups the frame and evaluates specs, ordering groups by
// key. Missing keys are dropped unless dropna=False was given.
func (rt *Runtime) runAggregation(ctx context.Context, g *GroupBy, specs []aggSpec) (Value, error) {
	f := g.frame
	var items, groupExprs, order, where []string
	for i, key := range g.keys {
		target := key.label
		if g.asIndex {
			target = indexColumn(key.label)
		}
		items = append(items, key.expr+" AS "+q(target))
		groupExprs = append(groupExprs, key.expr)
		order = append(order, orderTerm(fmt.Sprint(i+1), true))
		if g.dropna {
			where = append(where, key.expr+" IS NOT NULL")
		}
	}
	seen := make(map[string]bool)
	for _, spec := range specs {
		if seen[spec.name] {
			return nil, fmt.Errorf("%w: duplicate aggregation output %q", ErrUnsupported, spec.name)
		}
		seen[spec.name] = true
		expr, typ := "NULL", ""
		if spec.column != "" {
			column, _ := f.column(spec.column)
			expr, typ = q(column.Name), column.Type
		}
		aggregate, _, err := aggregateSQL(spec.fn, expr, typ)
		if err != nil {
			return nil, err
		}
		items = append(items, aggregate+" AS "+q(spec.name))
	}

	physical := append(f.physical(), g.hidden...)
	statement := "SELECT " + strings.Join(items, ", ") + " FROM " + positioned(f.table, physical)
	if len(where) > 0 {
		statement += " WHERE " + strings.Join(where, " AND ")
	}
	statement += " GROUP BY " + strings.Join(groupExprs, ", ") + " ORDER BY " + strings.Join(order, ", ")
	return rt.materialize(ctx, statement)
}
