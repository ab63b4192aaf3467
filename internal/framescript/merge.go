package framescript

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var joinKinds = map[string]string{
	"inner": "JOIN",
	"left":  "LEFT JOIN",
	"right": "RIGHT JOIN",
	"outer": "FULL OUTER JOIN",
	"cross": "CROSS JOIN",
}

// merge joins two frames the way pandas.merge does: key columns shared by
// name appear once, other clashing names get the suffixes.
func (rt *Runtime) merge(ctx context.Context, args callArgs) (Value, error) {
	if err := args.allow("merge", 3, "left", "right", "how", "on", "left_on", "right_on", "suffixes", "sort", "validate"); err != nil {
		return nil, err
	}
	leftArg, _ := args.get(0, "left")
	rightArg, _ := args.get(1, "right")
	left, err := rt.asFrame(ctx, leftArg)
	if err != nil {
		return nil, err
	}
	right, err := rt.asFrame(ctx, rightArg)
	if err != nil {
		return nil, err
	}
	how := "inner"
	if v, ok := args.get(2, "how"); ok {
		s, isString := v.(string)
		if !isString {
			return nil, errors.New("TypeError: how must be a string")
		}
		how = s
	}
	join, ok := joinKinds[how]
	if !ok {
		return nil, fmt.Errorf("ValueError: invalid merge type %q", how)
	}

	var leftKeys, rightKeys []string
	shared := false
	switch {
	case how == "cross":
	case args.kw["on"] != nil:
		if leftKeys, err = stringsArg(args.kw["on"]); err != nil {
			return nil, err
		}
		rightKeys, shared = leftKeys, true
	case args.kw["left_on"] != nil || args.kw["right_on"] != nil:
		if leftKeys, err = stringsArg(args.kw["left_on"]); err != nil {
			return nil, err
		}
		if rightKeys, err = stringsArg(args.kw["right_on"]); err != nil {
			return nil, err
		}
		if len(leftKeys) != len(rightKeys) {
			return nil, errors.New("ValueError: len(right_on) must equal len(left_on)")
		}
	default:
		for _, name := range left.columnNames() {
			if _, ok := right.column(name); ok {
				leftKeys = append(leftKeys, name)
			}
		}
		if len(leftKeys) == 0 {
			return nil, errors.New("MergeError: No common columns to perform merge on")
		}
		rightKeys, shared = leftKeys, true
	}
	for i := range leftKeys {
		if _, ok := left.column(leftKeys[i]); !ok {
			return nil, left.keyError(leftKeys[i])
		}
		if _, ok := right.column(rightKeys[i]); !ok {
			return nil, right.keyError(rightKeys[i])
		}
	}

	suffixes := [2]string{"_x", "_y"}
	if v, ok := args.kw["suffixes"].(*List); ok && len(v.Items) == 2 {
		for i, item := range v.Items {
			suffixes[i], _ = scalarStr(item)
		}
	}

	sharedKey := make(map[string]bool)
	if shared {
		for _, key := range leftKeys {
			sharedKey[key] = true
		}
	}
	rightNames := make(map[string]bool)
	for _, name := range right.columnNames() {
		if !sharedKey[name] {
			rightNames[name] = true
		}
	}
	leftNames := make(map[string]bool)
	for _, name := range left.columnNames() {
		if !sharedKey[name] {
			leftNames[name] = true
		}
	}

	var items, keyOrder []string
	for _, name := range left.columnNames() {
		if sharedKey[name] {
			item := "l." + q(name)
			switch how {
			case "right":
				item = "r." + q(name)
			case "outer":
				item = fmt.Sprintf("COALESCE(l.%s, r.%s)", q(name), q(name))
			}
			keyOrder = append(keyOrder, orderTerm(item, true))
			items = append(items, item+" AS "+q(name))
			continue
		}
		alias := name
		if rightNames[name] {
			alias = name + suffixes[0]
		}
		items = append(items, "l."+q(name)+" AS "+q(alias))
	}
	for _, name := range right.columnNames() {
		if sharedKey[name] {
			continue
		}
		alias := name
		if leftNames[name] {
			alias = name + suffixes[1]
		}
		items = append(items, "r."+q(name)+" AS "+q(alias))
	}
	if !shared {
		for _, key := range leftKeys {
			keyOrder = append(keyOrder, orderTerm("l."+q(key), true))
		}
	}

	var order []string
	switch how {
	case "right":
		order = []string{"r." + q("__rrn"), "l." + q("__lrn")}
	case "outer":
		order = append(keyOrder, "l."+q("__lrn"), "r."+q("__rrn"))
	default:
		order = []string{"l." + q("__lrn"), "r." + q("__rrn")}
	}

	on := ""
	if how != "cross" {
		conds := make([]string, len(leftKeys))
		for i := range leftKeys {
			conds[i] = fmt.Sprintf("l.%s = r.%s", q(leftKeys[i]), q(rightKeys[i]))
		}
		on = " ON " + strings.Join(conds, " AND ")
	}
	statement := fmt.Sprintf("SELECT %s FROM (SELECT %s, row_number() OVER () AS %s FROM %s) AS l %s (SELECT %s, row_number() OVER () AS %s FROM %s) AS r%s ORDER BY %s",
		strings.Join(items, ", "),
		strings.Join(quotedList(left.columnNames()), ", "), q("__lrn"), q(left.table),
		join,
		strings.Join(quotedList(right.columnNames()), ", "), q("__rrn"), q(right.table),
		on, strings.Join(order, ", "))
	return rt.materialize(ctx, statement)
}

func (rt *Runtime) asFrame(ctx context.Context, v Value) (*Frame, error) {
	switch t := v.(type) {
	case *Frame:
		return t, nil
	case *Series:
		return rt.seriesToFrame(ctx, t, "")
	default:
		return nil, fmt.Errorf("TypeError: expected a DataFrame, got %s", typeName(v))
	}
}

func (rt *Runtime) concat(ctx context.Context, args callArgs) (Value, error) {
	if err := args.allow("concat", 1, "objs", "axis", "ignore_index", "sort"); err != nil {
		return nil, err
	}
	objs, ok := args.get(0, "objs")
	list, isList := objs.(*List)
	if !ok || !isList || len(list.Items) == 0 {
		return nil, errors.New("ValueError: No objects to concatenate")
	}
	axis := args.kw["axis"]
	columnwise := equalScalars(axis, int64(1)) || axis == "columns"

	allSeries := true
	frames := make([]*Frame, 0, len(list.Items))
	for _, item := range list.Items {
		if _, ok := item.(*Series); !ok {
			allSeries = false
		}
		f, err := rt.asFrame(ctx, item)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	if columnwise {
		items := qualified("p0", indexPhysical(frames[0].index))
		from := make([]string, 0, len(frames))
		seen := make(map[string]bool)
		for i, f := range frames {
			alias := fmt.Sprintf("p%d", i)
			selected := f.columnNames()
			if i == 0 {
				selected = f.physical()
			}
			for _, name := range f.columnNames() {
				if seen[name] {
					return nil, fmt.Errorf("%w: duplicate column %q after concat", ErrUnsupported, name)
				}
				seen[name] = true
				items = append(items, alias+"."+q(name))
			}
			sub := fmt.Sprintf("(SELECT %s FROM %s) AS %s", strings.Join(quotedList(selected), ", "), q(f.table), alias)
			if i > 0 {
				sub = "POSITIONAL JOIN " + sub
			}
			from = append(from, sub)
		}
		return rt.materialize(ctx, fmt.Sprintf("SELECT %s FROM %s", strings.Join(items, ", "), strings.Join(from, " ")))
	}

	ignoreIndex := args.boolKw("ignore_index", false)
	parts := make([]string, len(frames))
	for i, f := range frames {
		selected := f.physical()
		if ignoreIndex {
			selected = f.columnNames()
		}
		parts[i] = fmt.Sprintf("SELECT %s, %d AS %s, row_number() OVER () AS %s FROM %s",
			strings.Join(quotedList(selected), ", "), i, q("__part"), q("__rn"), q(f.table))
	}
	out, err := rt.materialize(ctx, fmt.Sprintf("SELECT * EXCLUDE (%s, %s) FROM (%s) ORDER BY %s, %s",
		q("__part"), q("__rn"), strings.Join(parts, " UNION ALL BY NAME "), q("__part"), q("__rn")))
	if err != nil {
		return nil, err
	}
	if allSeries && len(out.columns) == 1 {
		return out.series(out.columns[0]), nil
	}
	return out, nil
}
