package framescript

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// indexer is the .loc or .iloc view of a frame or series.
type indexer struct {
	owner      Value
	positional bool
}

// Row is a single frame row, as returned by df.iloc[0].
type Row struct {
	name   Value
	labels []string
	values []Value
	types  []string
}

func (r *Row) get(key Value) (Value, error) {
	switch k := key.(type) {
	case string:
		for i, label := range r.labels {
			if label == k {
				return r.values[i], nil
			}
		}
		return nil, fmt.Errorf("KeyError: %s", quotePy(k))
	case int64:
		i, err := listIndex(k, len(r.values))
		if err != nil {
			return nil, errors.New("IndexError: index out of bounds")
		}
		return r.values[i], nil
	case *List:
		names, err := stringList(k)
		if err != nil {
			return nil, err
		}
		out := &Row{name: r.name}
		for _, name := range names {
			v, err := r.get(name)
			if err != nil {
				return nil, err
			}
			out.labels = append(out.labels, name)
			out.values = append(out.values, v)
			out.types = append(out.types, r.typeOf(name))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: row key of type %s", ErrUnsupported, typeName(key))
}

func (r *Row) typeOf(label string) string {
	for i, l := range r.labels {
		if l == label {
			return r.types[i]
		}
	}
	return ""
}

func (rt *Runtime) frameRow(ctx context.Context, f *Frame, where string) (*Row, error) {
	statement := fmt.Sprintf("SELECT %s, %s - 1 FROM %s WHERE %s LIMIT 1",
		f.selectAll(), q(posColumn), positioned(f.table, f.physical()), where)
	rows, err := rt.engine.Query(ctx, statement)
	if err != nil {
		return nil, err
	}
	if len(rows.Values) == 0 {
		return nil, nil
	}
	values := rows.Values[0]
	row := &Row{name: fromSQL(values[len(values)-1])}
	if len(f.index) == 1 {
		row.name = fromSQL(values[0])
	}
	offset := len(f.index)
	for i, column := range f.columns {
		row.labels = append(row.labels, column.Name)
		row.values = append(row.values, fromSQL(values[offset+i]))
		row.types = append(row.types, column.Type)
	}
	return row, nil
}

func (rt *Runtime) frameRowAt(ctx context.Context, f *Frame, position int64) (*Row, error) {
	n, err := rt.frameLen(ctx, f)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		position += n
	}
	if position < 0 || position >= n {
		return nil, errors.New("IndexError: single positional indexer is out-of-bounds")
	}
	return rt.frameRow(ctx, f, fmt.Sprintf("%s = %d", q(posColumn), position+1))
}

func (rt *Runtime) frameRowByLabel(ctx context.Context, f *Frame, label Value) (*Row, error) {
	if len(f.index) == 0 {
		position, ok := label.(int64)
		if !ok {
			r, _ := rt.repr(ctx, label)
			return nil, fmt.Errorf("KeyError: %s", r)
		}
		return rt.frameRowAt(ctx, f, position)
	}
	if len(f.index) > 1 {
		return nil, fmt.Errorf("%w: lookup on a multi-level index", ErrUnsupported)
	}
	text, _, err := literal(label)
	if err != nil {
		return nil, err
	}
	row, err := rt.frameRow(ctx, f, fmt.Sprintf("%s = %s", q(indexColumn(f.index[0].Name)), text))
	if err != nil {
		return nil, err
	}
	if row == nil {
		r, _ := rt.repr(ctx, label)
		return nil, fmt.Errorf("KeyError: %s", r)
	}
	return row, nil
}

func splitKey(key Value) (Value, Value, bool) {
	if t, ok := key.(*List); ok && t.Tuple {
		if len(t.Items) != 2 {
			return nil, nil, false
		}
		return t.Items[0], t.Items[1], true
	}
	return key, nil, false
}

func isFullSlice(v Value) bool {
	s, ok := v.(*sliceValue)
	return ok && s.lo == nil && s.hi == nil && s.step == nil
}

func (rt *Runtime) indexerGet(ctx context.Context, ix *indexer, key Value) (Value, error) {
	if s, ok := ix.owner.(*Series); ok {
		return rt.seriesIndexerGet(ctx, s, ix.positional, key)
	}
	f := ix.owner.(*Frame)
	rowsKey, colsKey, hasCols := splitKey(key)
	if t, ok := key.(*List); ok && t.Tuple && !hasCols {
		return nil, fmt.Errorf("%w: indexer with %d keys", ErrUnsupported, len(t.Items))
	}

	var selected Value
	switch k := rowsKey.(type) {
	case *Series:
		if ix.positional {
			return nil, errors.New("ValueError: iLocation based boolean indexing cannot use a Series")
		}
		filtered, err := rt.filterFrame(ctx, f, k)
		if err != nil {
			return nil, err
		}
		selected = filtered
	case *sliceValue:
		if isFullSlice(k) {
			selected = f
			break
		}
		if !ix.positional {
			if len(f.index) > 0 {
				return nil, fmt.Errorf("%w: label slices on a labelled index", ErrUnsupported)
			}
			if hi, ok := k.hi.(int64); ok {
				k = &sliceValue{lo: k.lo, hi: hi + 1, step: k.step}
			}
		}
		sliced, err := rt.sliceFrame(ctx, f, k)
		if err != nil {
			return nil, err
		}
		selected = sliced
	case *List:
		return nil, fmt.Errorf("%w: selecting rows by a list of labels", ErrUnsupported)
	default:
		var row *Row
		var err error
		if ix.positional {
			position, ok := rowsKey.(int64)
			if !ok {
				return nil, fmt.Errorf("TypeError: Cannot index by location index with a non-integer key")
			}
			row, err = rt.frameRowAt(ctx, f, position)
		} else {
			row, err = rt.frameRowByLabel(ctx, f, rowsKey)
		}
		if err != nil {
			return nil, err
		}
		selected = row
	}
	if !hasCols || isFullSlice(colsKey) {
		return selected, nil
	}

	if ix.positional {
		names, err := positionalColumns(f, colsKey)
		if err != nil {
			return nil, err
		}
		if _, single := colsKey.(int64); single {
			colsKey = names[0]
		} else {
			colsKey = &List{Items: stringValues(names)}
		}
	}
	switch sel := selected.(type) {
	case *Row:
		return sel.get(colsKey)
	case *Frame:
		return rt.frameGetItem(ctx, sel, colsKey)
	}
	return nil, fmt.Errorf("%w: column selection on %s", ErrUnsupported, typeName(selected))
}

func positionalColumns(f *Frame, key Value) ([]string, error) {
	names := f.columnNames()
	switch k := key.(type) {
	case int64:
		i, err := listIndex(k, len(names))
		if err != nil {
			return nil, errors.New("IndexError: single positional indexer is out-of-bounds")
		}
		return []string{names[i]}, nil
	case *sliceValue:
		return sliceItems(names, k)
	case *List:
		out := make([]string, 0, len(k.Items))
		for _, item := range k.Items {
			i, err := listIndex(item, len(names))
			if err != nil {
				return nil, err
			}
			out = append(out, names[i])
		}
		return out, nil
	}
	return nil, fmt.Errorf("TypeError: Cannot index by location index with a %s", typeName(key))
}

func (rt *Runtime) seriesIndexerGet(ctx context.Context, s *Series, positional bool, key Value) (Value, error) {
	switch k := key.(type) {
	case *Series:
		return rt.filterSeries(ctx, s, k)
	case *sliceValue:
		n, err := rt.seriesLen(ctx, s)
		if err != nil {
			return nil, err
		}
		if !positional {
			if len(s.index) > 0 {
				return nil, fmt.Errorf("%w: label slices on a labelled index", ErrUnsupported)
			}
			if hi, ok := k.hi.(int64); ok {
				k = &sliceValue{lo: k.lo, hi: hi + 1, step: k.step}
			}
		}
		lo, hi, _, err := k.bounds(int(n))
		if err != nil {
			return nil, err
		}
		return rt.seriesRows(ctx, s, lo, hi)
	}
	if positional {
		i, ok := key.(int64)
		if !ok {
			return nil, fmt.Errorf("TypeError: Cannot index by location index with a non-integer key")
		}
		return rt.seriesAt(ctx, s, i)
	}
	return rt.seriesGetItem(ctx, s, key)
}

// setIndexer supports df.loc[mask, 'col'] = value.
func (rt *Runtime) setIndexer(ctx context.Context, ix *indexer, key, value Value) error {
	f, ok := ix.owner.(*Frame)
	if !ok || ix.positional {
		return fmt.Errorf("%w: positional assignment", ErrUnsupported)
	}
	rowsKey, colsKey, hasCols := splitKey(key)
	if !hasCols {
		return fmt.Errorf("%w: loc assignment without a column", ErrUnsupported)
	}
	name, ok := colsKey.(string)
	if !ok {
		return fmt.Errorf("%w: loc assignment to several columns", ErrUnsupported)
	}
	if isFullSlice(rowsKey) {
		return rt.setColumn(ctx, f, name, value)
	}
	mask, ok := rowsKey.(*Series)
	if !ok {
		return fmt.Errorf("%w: loc assignment with a %s row key", ErrUnsupported, typeName(rowsKey))
	}
	base, cond, err := rt.align(ctx, f, mask)
	if err != nil {
		return err
	}
	var valueSQL string
	switch v := value.(type) {
	case *Series:
		if v.table != base.table {
			return fmt.Errorf("%w: loc assignment from another frame", ErrUnsupported)
		}
		valueSQL = v.expr
	default:
		if valueSQL, _, err = literal(value); err != nil {
			return err
		}
	}
	current := "NULL"
	if _, exists := base.column(name); exists {
		current = q(name)
	}
	updated := &Series{table: base.table, index: base.index, name: name,
		expr: fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", cond, valueSQL, current)}
	return rt.setColumn(ctx, f, name, updated)
}

func (rt *Runtime) rowString(ctx context.Context, r *Row) (string, error) {
	rows := make([][]string, len(r.labels))
	for i, label := range r.labels {
		rows[i] = []string{label, displayValue(r.values[i], r.types[i])}
	}
	name, _ := scalarStr(r.name)
	body := renderPlain(rows)
	return strings.TrimRight(body, "\n") + "\nName: " + name + ", dtype: " + rowDtype(r.types), nil
}

func rowDtype(types []string) string {
	if len(types) == 0 {
		return "object"
	}
	first := dtypeName(types[0])
	for _, typ := range types[1:] {
		if dtypeName(typ) != first {
			return "object"
		}
	}
	return first
}
