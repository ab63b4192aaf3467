package schema

import (
	"sort"
)

// Description maps a table or sheet name to its column names in source order.
type Description map[string][]string

// Record is the persisted cache entry. Field names are part of the on-disk
// format.
type Record struct {
	Database string      `json:"database"`
	DBType   string      `json:"db_type"`
	Location string      `json:"location,omitempty"`
	Schema   Description `json:"schema"`
}

type Combined struct {
	Relational Description `json:"relational"`
	Tabular    Description `json:"tabular"`
}

func (d Description) Names() []string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d Description) ColumnCount() int {
	total := 0
	for _, columns := range d {
		total += len(columns)
	}
	return total
}

func (d Description) Clone() Description {
	out := make(Description, len(d))
	for name, columns := range d {
		if columns == nil {
			columns = []string{}
		}
		out[name] = append([]string{}, columns...)
	}
	return out
}
