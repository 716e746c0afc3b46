package ndvar

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Column is a named table column holding either numbers or labels.
type Column struct {
	Name   string
	Values []float64 `json:",omitempty"`
	Labels []string  `json:",omitempty"`
}

func FloatColumn(name string, values []float64) Column {
	return Column{Name: name, Values: values}
}

func LabelColumn(name string, labels []string) Column {
	return Column{Name: name, Labels: labels}
}

// Len returns the number of rows.
func (c Column) Len() int {
	if c.Labels != nil {
		return len(c.Labels)
	}
	return len(c.Values)
}

// Format returns row i as text.
func (c Column) Format(i int) string {
	if c.Labels != nil {
		return c.Labels[i]
	}
	return strconv.FormatFloat(c.Values[i], 'g', 5, 64)
}

// Table is a column-oriented result table.
type Table struct {
	Columns []Column
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return t.Columns[0].Len()
}

// Add appends a column; its length must match the existing columns.
func (t *Table) Add(c Column) error {
	if len(t.Columns) > 0 && c.Len() != t.Len() {
		return fmt.Errorf("column %q has %d rows, table has %d", c.Name, c.Len(), t.Len())
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// Column returns the column called name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Rows returns the row indices for which keep returns true on column name.
func (t *Table) Rows(name string, keep func(float64) bool) []int {
	c, ok := t.Column(name)
	if !ok {
		return nil
	}
	var rows []int
	for i, v := range c.Values {
		if keep(v) {
			rows = append(rows, i)
		}
	}
	return rows
}

// Subset returns a table with the given rows.
func (t *Table) Subset(rows []int) *Table {
	out := &Table{Columns: make([]Column, len(t.Columns))}
	for k, c := range t.Columns {
		nc := Column{Name: c.Name}
		if c.Labels != nil {
			nc.Labels = make([]string, len(rows))
			for i, r := range rows {
				nc.Labels[i] = c.Labels[r]
			}
		} else {
			nc.Values = make([]float64, len(rows))
			for i, r := range rows {
				nc.Values[i] = c.Values[r]
			}
		}
		out.Columns[k] = nc
	}
	return out
}

func (t *Table) String() string {
	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for i, c := range t.Columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, c.Name)
	}
	fmt.Fprintln(w)
	for r := 0; r < t.Len(); r++ {
		for i, c := range t.Columns {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, c.Format(r))
		}
		fmt.Fprintln(w)
	}
	w.Flush()
	return b.String()
}
