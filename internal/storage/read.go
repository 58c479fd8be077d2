package storage

import (
	"fmt"
	"strings"
	"time"
)

// DateWindow is a half-open UTC instant interval [From, To) applied to a
// date column. The API layer converts local-zone calendar days into these
// instants; an inclusive end date becomes To = end + 1 day.
type DateWindow struct {
	From *time.Time
	To   *time.Time
}

// IsZero reports whether no bound is set.
func (w DateWindow) IsZero() bool {
	return w.From == nil && w.To == nil
}

// whereBuilder accumulates WHERE conditions with positional args.
type whereBuilder struct {
	conds []string
	args  []any
}

// add appends a condition; expr must contain a single %d for the arg position.
func (b *whereBuilder) add(expr string, value any) {
	b.args = append(b.args, value)
	b.conds = append(b.conds, fmt.Sprintf(expr, len(b.args)))
}

// addInt64 appends an equality condition when the value is present.
func (b *whereBuilder) addInt64(column string, value *int64) {
	if value != nil {
		b.add(column+" = $%d", *value)
	}
}

// addWindow appends the half-open date window conditions when present.
func (b *whereBuilder) addWindow(column string, window DateWindow) {
	if window.From != nil {
		b.add(column+" >= $%d", *window.From)
	}

	if window.To != nil {
		b.add(column+" < $%d", *window.To)
	}
}

// clause renders the WHERE clause, or an empty string without conditions.
func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(b.conds, " AND ")
}

// paging renders LIMIT/OFFSET, appending both values to the args.
func (b *whereBuilder) paging(limit, offset int) string {
	b.args = append(b.args, limit)
	limitPos := len(b.args)
	b.args = append(b.args, offset)

	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", limitPos, len(b.args))
}

// valuesPlaceholders renders ($1,$2,...),($k+1,...) groups for a multi-row
// INSERT with cols columns and rows rows.
func valuesPlaceholders(rows, cols int) string {
	var sb strings.Builder

	arg := 1

	for r := range rows {
		if r > 0 {
			sb.WriteByte(',')
		}

		sb.WriteByte('(')

		for c := range cols {
			if c > 0 {
				sb.WriteByte(',')
			}

			fmt.Fprintf(&sb, "$%d", arg)
			arg++
		}

		sb.WriteByte(')')
	}

	return sb.String()
}
