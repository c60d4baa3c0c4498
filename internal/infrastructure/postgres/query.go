package postgres

import (
	"strconv"
	"strings"
)

// args accumulates positional parameters for a dynamically built query.
type args struct {
	values []interface{}
}

// next appends v and returns its placeholder.
func (a *args) next(v interface{}) string {
	a.values = append(a.values, v)
	return "$" + strconv.Itoa(len(a.values))
}

func addWhere(query string) string {
	if strings.Contains(query, " WHERE ") {
		return " AND"
	}
	return " WHERE"
}
