// utils.go - small id/placeholder helpers shared by the SQL backend
package erp

import "strconv"

// idsToInterfaceSlice widens a []Id to []interface{}, for pgx argument
// lists (e.g. ANY($1) over a slice of plain ids).
func idsToInterfaceSlice(ids []Id) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// placeholders generates count sequential Postgres parameter placeholders
// starting at start (1-based).
func placeholders(start, count int) []string {
	out := make([]string, count)
	for i := 0; i < count; i++ {
		out[i] = "$" + strconv.Itoa(start+i)
	}
	return out
}
