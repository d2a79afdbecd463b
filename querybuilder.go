// querybuilder.go - INSERT/UPDATE SQL generation from a FieldMap, adapted
// from the teacher's GetInsertQuery/GetUpdateQuery.
package erp

import "strings"

// buildInsertQuery renders a single-row INSERT returning the backend id.
func buildInsertQuery(ti *tableInfo, values FieldMap) (string, []interface{}) {
	columns := make([]string, 0, len(values))
	placeholders := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values))

	counter := 1
	for _, field := range ti.storedFields {
		v, ok := values[field]
		if !ok {
			continue
		}
		columns = append(columns, ti.quotedColumns[field])
		placeholders = append(placeholders, "$"+itoa(counter))
		args = append(args, rawSQLValue(v))
		counter++
	}

	sb := &strings.Builder{}
	sb.WriteString("INSERT INTO ")
	sb.WriteString(ti.quotedTableName)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(columns, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(") RETURNING id")
	return sb.String(), args
}

// buildUpdateQuery renders an UPDATE applying the same values to every id.
func buildUpdateQuery(ti *tableInfo, ids []Id, values FieldMap) (string, []interface{}) {
	setClauses := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values)+len(ids))

	counter := 1
	for _, field := range ti.storedFields {
		v, ok := values[field]
		if !ok {
			continue
		}
		setClauses = append(setClauses, ti.quotedColumns[field]+" = $"+itoa(counter))
		args = append(args, rawSQLValue(v))
		counter++
	}

	idPlaceholders := make([]string, len(ids))
	for i, id := range ids {
		idPlaceholders[i] = "$" + itoa(counter)
		args = append(args, id)
		counter++
	}

	sb := &strings.Builder{}
	sb.WriteString("UPDATE ")
	sb.WriteString(ti.quotedTableName)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(setClauses, ", "))
	sb.WriteString(` WHERE "id" IN (`)
	sb.WriteString(strings.Join(idPlaceholders, ", "))
	sb.WriteString(")")
	return sb.String(), args
}

// buildSelectQuery renders a SELECT over fields (or every stored field when
// fields is empty) filtered to ids.
func buildSelectQuery(ti *tableInfo, ids []Id, fields []string) (string, []interface{}, []string) {
	cols := fields
	if len(cols) == 0 {
		cols = ti.storedFields
	}

	quoted := make([]string, 0, len(cols)+1)
	quoted = append(quoted, `"id"`)
	for _, f := range cols {
		quoted = append(quoted, ti.quotedColumns[f])
	}

	args := make([]interface{}, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = "$" + itoa(i+1)
	}

	sb := &strings.Builder{}
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(ti.quotedTableName)
	sb.WriteString(` WHERE "id" IN (`)
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(")")
	return sb.String(), args, cols
}
