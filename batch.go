// batch.go - bulk flush of dirty cache rows, grouping records that share
// the same set of dirty fields into one CASE-based multi-row UPDATE, in
// the style of the teacher's batch updater.
package erp

import (
	"context"
	"sort"
	"strings"
)

// sqlExecer is the minimal surface batchFlushDirty needs; SQLStore.Execer
// adapts the store's open transaction to it.
type sqlExecer interface {
	exec(ctx context.Context, sql string, args ...interface{}) error
}

// batchFlushDirty writes every dirty (model, id) pair in ids back to store,
// grouping ids by their exact dirty-field set so each group becomes one
// UPDATE ... CASE statement, then clears the dirty bits that were written. A
// nil fields restricts nothing (every dirty field of each id is flushed); a
// non-nil fields flushes only the named fields, the rest staying dirty.
func batchFlushDirty(ctx context.Context, pool sqlExecer, cache *Cache, fm *FinalModel, fields []string, ids []Id) error {
	ti := buildTableInfo(fm)

	var allow map[string]struct{}
	if fields != nil {
		allow = make(map[string]struct{}, len(fields))
		for _, f := range fields {
			allow[f] = struct{}{}
		}
	}

	groups := map[string][]Id{}
	fieldsOf := map[string][]string{}
	for _, id := range ids {
		dirty := cache.DirtyFields(fm.Name, id)
		if allow != nil {
			restricted := dirty[:0:0]
			for _, f := range dirty {
				if _, ok := allow[f]; ok {
					restricted = append(restricted, f)
				}
			}
			dirty = restricted
		}
		if len(dirty) == 0 {
			continue
		}
		sort.Strings(dirty)
		key := strings.Join(dirty, ",")
		groups[key] = append(groups[key], id)
		fieldsOf[key] = dirty
	}

	for key, groupIds := range groups {
		groupFields := fieldsOf[key]
		query, args := buildBatchUpdateQuery(ti, cache, fm.Name, groupFields, groupIds)
		if query == "" {
			continue
		}
		if err := pool.exec(ctx, query, args...); err != nil {
			return err
		}
		if allow == nil {
			cache.ClearDirty(fm.Name, groupIds)
		} else {
			for _, f := range groupFields {
				cache.ClearDirtyField(fm.Name, f, groupIds)
			}
		}
	}
	return nil
}

// buildBatchUpdateQuery renders one UPDATE that sets every field in fields
// via a CASE over "id", across every row in ids, mirroring the teacher's
// BatchUpdateExecutor.Flush.
func buildBatchUpdateQuery(ti *tableInfo, cache *Cache, model string, fields []string, ids []Id) (string, []interface{}) {
	if len(fields) == 0 || len(ids) == 0 {
		return "", nil
	}

	sb := &strings.Builder{}
	sb.WriteString("UPDATE ")
	sb.WriteString(ti.quotedTableName)
	sb.WriteString(" SET ")

	var args []interface{}
	counter := 1

	for i, field := range fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(ti.quotedColumns[field])
		sb.WriteString(" = CASE \"id\"")

		for _, id := range ids {
			v, ok := cache.Get(model, id, field)
			if !ok {
				continue
			}
			sb.WriteString(" WHEN $")
			sb.WriteString(itoa(counter))
			args = append(args, id)
			counter++
			sb.WriteString(" THEN $")
			sb.WriteString(itoa(counter))
			args = append(args, rawSQLValue(v))
			counter++
		}

		sb.WriteString(" ELSE ")
		sb.WriteString(ti.quotedColumns[field])
		sb.WriteString(" END")
	}

	sb.WriteString(` WHERE "id" IN (`)
	idPlaceholders := make([]string, len(ids))
	for i, id := range ids {
		idPlaceholders[i] = "$" + itoa(counter)
		args = append(args, id)
		counter++
	}
	sb.WriteString(strings.Join(idPlaceholders, ", "))
	sb.WriteString(")")

	return sb.String(), args
}
