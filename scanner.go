// scanner.go - scans pgx rows into FieldMap, by column name rather than
// struct reflection.
package erp

import (
	"github.com/jackc/pgx/v5"
)

// scanRowsToFieldMaps consumes rows (already positioned before the first
// row) and returns one FieldMap per row keyed by id, using the final
// field's ValueKind to decode each column into the right FieldValue variant.
func scanRowsToFieldMaps(rows pgx.Rows, fm *FinalModel, columns []string) (map[Id]FieldMap, error) {
	defer rows.Close()

	out := map[Id]FieldMap{}
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 {
			continue
		}
		id, ok := toId(raw[0])
		if !ok {
			continue
		}

		record := make(FieldMap, len(columns))
		for i, col := range columns {
			rawVal := raw[i+1]
			ff, ok := fm.Fields[col]
			if !ok {
				continue
			}
			fv, ok := decodeColumn(ff, rawVal)
			if !ok {
				continue
			}
			record[col] = fv
		}
		out[id] = record
	}
	return out, rows.Err()
}

func toId(v interface{}) (Id, bool) {
	switch n := v.(type) {
	case int32:
		return Id(n), true
	case int64:
		return Id(n), true
	case uint32:
		return Id(n), true
	default:
		return 0, false
	}
}

// decodeColumn converts a raw pgx-decoded value into the FieldValue variant
// the final field's default-value tag pins, per §3's closed tagged union.
func decodeColumn(ff *FinalField, raw interface{}) (FieldValue, bool) {
	if raw == nil {
		return FieldValue{}, false
	}
	switch ff.DefaultValue.Kind() {
	case KindString, KindEnum:
		s, ok := raw.(string)
		if !ok {
			return FieldValue{}, false
		}
		if ff.DefaultValue.Kind() == KindEnum {
			return EnumValue(s), true
		}
		return StringValue(s), true
	case KindI32:
		switch n := raw.(type) {
		case int32:
			return I32Value(n), true
		case int64:
			return I32Value(int32(n)), true
		}
		return FieldValue{}, false
	case KindU32:
		switch n := raw.(type) {
		case int32:
			return U32Value(uint32(n)), true
		case int64:
			return U32Value(uint32(n)), true
		case uint32:
			return U32Value(n), true
		}
		return FieldValue{}, false
	case KindI64:
		switch n := raw.(type) {
		case int64:
			return I64Value(n), true
		case int32:
			return I64Value(int64(n)), true
		}
		return FieldValue{}, false
	case KindF64:
		switch n := raw.(type) {
		case float64:
			return F64Value(n), true
		case float32:
			return F64Value(float64(n)), true
		}
		return FieldValue{}, false
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return FieldValue{}, false
		}
		return BoolValue(b), true
	case KindIdList:
		switch raws := raw.(type) {
		case []interface{}:
			ids := make([]Id, 0, len(raws))
			for _, r := range raws {
				if id, ok := toId(r); ok {
					ids = append(ids, id)
				}
			}
			return IdListValue(ids), true
		case []int32:
			ids := make([]Id, len(raws))
			for i, n := range raws {
				ids[i] = Id(n)
			}
			return IdListValue(ids), true
		case []uint32:
			return IdListValue(append([]Id{}, raws...)), true
		}
		return FieldValue{}, false
	default:
		return FieldValue{}, false
	}
}
