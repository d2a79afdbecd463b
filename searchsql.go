// searchsql.go - compiles a SearchExpr into a parameterized SQL WHERE
// clause, adapted from the condition-building style of the teacher's
// filter compiler.
package erp

import (
	"strings"
)

// operatorSQL maps a SearchOp to its SQL fragment, mirroring the operator
// table the teacher keeps for its own filter DSL.
var operatorSQL = map[SearchOp]string{
	OpEqual:        "=",
	OpNotEqual:     "!=",
	OpIn:           "= ANY",
	OpNotIn:        "!= ALL",
	OpGreaterThan:  ">",
	OpGreaterEqual: ">=",
	OpLessThan:     "<",
	OpLessEqual:    "<=",
}

// compileSearchExpr renders expr against tableName into a WHERE-clause body
// (without the "WHERE " keyword) plus its positional arguments, validating
// every referenced field against model's final fields first.
func compileSearchExpr(model *FinalModel, tableName string, expr SearchExpr) (string, []interface{}, error) {
	for _, f := range fieldsReferenced(expr) {
		if _, ok := model.Fields[f]; !ok {
			return "", nil, &UnknownSearchKeyError{Token: f}
		}
	}

	sb := &strings.Builder{}
	var args []interface{}
	if err := writeSearchExpr(sb, &args, tableName, expr); err != nil {
		return "", nil, err
	}
	return sb.String(), args, nil
}

func writeSearchExpr(sb *strings.Builder, args *[]interface{}, table string, e SearchExpr) error {
	switch v := e.(type) {
	case Nothing:
		sb.WriteString("TRUE")
		return nil
	case And:
		sb.WriteByte('(')
		if err := writeSearchExpr(sb, args, table, v.Left); err != nil {
			return err
		}
		sb.WriteString(" AND ")
		if err := writeSearchExpr(sb, args, table, v.Right); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	case Or:
		sb.WriteByte('(')
		if err := writeSearchExpr(sb, args, table, v.Left); err != nil {
			return err
		}
		sb.WriteString(" OR ")
		if err := writeSearchExpr(sb, args, table, v.Right); err != nil {
			return err
		}
		sb.WriteByte(')')
		return nil
	case Tuple:
		return writeTuple(sb, args, table, v)
	default:
		return &InvalidDomainError{}
	}
}

func writeTuple(sb *strings.Builder, args *[]interface{}, table string, t Tuple) error {
	op, ok := operatorSQL[t.Op]
	if !ok {
		return &UnknownSearchOperatorError{Op: string(t.Op)}
	}

	sb.WriteString(`"`)
	sb.WriteString(table)
	sb.WriteString(`".`)
	sb.WriteString(`"` + t.Left + `"`)
	sb.WriteByte(' ')
	sb.WriteString(op)
	sb.WriteByte(' ')

	switch t.Op {
	case OpIn, OpNotIn:
		list, ok := t.Right.([]FieldValue)
		if !ok {
			return &UnknownSearchOperatorError{Op: string(t.Op)}
		}
		raw := make([]interface{}, len(list))
		for i, fv := range list {
			raw[i] = rawSQLValue(fv)
		}
		*args = append(*args, raw)
		sb.WriteByte('$')
		writeInt(sb, len(*args))
	default:
		fv, ok := t.Right.(FieldValue)
		if !ok {
			return &UnknownSearchOperatorError{Op: string(t.Op)}
		}
		*args = append(*args, rawSQLValue(fv))
		sb.WriteByte('$')
		writeInt(sb, len(*args))
	}
	return nil
}

func writeInt(sb *strings.Builder, n int) {
	sb.WriteString(itoa(n))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// rawSQLValue unwraps a FieldValue to the Go value pgx should bind, per its
// tag.
func rawSQLValue(v FieldValue) interface{} {
	switch v.Kind() {
	case KindString:
		s, _ := v.AsString()
		return s
	case KindI32:
		n, _ := v.AsI32()
		return n
	case KindU32:
		n, _ := v.AsU32()
		return n
	case KindI64:
		n, _ := v.AsI64()
		return n
	case KindF64:
		n, _ := v.AsF64()
		return n
	case KindBool:
		b, _ := v.AsBool()
		return b
	case KindEnum:
		s, _ := v.AsEnum()
		return s
	case KindIdList:
		ids, _ := v.AsIdList()
		return ids
	default:
		return nil
	}
}
