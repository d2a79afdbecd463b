// value.go - tagged union of primitive field values plus reference ids
package erp

import "fmt"

// ValueKind identifies the payload carried by a FieldValue.
type ValueKind uint8

const (
	KindInvalid ValueKind = iota
	KindString
	KindI32
	KindU32 // reference id
	KindI64
	KindF64
	KindBool
	KindEnum
	KindIdList // list of reference ids (O2M / M2M payload)
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindI32:
		return "i32"
	case KindU32:
		return "u32"
	case KindI64:
		return "i64"
	case KindF64:
		return "f64"
	case KindBool:
		return "bool"
	case KindEnum:
		return "enum"
	case KindIdList:
		return "id_list"
	default:
		return "invalid"
	}
}

// FieldValue is the tagged union every field value in the system is stored as.
// The zero value is KindInvalid and should never be persisted.
type FieldValue struct {
	kind    ValueKind
	str     string
	i32     int32
	u32     uint32
	i64     int64
	f64     float64
	boolean bool
	enum    string
	idList  []Id
}

func StringValue(v string) FieldValue { return FieldValue{kind: KindString, str: v} }
func I32Value(v int32) FieldValue     { return FieldValue{kind: KindI32, i32: v} }
func U32Value(v uint32) FieldValue    { return FieldValue{kind: KindU32, u32: v} }
func I64Value(v int64) FieldValue     { return FieldValue{kind: KindI64, i64: v} }
func F64Value(v float64) FieldValue   { return FieldValue{kind: KindF64, f64: v} }
func BoolValue(v bool) FieldValue     { return FieldValue{kind: KindBool, boolean: v} }
func EnumValue(v string) FieldValue   { return FieldValue{kind: KindEnum, enum: v} }
func IdListValue(v []Id) FieldValue {
	cp := make([]Id, len(v))
	copy(cp, v)
	return FieldValue{kind: KindIdList, idList: cp}
}

// Kind reports which payload is populated.
func (v FieldValue) Kind() ValueKind { return v.kind }

func (v FieldValue) AsString() (string, bool) { return v.str, v.kind == KindString }
func (v FieldValue) AsI32() (int32, bool)     { return v.i32, v.kind == KindI32 }
func (v FieldValue) AsU32() (uint32, bool)    { return v.u32, v.kind == KindU32 }
func (v FieldValue) AsI64() (int64, bool)     { return v.i64, v.kind == KindI64 }
func (v FieldValue) AsF64() (float64, bool)   { return v.f64, v.kind == KindF64 }
func (v FieldValue) AsBool() (bool, bool)     { return v.boolean, v.kind == KindBool }
func (v FieldValue) AsEnum() (string, bool)   { return v.enum, v.kind == KindEnum }
func (v FieldValue) AsIdList() ([]Id, bool)   { return v.idList, v.kind == KindIdList }

// Equal reports whether two field values have the same tag and payload.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindI32:
		return v.i32 == o.i32
	case KindU32:
		return v.u32 == o.u32
	case KindI64:
		return v.i64 == o.i64
	case KindF64:
		return v.f64 == o.f64
	case KindBool:
		return v.boolean == o.boolean
	case KindEnum:
		return v.enum == o.enum
	case KindIdList:
		if len(v.idList) != len(o.idList) {
			return false
		}
		for i := range v.idList {
			if v.idList[i] != o.idList[i] {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// String renders the value for logging and panic messages.
func (v FieldValue) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindI32:
		return fmt.Sprintf("%d", v.i32)
	case KindU32:
		return fmt.Sprintf("%d", v.u32)
	case KindI64:
		return fmt.Sprintf("%d", v.i64)
	case KindF64:
		return fmt.Sprintf("%g", v.f64)
	case KindBool:
		return fmt.Sprintf("%t", v.boolean)
	case KindEnum:
		return v.enum
	case KindIdList:
		return fmt.Sprintf("%v", v.idList)
	default:
		return "<invalid>"
	}
}
