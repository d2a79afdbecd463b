package erp

import (
	"strings"
	"testing"
)

func TestRawSQLValueUnwrapsByKind(t *testing.T) {
	if v := rawSQLValue(StringValue("x")); v != "x" {
		t.Fatalf("rawSQLValue(string) = %v", v)
	}
	if v := rawSQLValue(I32Value(7)); v != int32(7) {
		t.Fatalf("rawSQLValue(i32) = %v", v)
	}
	if v := rawSQLValue(BoolValue(true)); v != true {
		t.Fatalf("rawSQLValue(bool) = %v", v)
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 7: "7", 42: "42", 12345: "12345"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestWriteTupleUsesEqualsAnyForIn(t *testing.T) {
	fm := newFinalModel("searchsql_widget")
	fm.Fields["owner_id"] = &FinalField{Name: "owner_id", DefaultValue: U32Value(0)}

	where, args, err := compileSearchExpr(fm, "searchsql_widget", NewTuple("owner_id", OpIn, []FieldValue{U32Value(1), U32Value(2)}))
	if err != nil {
		t.Fatalf("compileSearchExpr: %v", err)
	}
	if len(args) != 1 {
		t.Fatalf("args = %v, want a single slice argument for ANY", args)
	}
	if !strings.Contains(where, `"searchsql_widget"."owner_id"`) || !strings.Contains(where, "= ANY") {
		t.Fatalf("where = %q, missing expected fragments", where)
	}
}
