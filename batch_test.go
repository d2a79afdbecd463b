package erp

import (
	"context"
	"testing"
)

func TestBuildBatchUpdateQueryEmptyInputs(t *testing.T) {
	ti := widgetTableInfo()
	c := NewCache()
	if query, args := buildBatchUpdateQuery(ti, c, "qb_widget", nil, []Id{1}); query != "" || args != nil {
		t.Fatalf("expected empty query/args for no fields, got %q / %v", query, args)
	}
	if query, args := buildBatchUpdateQuery(ti, c, "qb_widget", []string{"title"}, nil); query != "" || args != nil {
		t.Fatalf("expected empty query/args for no ids, got %q / %v", query, args)
	}
}

func TestBuildBatchUpdateQueryBuildsCaseExpression(t *testing.T) {
	ti := widgetTableInfo()
	c := NewCache()
	a := StringValue("alpha")
	b := StringValue("beta")
	c.Insert("qb_widget", 1, "title", &a, UpdateDirty, UpdateIfExists, ResetCompute)
	c.Insert("qb_widget", 2, "title", &b, UpdateDirty, UpdateIfExists, ResetCompute)

	query, args := buildBatchUpdateQuery(ti, c, "qb_widget", []string{"title"}, []Id{1, 2})
	if query == "" {
		t.Fatalf("expected a non-empty query")
	}
	// two (id, value) pairs for the CASE plus two ids for the WHERE clause
	if len(args) != 6 {
		t.Fatalf("args = %v, want 6 entries", args)
	}
}

func TestBatchFlushDirtyGroupsByDirtyFieldSet(t *testing.T) {
	fm := newFinalModel("qb_batch")
	fm.Fields["title"] = &FinalField{Name: "title", DefaultValue: StringValue("")}
	fm.Fields["count"] = &FinalField{Name: "count", DefaultValue: I32Value(0)}

	c := NewCache()
	a := StringValue("a")
	b := StringValue("b")
	n := I32Value(1)
	c.Insert("qb_batch", 1, "title", &a, UpdateDirty, UpdateIfExists, ResetCompute)
	c.Insert("qb_batch", 2, "title", &b, UpdateDirty, UpdateIfExists, ResetCompute)
	c.Insert("qb_batch", 2, "count", &n, UpdateDirty, UpdateIfExists, ResetCompute)

	exec := &recordingExecer{}
	if err := batchFlushDirty(context.Background(), exec, c, fm, nil, []Id{1, 2}); err != nil {
		t.Fatalf("batchFlushDirty: %v", err)
	}

	if len(exec.queries) != 2 {
		t.Fatalf("expected two grouped UPDATE statements, got %d: %v", len(exec.queries), exec.queries)
	}
	if len(c.DirtyIds("qb_batch", nil)) != 0 {
		t.Fatalf("expected no dirty ids left after a full flush")
	}
}

type recordingExecer struct {
	queries []string
}

func (r *recordingExecer) exec(ctx context.Context, sql string, args ...interface{}) error {
	r.queries = append(r.queries, sql)
	return nil
}
