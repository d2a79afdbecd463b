package erp

import "testing"

func TestCacheInsertAndGet(t *testing.T) {
	c := NewCache()
	v := StringValue("hello")
	changed := c.Insert("task", 1, "title", &v, UpdateDirty, UpdateIfExists, ResetCompute)
	if !changed {
		t.Fatalf("first insert should report changed")
	}
	got, ok := c.Get("task", 1, "title")
	if !ok || got.Kind() != KindString {
		t.Fatalf("Get after Insert = (%v, %v)", got, ok)
	}
	if !c.Contains("task", 1, "title") {
		t.Fatalf("Contains should be true after Insert")
	}
}

func TestCacheInsertNotUpdateIfExists(t *testing.T) {
	c := NewCache()
	a := StringValue("a")
	b := StringValue("b")
	c.Insert("task", 1, "title", &a, NotUpdateDirty, NotUpdateIfExists, ResetCompute)
	changed := c.Insert("task", 1, "title", &b, NotUpdateDirty, NotUpdateIfExists, ResetCompute)
	if changed {
		t.Fatalf("second insert should not override an existing key under NotUpdateIfExists")
	}
	got, _ := c.Get("task", 1, "title")
	if s, _ := got.AsString(); s != "a" {
		t.Fatalf("value was overwritten: got %q, want %q", s, "a")
	}
}

func TestCacheDirtyTracking(t *testing.T) {
	c := NewCache()
	a := StringValue("a")
	c.Insert("task", 1, "title", &a, UpdateDirty, UpdateIfExists, ResetCompute)
	b := I32Value(1)
	c.Insert("task", 1, "priority", &b, UpdateDirty, UpdateIfExists, ResetCompute)

	dirty := c.DirtyIds("task", nil)
	if len(dirty) != 1 || dirty[0] != 1 {
		t.Fatalf("DirtyIds = %v, want [1]", dirty)
	}
	fields := c.DirtyFields("task", 1)
	if len(fields) != 2 {
		t.Fatalf("DirtyFields = %v, want 2 entries", fields)
	}

	c.ClearDirtyField("task", "title", []Id{1})
	fields = c.DirtyFields("task", 1)
	if len(fields) != 1 || fields[0] != "priority" {
		t.Fatalf("DirtyFields after ClearDirtyField = %v", fields)
	}

	c.ClearDirty("task", []Id{1})
	if len(c.DirtyIds("task", nil)) != 0 {
		t.Fatalf("expected no dirty ids after ClearDirty")
	}
}

func TestCacheRecomputeScheduleAndDrain(t *testing.T) {
	c := NewCache()
	c.AddToRecompute("task", []string{"is_done"}, []Id{1, 2})

	pending := c.PendingRecompute("task", "is_done")
	if len(pending) != 2 {
		t.Fatalf("PendingRecompute = %v, want 2 entries", pending)
	}

	field, ids, ok := c.TakeAnyToRecomputeEntry("task")
	if !ok || field != "is_done" || len(ids) != 2 {
		t.Fatalf("TakeAnyToRecomputeEntry = (%q, %v, %v)", field, ids, ok)
	}

	if _, _, ok := c.TakeAnyToRecomputeEntry("task"); ok {
		t.Fatalf("expected no more pending recompute entries after drain")
	}
}

func TestCacheTakeToRecomputeEntryFilteredByIds(t *testing.T) {
	c := NewCache()
	c.AddToRecompute("task", []string{"is_done"}, []Id{1, 2, 3})

	field, ids, ok := c.TakeToRecomputeEntryFiltered("task", nil, []Id{2})
	if !ok || field != "is_done" || len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("TakeToRecomputeEntryFiltered = (%q, %v, %v)", field, ids, ok)
	}

	remaining := c.PendingRecompute("task", "is_done")
	if len(remaining) != 2 {
		t.Fatalf("remaining pending = %v, want 2 ids left", remaining)
	}
}

func TestCacheInsertResetsComputePending(t *testing.T) {
	c := NewCache()
	c.AddToRecompute("task", []string{"is_done"}, []Id{1})

	v := BoolValue(true)
	c.Insert("task", 1, "is_done", &v, NotUpdateDirty, UpdateIfExists, ResetCompute)

	if pending := c.PendingRecompute("task", "is_done"); len(pending) != 0 {
		t.Fatalf("expected Insert with ResetCompute to clear the pending mark, got %v", pending)
	}
}

func TestCacheSnapshotRoundTrip(t *testing.T) {
	c := NewCache()
	a := StringValue("before")
	c.Insert("task", 1, "title", &a, UpdateDirty, UpdateIfExists, ResetCompute)

	snap := c.ExportSnapshot()

	b := StringValue("after")
	c.Insert("task", 1, "title", &b, UpdateDirty, UpdateIfExists, ResetCompute)

	got, _ := c.Get("task", 1, "title")
	if s, _ := got.AsString(); s != "after" {
		t.Fatalf("expected live cache to hold the new value, got %q", s)
	}

	c.ImportSnapshot(snap)
	got, _ = c.Get("task", 1, "title")
	if s, _ := got.AsString(); s != "before" {
		t.Fatalf("expected ImportSnapshot to restore the old value, got %q", s)
	}
}
