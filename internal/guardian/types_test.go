package guardian

import "testing"

func TestChangeBatchCreateThenModifyStaysCreate(t *testing.T) {
	b := NewChangeBatch()
	b.Add(Change{Path: "a.py", Action: ActionCreated, Digest: "1"})
	b.Add(Change{Path: "a.py", Action: ActionModified, Digest: "2"})

	c, ok := b.Get("a.py")
	if !ok {
		t.Fatal("a.py missing from batch")
	}
	if c.Action != ActionCreated || c.Digest != "2" {
		t.Errorf("change = %+v, want created with latest digest", c)
	}

	b.Add(Change{Path: "a.py", Action: ActionDeleted})
	if c, _ := b.Get("a.py"); c.Action != ActionDeleted {
		t.Errorf("action = %q, want deleted", c.Action)
	}
}

func TestChangeBatchMergeKeepsNewerEntries(t *testing.T) {
	older := NewChangeBatch()
	older.Add(Change{Path: "a.py", Action: ActionModified, Digest: "old"})
	older.Add(Change{Path: "b.py", Action: ActionCreated})

	newer := NewChangeBatch()
	newer.Add(Change{Path: "a.py", Action: ActionDeleted})
	newer.Merge(older)
	newer.Merge(nil)

	changes := newer.Changes()
	if len(changes) != 2 {
		t.Fatalf("len = %d, want 2", len(changes))
	}
	if changes[0].Path != "a.py" || changes[0].Action != ActionDeleted {
		t.Errorf("changes[0] = %+v, want a.py deleted", changes[0])
	}
	if changes[1].Path != "b.py" {
		t.Errorf("changes[1] = %+v, want b.py", changes[1])
	}
}

func TestChangeBatchMergeKeepsOlderCreate(t *testing.T) {
	older := NewChangeBatch()
	older.Add(Change{Path: "a.py", Action: ActionCreated, Digest: "v1"})

	newer := NewChangeBatch()
	newer.Add(Change{Path: "a.py", Action: ActionModified, Digest: "v2"})
	newer.Merge(older)

	c, ok := newer.Get("a.py")
	if !ok {
		t.Fatal("a.py missing after merge")
	}
	if c.Action != ActionCreated || c.Digest != "v2" {
		t.Errorf("merged = %+v, want created with digest v2", c)
	}
}

func TestChangeBatchTakeEmpties(t *testing.T) {
	b := NewChangeBatch()
	b.Add(Change{Path: "a.py", Action: ActionCreated})

	taken := b.Take()
	if taken.Len() != 1 {
		t.Errorf("taken.Len() = %d, want 1", taken.Len())
	}
	if b.Len() != 0 {
		t.Errorf("b.Len() = %d after Take, want 0", b.Len())
	}
	b.Add(Change{Path: "c.py", Action: ActionCreated})
	if taken.Len() != 1 {
		t.Error("adding to b must not affect the taken batch")
	}

	var nilBatch *ChangeBatch
	if nilBatch.Len() != 0 || nilBatch.Changes() != nil {
		t.Error("nil batch should be empty")
	}
}

func TestSnapshotLookups(t *testing.T) {
	snap := &Snapshot{Files: []FileRecord{
		{Path: "a.py", Category: CategoryCode},
		{Path: "b.md", Category: CategoryDocs},
		{Path: "c.py", Category: CategoryCode},
	}}

	if rec, ok := snap.File("b.md"); !ok || rec.Category != CategoryDocs {
		t.Errorf("File(b.md) = %+v, %v", rec, ok)
	}
	if _, ok := snap.File("zzz"); ok {
		t.Error("File(zzz) should miss")
	}
	if got := snap.FilesIn(CategoryCode); len(got) != 2 {
		t.Errorf("FilesIn(code) = %d records, want 2", len(got))
	}
	if got := snap.Paths(); len(got) != 3 || got[2] != "c.py" {
		t.Errorf("Paths() = %v", got)
	}

	var nilSnap *Snapshot
	if _, ok := nilSnap.File("a.py"); ok {
		t.Error("nil snapshot lookup should miss")
	}
}
