package dialog

import (
	"testing"

	"github.com/meteorhacks/dialog/schema"
	"github.com/meteorhacks/dialog/store"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()
	if err := b.AddColumn(schema.Int, "v", 0); err != nil {
		t.Fatal(err)
	}
	sch, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return sch
}

// TestScenarioS2TableLifecycle mirrors S2: create "my_table", a second
// add_table fails with DuplicateTable, remove by id succeeds, and a
// subsequent remove by the stale name fails with the exact wording
// "No such table my_table".
func TestScenarioS2TableLifecycle(t *testing.T) {
	s := NewStore()
	sch := testSchema(t)

	id, err := s.AddTable("my_table", sch, store.InMemory)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.AddTable("my_table", sch, store.InMemory); err == nil {
		t.Fatal("expected DuplicateTable on second AddTable with same name")
	}

	if err := s.RemoveTableByID(id); err != nil {
		t.Fatal(err)
	}

	err = s.RemoveTable("my_table")
	if err == nil {
		t.Fatal("expected NoSuchTable removing an already-removed table")
	}
	want := "No such table my_table"
	if err.Error() != want {
		t.Fatalf("got %q, want %q", err.Error(), want)
	}
}

func TestGetTableByNameAndID(t *testing.T) {
	s := NewStore()
	sch := testSchema(t)

	id, err := s.AddTable("t", sch, store.InMemory)
	if err != nil {
		t.Fatal(err)
	}

	byName, err := s.GetTable("t")
	if err != nil {
		t.Fatal(err)
	}
	byID, err := s.GetTableByID(id)
	if err != nil {
		t.Fatal(err)
	}
	if byName != byID {
		t.Fatal("expected GetTable and GetTableByID to return the same table")
	}
}

func TestGetTableNoSuchTable(t *testing.T) {
	s := NewStore()
	if _, err := s.GetTable("nope"); err == nil {
		t.Fatal("expected NoSuchTable for unknown name")
	}
}
