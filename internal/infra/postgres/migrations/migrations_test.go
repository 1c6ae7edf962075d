package migrations

import "testing"

func TestCoreMigrationRegistered(t *testing.T) {
	ms := Migrations.Sorted()
	if len(ms) != 1 {
		t.Fatalf("expected 1 registered migration, got %d", len(ms))
	}
	if ms[0].Name != "20240101000000" {
		t.Fatalf("unexpected migration version %q", ms[0].Name)
	}
	if ms[0].Comment != "create_core_tables" {
		t.Fatalf("unexpected migration label %q", ms[0].Comment)
	}
}
