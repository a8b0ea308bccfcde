package database

import "testing"

func TestMigrationsIn(t *testing.T) {
	got := migrationsIn([]string{
		"002_device_jobs.sql",
		"README.md",
		"001_initial_schema.sql",
		"abc_broken.sql",
		"000_zero.sql",
		"010_later.sql",
		"003_notes.txt",
	})

	want := []migration{
		{1, "001_initial_schema.sql"},
		{2, "002_device_jobs.sql"},
		{10, "010_later.sql"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d migrations, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("migration %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}
