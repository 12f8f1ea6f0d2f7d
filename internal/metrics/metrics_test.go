package metrics

import (
	"testing"
	"time"
)

func rec(id string, date time.Time) ScanRecord {
	return ScanRecord{ID: id, Date: date}
}

func TestDedupe(t *testing.T) {
	now := time.Now()
	records := []ScanRecord{rec("a", now), rec("b", now), rec("a", now), rec("c", now), rec("b", now)}

	out := Dedupe(records)

	if len(out) != 3 {
		t.Fatalf("expected 3 records, got %d", len(out))
	}
	for i, want := range []string{"a", "b", "c"} {
		if out[i].ID != want {
			t.Errorf("expected %q at %d, got %q", want, i, out[i].ID)
		}
	}
}

func TestDedupe_Empty(t *testing.T) {
	if out := Dedupe(nil); out != nil {
		t.Errorf("expected nil, got %v", out)
	}
}

func TestPrepend(t *testing.T) {
	now := time.Now()
	list := []ScanRecord{rec("a", now)}

	list = Prepend(list, rec("b", now))
	if len(list) != 2 || list[0].ID != "b" {
		t.Fatalf("expected b prepended, got %v", list)
	}

	// Re-adding an existing id changes nothing.
	list = Prepend(list, rec("a", now))
	if len(list) != 2 {
		t.Errorf("expected idempotent insert, got %d records", len(list))
	}
	if list[0].ID != "b" {
		t.Errorf("expected order preserved, got %q first", list[0].ID)
	}
}

func TestFilterDay(t *testing.T) {
	today := time.Date(2025, 6, 10, 14, 0, 0, 0, time.Local)
	yesterday := today.AddDate(0, 0, -1)

	records := []ScanRecord{
		rec("a", today),
		rec("b", yesterday),
		rec("c", today.Add(-3*time.Hour)),
		rec("a", today), // duplicate
	}

	out := FilterDay(records, today)
	if len(out) != 2 {
		t.Fatalf("expected 2 records for today, got %d", len(out))
	}
	if out[0].ID != "a" || out[1].ID != "c" {
		t.Errorf("unexpected records: %v", out)
	}
}

func TestSameDay_AcrossMidnight(t *testing.T) {
	justBefore := time.Date(2025, 6, 10, 23, 59, 0, 0, time.Local)
	justAfter := time.Date(2025, 6, 11, 0, 1, 0, 0, time.Local)

	if SameDay(justBefore, justAfter) {
		t.Error("expected different calendar days across midnight")
	}
	if !SameDay(justBefore, justBefore.Add(-23*time.Hour)) {
		t.Error("expected same calendar day")
	}
}
