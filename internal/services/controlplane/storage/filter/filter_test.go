package filter

import (
	"testing"
	"time"
)

func TestParseEmpty(t *testing.T) {
	cond, err := Parse("  ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cond.Empty() {
		t.Fatalf("expected empty condition, got %+v", cond)
	}
}

func TestParseEquality(t *testing.T) {
	cond, err := Parse(`type = "rejected"`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cond.Clause != "type = ?" {
		t.Fatalf("clause = %q", cond.Clause)
	}
	if len(cond.Params) != 1 || cond.Params[0] != "rejected" {
		t.Fatalf("params = %v", cond.Params)
	}
}

func TestParseConjunctionWithTimestamp(t *testing.T) {
	cond, err := Parse(`command_id = "cmd-1" AND ts >= timestamp("2026-01-01T00:00:00Z")`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cond.Clause != "(command_id = ? AND ts >= ?)" {
		t.Fatalf("clause = %q", cond.Clause)
	}
	want := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	if len(cond.Params) != 2 || cond.Params[1] != want {
		t.Fatalf("params = %v", cond.Params)
	}
}

func TestParseDisjunctionAndSeq(t *testing.T) {
	cond, err := Parse(`type = "accepted" OR seq > 10`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cond.Clause != "(type = ? OR seq > ?)" {
		t.Fatalf("clause = %q", cond.Clause)
	}
	if cond.Params[1] != int64(10) {
		t.Fatalf("seq param = %#v", cond.Params[1])
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	if _, err := Parse(`payload = "x"`); err == nil {
		t.Fatal("expected error for undeclared field")
	}
}

func TestParseRejectsBadTimestamp(t *testing.T) {
	if _, err := Parse(`ts > timestamp("yesterday")`); err == nil {
		t.Fatal("expected error for bad timestamp")
	}
}
