package activity

import "testing"

func strPtr(s string) *string { return &s }

func TestGroupByCaptureGroup(t *testing.T) {
	shots := []Screenshot{
		{ID: "a", CaptureGroup: strPtr("g1"), CapturedAt: "2025-06-01T10:00:00"},
		{ID: "b", CaptureGroup: strPtr("g1"), CapturedAt: "2025-06-01T10:00:00"},
		{ID: "c", CaptureGroup: strPtr("g2"), CapturedAt: "2025-06-01T10:00:30"},
		{ID: "d", CapturedAt: "2025-06-01T10:01:00"},
	}

	groups := GroupByCaptureGroup(shots)

	if len(groups) != 3 {
		t.Fatalf("len(groups) = %d, want 3", len(groups))
	}
	if groups[0].Key != "g1" || len(groups[0].Screenshots) != 2 {
		t.Errorf("groups[0] = %q with %d shots, want g1 pair", groups[0].Key, len(groups[0].Screenshots))
	}
	if groups[0].Screenshots[0].ID != "a" || groups[0].Screenshots[1].ID != "b" {
		t.Errorf("g1 order = [%s %s], want [a b]", groups[0].Screenshots[0].ID, groups[0].Screenshots[1].ID)
	}
	if groups[1].Key != "g2" {
		t.Errorf("groups[1].Key = %q, want g2", groups[1].Key)
	}
	// The ungrouped screenshot trails as a singleton.
	if groups[2].Key != "" || len(groups[2].Screenshots) != 1 || groups[2].Screenshots[0].ID != "d" {
		t.Errorf("groups[2] = %+v, want trailing singleton d", groups[2])
	}
}

func TestGroupByCaptureGroup_AscendingKeyOrder(t *testing.T) {
	shots := []Screenshot{
		{ID: "late", CaptureGroup: strPtr("2025-06-01T10:00:30")},
		{ID: "early", CaptureGroup: strPtr("2025-06-01T10:00:00")},
	}

	groups := GroupByCaptureGroup(shots)

	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if groups[0].Screenshots[0].ID != "early" {
		t.Errorf("groups[0] = %s, want early (chronological order)", groups[0].Screenshots[0].ID)
	}
}

func TestGroupByCaptureGroup_Empty(t *testing.T) {
	groups := GroupByCaptureGroup(nil)
	if len(groups) != 0 {
		t.Fatalf("len(groups) = %d, want 0", len(groups))
	}
}

func TestEarliestCapture(t *testing.T) {
	g := CaptureGroup{Screenshots: []Screenshot{
		{CapturedAt: "2025-06-01T10:00:30"},
		{CapturedAt: "2025-06-01T10:00:00"},
		{CapturedAt: "2025-06-01T10:01:00"},
	}}
	if got := g.EarliestCapture(); got != "2025-06-01T10:00:00" {
		t.Errorf("EarliestCapture() = %q, want earliest", got)
	}

	empty := CaptureGroup{}
	if got := empty.EarliestCapture(); got != "" {
		t.Errorf("EarliestCapture() on empty group = %q, want empty", got)
	}
}

func TestMonitorIDs(t *testing.T) {
	g := CaptureGroup{Screenshots: []Screenshot{
		{MonitorID: 1}, {MonitorID: 0}, {MonitorID: 1},
	}}
	ids := g.MonitorIDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 0 {
		t.Errorf("MonitorIDs() = %v, want [1 0]", ids)
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"coding", "coding"},
		{"Coding", "coding"},
		{" BROWSING ", "browsing"},
		{"gaming", "other"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeCategory(tt.in); got != tt.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatParseTime(t *testing.T) {
	s := "2025-06-01T10:00:05"
	parsed, err := ParseTime(s)
	if err != nil {
		t.Fatalf("ParseTime() error = %v", err)
	}
	if got := FormatTime(parsed); got != s {
		t.Errorf("round trip = %q, want %q", got, s)
	}
}
