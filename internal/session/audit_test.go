package session

import (
	"context"
	"testing"
	"time"
)

func TestAuditListForDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stamps := []struct {
		at   time.Time
		desc string
	}{
		{time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC), "late on the 31st"},
		{time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), "midnight"},
		{time.Date(2025, 4, 1, 18, 30, 0, 0, time.UTC), "evening"},
		{time.Date(2025, 4, 2, 0, 0, 0, 0, time.UTC), "next day"},
	}
	for _, s := range stamps {
		at := s.at
		f.audit.now = func() time.Time { return at }
		if err := f.audit.Append(ctx, s.desc); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	day := time.Date(2025, 4, 1, 15, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	got, err := f.audit.ListForDate(ctx, day)
	if err != nil {
		t.Fatalf("list for date: %v", err)
	}
	if len(got) != 2 || got[0].Description != "midnight" || got[1].Description != "evening" {
		t.Fatalf("unexpected entries: %+v", got)
	}

	empty, err := f.audit.ListForDate(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("list empty day: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected an empty non-nil list, got %#v", empty)
	}
}
