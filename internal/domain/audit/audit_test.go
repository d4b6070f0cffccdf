package audit

import (
	"context"
	"testing"
)

func TestMemoryRecordAndList(t *testing.T) {
	svc := New(nil)
	ctx := context.Background()

	if err := svc.Record(ctx, "u1", "payroll.run.generate", "payroll_run", "1", "req-1", "127.0.0.1", nil, map[string]any{"outcome": "committed"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Record(ctx, "u1", "payroll.run.lock", "payroll_run", "1", "req-2", "127.0.0.1", nil, nil); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.Record(ctx, "u2", "payroll.run.lock", "payroll_run", "2", "req-3", "127.0.0.1", nil, nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	total, err := svc.Count(ctx, Filter{Action: "payroll.run.lock"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 lock events, got %d", total)
	}

	events, err := svc.List(ctx, Filter{EntityID: "1"}, true, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for run 1, got %d", len(events))
	}
	if events[0].Action != "payroll.run.lock" {
		t.Fatalf("expected newest first, got %s", events[0].Action)
	}
	if string(events[1].After) != `{"outcome":"committed"}` {
		t.Fatalf("expected after payload, got %s", events[1].After)
	}

	page, err := svc.List(ctx, Filter{}, false, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].RequestID != "req-1" {
		t.Fatalf("expected oldest event on last page, got %+v", page)
	}
	if page[0].After != nil {
		t.Fatalf("expected details stripped")
	}
}
