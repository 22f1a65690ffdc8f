package data

import (
	"context"
	"testing"
	"time"
)

func TestInsertEvents(t *testing.T) {
	db := setUpDatabase(t)
	analytics := NewGormAnalytics(db)
	ctx := context.Background()

	events := []AnalyticsEventRecord{
		{Key: "match_started", Category: "gameplay", UserID: "u1", Timestamp: time.Now()},
		{Key: "match_ended", Category: "gameplay", UserID: "u1", Timestamp: time.Now()},
	}
	if err := analytics.InsertEvents(ctx, events); err != nil {
		t.Fatalf("InsertEvents() returned an unexpected error: %v", err)
	}

	var count int64
	if err := db.Model(&AnalyticsEventRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("error counting persisted events: %v", err)
	}
	if count != 2 {
		t.Errorf("persisted %d events, want 2", count)
	}
}

func TestInsertEventsEmptyBatchIsNoop(t *testing.T) {
	analytics := NewGormAnalytics(setUpDatabase(t))

	if err := analytics.InsertEvents(context.Background(), nil); err != nil {
		t.Errorf("InsertEvents() on an empty batch returned an error: %v", err)
	}
}
