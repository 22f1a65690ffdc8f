package data

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AnalyticsEventRecord is one persisted telemetry event. The free-form
// payload is stored as serialized JSON.
type AnalyticsEventRecord struct {
	ID        uint64 `gorm:"primaryKey"`
	Key       string `gorm:"index; not null"`
	Category  string `gorm:"index"`
	UserID    string
	Timestamp time.Time
	Payload   []byte
}

// AnalyticsAccessor is the storage contract the analytics pipeline flushes
// batches through.
type AnalyticsAccessor interface {
	InsertEvents(ctx context.Context, events []AnalyticsEventRecord) error
}

// GormAnalytics implements AnalyticsAccessor on a gorm connection.
type GormAnalytics struct {
	db *gorm.DB
}

func NewGormAnalytics(db *gorm.DB) *GormAnalytics {
	return &GormAnalytics{db: db}
}

// InsertEvents persists one flushed batch in a single insert.
func (a *GormAnalytics) InsertEvents(ctx context.Context, events []AnalyticsEventRecord) error {
	if len(events) == 0 {
		return nil
	}
	return a.db.WithContext(ctx).Create(&events).Error
}
