package repository

import (
	"context"

	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/bazarkua/molexa-api/internal/storage"
	"gorm.io/gorm"
)

// Upper bound on ids per DELETE statement
const deleteChunkSize = 500

type EventRepository struct {
	db *storage.Postgres
}

func NewEventRepository(db *storage.Postgres) *EventRepository {
	return &EventRepository{db: db}
}

// Returns a copy bound to an open transaction
func (r *EventRepository) WithTx(tx *gorm.DB) *EventRepository {
	return &EventRepository{db: &storage.Postgres{DB: tx}}
}

// Inserts a new request event
func (r *EventRepository) Create(ctx context.Context, event *models.RequestEvent) error {
	return r.db.DB.WithContext(ctx).Create(event).Error
}

// Retrieves the most recent events, newest first
func (r *EventRepository) FindRecent(ctx context.Context, limit int) ([]models.RequestEvent, error) {
	var events []models.RequestEvent

	err := r.db.DB.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&events).Error

	return events, err
}

// Retrieves every event of a period, oldest first
func (r *EventRepository) FindByPeriod(ctx context.Context, periodKey string) ([]models.RequestEvent, error) {
	var events []models.RequestEvent

	err := r.db.DB.WithContext(ctx).
		Where("period_key = ?", periodKey).
		Order("timestamp ASC").
		Order("id ASC").
		Find(&events).Error

	return events, err
}

func (r *EventRepository) CountByPeriod(ctx context.Context, periodKey string) (int64, error) {
	var count int64

	err := r.db.DB.WithContext(ctx).
		Model(&models.RequestEvent{}).
		Where("period_key = ?", periodKey).
		Count(&count).Error

	return count, err
}

// Deletes the given events of one period. Rows outside periodKey are never
// touched even if their id is listed.
func (r *EventRepository) DeleteByIDs(ctx context.Context, periodKey string, ids []string) (int64, error) {
	var deleted int64

	for start := 0; start < len(ids); start += deleteChunkSize {
		end := min(start+deleteChunkSize, len(ids))

		result := r.db.DB.WithContext(ctx).
			Where("period_key = ? AND id IN ?", periodKey, ids[start:end]).
			Delete(&models.RequestEvent{})
		if result.Error != nil {
			return deleted, result.Error
		}
		deleted += result.RowsAffected
	}

	return deleted, nil
}
