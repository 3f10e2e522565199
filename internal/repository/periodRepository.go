package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bazarkua/molexa-api/internal/classifier"
	"github.com/bazarkua/molexa-api/internal/models"
	"github.com/bazarkua/molexa-api/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PeriodRepository struct {
	db *storage.Postgres
}

func NewPeriodRepository(db *storage.Postgres) *PeriodRepository {
	return &PeriodRepository{db: db}
}

func (r *PeriodRepository) WithTx(tx *gorm.DB) *PeriodRepository {
	return &PeriodRepository{db: &storage.Postgres{DB: tx}}
}

// Retrieves a period summary with its counters; nil when the period is unknown
func (r *PeriodRepository) FindByKey(ctx context.Context, periodKey string) (*models.PeriodSummary, error) {
	var summary models.PeriodSummary
	err := r.db.DB.WithContext(ctx).
		Where("period_key = ?", periodKey).
		First(&summary).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var counters []models.PeriodCounter
	if err := r.db.DB.WithContext(ctx).
		Where("period_key = ?", periodKey).
		Find(&counters).Error; err != nil {
		return nil, err
	}

	summary.CountsByCategory = make(map[string]int64, len(classifier.Categories))
	for _, c := range classifier.Categories {
		summary.CountsByCategory[string(c)] = 0
	}
	summary.CountsByEndpointGroup = make(map[string]int64)

	for _, c := range counters {
		switch c.Dimension {
		case models.DimensionCategory:
			summary.CountsByCategory[c.Name] = c.Count
		case models.DimensionEndpointGroup:
			summary.CountsByEndpointGroup[c.Name] = c.Count
		}
	}

	return &summary, nil
}

// Inserts an all-zero summary unless one already exists
func (r *PeriodRepository) EnsureExists(ctx context.Context, periodKey string) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.PeriodSummary{PeriodKey: periodKey}).Error
}

// Adds one event to its period's summary and counters. Increments are done in
// SQL so concurrent writers do not overwrite each other.
func (r *PeriodRepository) ApplyEvent(ctx context.Context, event *models.RequestEvent, endpointGroup string) error {
	db := r.db.DB.WithContext(ctx)
	now := time.Now().UTC()

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_count":         gorm.Expr("period_summaries.total_count + 1"),
			"total_duration_ms":   gorm.Expr("period_summaries.total_duration_ms + ?", event.DurationMs),
			"average_duration_ms": gorm.Expr("(period_summaries.total_duration_ms + ?) * 1.0 / (period_summaries.total_count + 1)", event.DurationMs),
			"updated_at":          now,
		}),
	}).Create(&models.PeriodSummary{
		PeriodKey:         event.PeriodKey,
		TotalCount:        1,
		TotalDurationMs:   event.DurationMs,
		AverageDurationMs: float64(event.DurationMs),
	}).Error
	if err != nil {
		return err
	}

	if err := r.incrementCounter(db, event.PeriodKey, models.DimensionCategory, event.Category); err != nil {
		return err
	}

	return r.incrementCounter(db, event.PeriodKey, models.DimensionEndpointGroup, endpointGroup)
}

func (r *PeriodRepository) incrementCounter(db *gorm.DB, periodKey, dimension, name string) error {
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period_key"}, {Name: "dimension"}, {Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count": gorm.Expr("period_counters.count + 1"),
		}),
	}).Create(&models.PeriodCounter{
		PeriodKey: periodKey,
		Dimension: dimension,
		Name:      name,
		Count:     1,
	}).Error
}

// Overwrites the totals and counters of summary.PeriodKey with the values in
// summary, creating the row if needed. archived_at and created_at are kept.
func (r *PeriodRepository) Replace(ctx context.Context, summary *models.PeriodSummary) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "period_key"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_count":         summary.TotalCount,
				"total_duration_ms":   summary.TotalDurationMs,
				"average_duration_ms": summary.AverageDurationMs,
				"updated_at":          time.Now().UTC(),
			}),
		}).Create(&models.PeriodSummary{
			PeriodKey:         summary.PeriodKey,
			TotalCount:        summary.TotalCount,
			TotalDurationMs:   summary.TotalDurationMs,
			AverageDurationMs: summary.AverageDurationMs,
		}).Error
		if err != nil {
			return err
		}

		if err := tx.Where("period_key = ?", summary.PeriodKey).Delete(&models.PeriodCounter{}).Error; err != nil {
			return err
		}

		var counters []models.PeriodCounter
		counters = appendCounters(counters, summary.PeriodKey, models.DimensionCategory, summary.CountsByCategory)
		counters = appendCounters(counters, summary.PeriodKey, models.DimensionEndpointGroup, summary.CountsByEndpointGroup)
		if len(counters) == 0 {
			return nil
		}

		return tx.Create(&counters).Error
	})
}

// Zero counts are skipped; FindByKey fills missing categories with zero
func appendCounters(counters []models.PeriodCounter, periodKey, dimension string, counts map[string]int64) []models.PeriodCounter {
	for name, n := range counts {
		if n == 0 {
			continue
		}
		counters = append(counters, models.PeriodCounter{
			PeriodKey: periodKey,
			Dimension: dimension,
			Name:      name,
			Count:     n,
		})
	}
	return counters
}

// Leaves updated_at alone so a re-archived summary serializes the same
func (r *PeriodRepository) MarkArchived(ctx context.Context, periodKey string, at time.Time, location string) error {
	return r.db.DB.WithContext(ctx).
		Model(&models.PeriodSummary{}).
		Where("period_key = ?", periodKey).
		UpdateColumns(map[string]interface{}{
			"archived_at":      at,
			"archive_location": location,
		}).Error
}

// Keys of periods older than periodKey that were never archived, oldest first
func (r *PeriodRepository) ListOpenBefore(ctx context.Context, periodKey string) ([]string, error) {
	var keys []string

	err := r.db.DB.WithContext(ctx).
		Model(&models.PeriodSummary{}).
		Where("archived_at IS NULL AND period_key < ?", periodKey).
		Order("period_key ASC").
		Pluck("period_key", &keys).Error

	return keys, err
}
