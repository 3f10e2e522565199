package models

import "time"

const (
	DimensionCategory      = "category"
	DimensionEndpointGroup = "endpoint_group"
)

// Aggregate for one period. The count maps are assembled from PeriodCounter
// rows and are not columns themselves.
type PeriodSummary struct {
	PeriodKey         string     `gorm:"primaryKey;size:7" json:"periodKey"`
	TotalCount        int64      `gorm:"not null" json:"totalCount"`
	TotalDurationMs   int64      `gorm:"not null" json:"-"`
	AverageDurationMs float64    `gorm:"not null" json:"averageDurationMs"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	ArchivedAt        *time.Time `json:"archivedAt"`
	ArchiveLocation   string     `json:"archiveLocation,omitempty"`

	CountsByCategory      map[string]int64 `gorm:"-" json:"countsByCategory"`
	CountsByEndpointGroup map[string]int64 `gorm:"-" json:"countsByEndpointGroup"`
}

func (PeriodSummary) TableName() string {
	return "period_summaries"
}

// Additive counter for one (period, dimension, name) triple
type PeriodCounter struct {
	PeriodKey string `gorm:"primaryKey;size:7"`
	Dimension string `gorm:"primaryKey;size:32"`
	Name      string `gorm:"primaryKey;size:255"`
	Count     int64  `gorm:"not null"`
}

func (PeriodCounter) TableName() string {
	return "period_counters"
}

// Immutable export of a closed period
type ArchiveRecord struct {
	PeriodKey  string         `json:"periodKey"`
	Summary    PeriodSummary  `json:"summary"`
	Events     []RequestEvent `json:"events"`
	EventCount int            `json:"eventCount"`
	ArchivedAt time.Time      `json:"archivedAt"`
}
