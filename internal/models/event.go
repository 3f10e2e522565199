package models

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01"

// One observed, trackable API call. Immutable once created.
type RequestEvent struct {
	ID               string    `gorm:"primaryKey;size:36" json:"id"`
	Timestamp        time.Time `gorm:"index;not null" json:"timestamp"`
	Method           string    `gorm:"size:16;not null" json:"method"`
	Endpoint         string    `gorm:"not null" json:"endpoint"`
	Category         string    `gorm:"index;size:64;not null" json:"type"`
	StatusCode       int       `json:"responseStatus"`
	DurationMs       int64     `json:"responseTimeMs"`
	IPFingerprint    string    `gorm:"size:64" json:"ipFingerprint,omitempty"`
	AgentFingerprint string    `gorm:"size:64" json:"agentFingerprint,omitempty"`
	PeriodKey        string    `gorm:"index;size:7;not null" json:"periodKey"`
}

func (RequestEvent) TableName() string {
	return "request_events"
}

// Returns the YYYY-MM bucket of t in UTC
func PeriodKeyFor(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// Validates a YYYY-MM key and returns the first instant of that month
func ParsePeriodKey(key string) (time.Time, error) {
	t, err := time.Parse(periodLayout, key)
	if err != nil || t.Format(periodLayout) != key {
		return time.Time{}, fmt.Errorf("invalid period key %q: expected YYYY-MM", key)
	}
	return t, nil
}

// Returns the key of the month before key
func PreviousPeriodKey(key string) (string, error) {
	t, err := ParsePeriodKey(key)
	if err != nil {
		return "", err
	}
	return PeriodKeyFor(t.AddDate(0, -1, 0)), nil
}
