package service

import "errors"

var (
	// No durable backend; analytics run in memory-only mode
	ErrNotConfigured = errors.New("durable analytics backend not configured")
	// No data recorded for the requested period
	ErrNotFound          = errors.New("no data for this period")
	ErrInvalidPeriod     = errors.New("invalid period key")
	ErrArchiveInProgress = errors.New("archive already in progress for this period")

	ErrInvalidCredentials = errors.New("invalid credentials")
)
