package service

import (
	"time"

	"veloskill/internal/config"
)

const (
	// Interactive syncs skip the staleness check
	interactiveThreshold time.Duration = 0

	// Retention of the last sync result in the cache
	lastSyncTTL = 7 * 24 * time.Hour

	// Feed values
	metersPerKm = 1000.0
	msToKmh     = 3.6
)

// SyncOptions tunes the import loop
type SyncOptions struct {
	PageSize           int
	PacingDelay        time.Duration // between activity imports
	RefreshThreshold   time.Duration // staleness before SyncIfNeeded runs
	RateLimitCooldown  time.Duration
	MaxCooldownRetries int // interactive retries after a 429
	StreamStride       int // keep every Nth GPS sample
}

// DefaultSyncOptions mirrors config.DefaultConfig
func DefaultSyncOptions() SyncOptions {
	return SyncOptionsFrom(config.DefaultConfig().Sync)
}

// SyncOptionsFrom reads the sync section of the config
func SyncOptionsFrom(c config.SyncConfig) SyncOptions {
	return SyncOptions{
		PageSize:           c.PageSize,
		PacingDelay:        c.PacingDelay.Duration,
		RefreshThreshold:   c.RefreshThreshold.Duration,
		RateLimitCooldown:  c.RateLimitCooldown.Duration,
		MaxCooldownRetries: c.MaxCooldownRetries,
		StreamStride:       c.StreamStride,
	}
}

// ProgressionOptions tunes XP caching
type ProgressionOptions struct {
	SnapshotTTL    time.Duration
	GlobalThrottle time.Duration
}

// DefaultProgressionOptions mirrors config.DefaultConfig
func DefaultProgressionOptions() ProgressionOptions {
	return ProgressionOptionsFrom(config.DefaultConfig().Progression)
}

// ProgressionOptionsFrom reads the progression section of the config
func ProgressionOptionsFrom(c config.ProgressionConfig) ProgressionOptions {
	return ProgressionOptions{
		SnapshotTTL:    c.SnapshotTTL.Duration,
		GlobalThrottle: c.GlobalThrottle.Duration,
	}
}
