package model

import "time"

// RunStatus is the lifecycle state of a resolution run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one batch resolution over a places file.
type Run struct {
	ID         string     `json:"id"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	Places     int        `json:"places"`
	Resolved   int        `json:"resolved"`
	Unresolved int        `json:"unresolved"`
	Stats      *RunStats  `json:"stats,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStats is the counter snapshot persisted with a finished run.
type RunStats struct {
	LiveLookups       int `json:"live_lookups"`
	CacheHits         int `json:"cache_hits"`
	CacheNegativeHits int `json:"cache_negative_hits"`
}
