package domain

import "time"

// SyncStats holds statistics about a single sync cycle.
type SyncStats struct {
	CycleID     string        `json:"cycle_id"`
	Found       int           `json:"found"`
	Sent        int           `json:"sent"`
	Failed      int           `json:"failed"`
	Filtered    int           `json:"filtered"`
	Soft        bool          `json:"soft"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// LifetimeStats aggregates cycles for the life of the process.
type LifetimeStats struct {
	State              string     `json:"state"`
	TotalCycles        int64      `json:"total_cycles"`
	TotalErrors        int64      `json:"total_errors"`
	TotalSent          int64      `json:"total_sent"`
	TotalFailed        int64      `json:"total_failed"`
	LastError          string     `json:"last_error,omitempty"`
	LastErrorAt        time.Time  `json:"last_error_at,omitempty"`
	LastSuccessfulSync time.Time  `json:"last_successful_sync,omitempty"`
	LastCycle          *SyncStats `json:"last_cycle,omitempty"`
}

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// Health is the derived status reported by the health surface.
type Health struct {
	Status             HealthStatus `json:"status"`
	State              string       `json:"state"`
	TotalErrors        int64        `json:"total_errors"`
	LastError          string       `json:"last_error,omitempty"`
	LastSuccessfulSync time.Time    `json:"last_successful_sync,omitempty"`
}
