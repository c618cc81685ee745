package models

import "time"

// MetricsSnapshot is a point-in-time view of process counters.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CheckIns                 uint64    `json:"check_ins"`
	CheckOuts                uint64    `json:"check_outs"`
	GeofenceRejections       uint64    `json:"geofence_rejections"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
