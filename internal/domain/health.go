package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status    string          `json:"status"` // healthy, degraded
	Timestamp string          `json:"timestamp"`
	Services  []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an upstream dependency.
type ServiceHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// CacheMetrics is returned by GET /v1/metrics/cache.
type CacheMetrics struct {
	Entries           int     `json:"entries"`
	Hits              float64 `json:"hits"`
	Misses            float64 `json:"misses"`
	Fetches           float64 `json:"fetches"`
	SuppressedCommits float64 `json:"suppressedCommits"`
	Invalidations     float64 `json:"invalidations"`
	HitRate           float64 `json:"hitRate"`
}
