// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

var severity = map[SystemStatus]int{
	StatusHealthy:  0,
	StatusDegraded: 1,
	StatusCritical: 2,
}

// Aggregate returns the worst status present in the report.
func Aggregate(report map[string]RouteHealth) SystemStatus {
	worst := StatusHealthy
	for _, route := range report {
		if severity[route.Status] > severity[worst] {
			worst = route.Status
		}
	}
	return worst
}

// RouteHealth contains health metrics for a single publish route.
type RouteHealth struct {
	Index       string       `json:"index"`
	Source      string       `json:"source"`
	Status      SystemStatus `json:"status"`
	OpenShards  int          `json:"open_shards"`
	Backlog     int64        `json:"backlog"`
	DeadLetters int64        `json:"dead_letters"`
}
