// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_marks_total",
		Help: "Attendance records created, by status.",
	}, []string{"status"})

	AttendanceModifications = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_modifications_total",
		Help: "Attendance status changes appended to modification history.",
	})

	SlotConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timetable_slot_conflicts_total",
		Help: "Time slot writes rejected because of an overlap.",
	})

	VersionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timetable_versions_created_total",
		Help: "Timetable versions created.",
	})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	})

	ShortagesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_shortages_open",
		Help: "Student/subject pairs currently below minimum attendance.",
	})
)
