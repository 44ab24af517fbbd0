// Package api exposes the tracker over HTTP.
package api

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"atttracker/internal/attendance"
	"atttracker/internal/auth"
	"atttracker/internal/calendar"
	"atttracker/internal/httpmiddleware"
	"atttracker/internal/logging"
	"atttracker/internal/registry"
	"atttracker/internal/shortage"
	"atttracker/internal/timetable"
	"atttracker/internal/user"
)

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps are the services the router dispatches to.
type Deps struct {
	Log         *zap.Logger
	Registry    *registry.Service
	Timetables  *timetable.Service
	Attendance  *attendance.Service
	Calendar    *calendar.Service
	Users       *user.Service
	Tokens      *auth.Tokens
	Shortages   shortage.Tracker
	Limiter     *httpmiddleware.SimpleTokenBucket // nil disables rate limiting
	Location    *time.Location
	Health      map[string]HealthCheck
	CORSOrigins []string
	WebDir      string // served at / when set
}

type handlers struct {
	Deps
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	h := &handlers{Deps: d}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.GinLogger(d.Log, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(d.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.health)

	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if d.Limiter != nil {
		limit = d.Limiter.GinMiddleware()
	}

	public := r.Group("/v1/auth", limit)
	public.POST("/register", h.register)
	public.POST("/login", h.login)
	public.POST("/refresh", h.refresh)

	v1 := r.Group("/v1", auth.Bearer(d.Tokens), limit)
	admin := auth.RequireRole(user.RoleAdmin)

	v1.GET("/me", h.me)

	v1.GET("/branches", h.listBranches)
	v1.POST("/branches", admin, h.createBranch)
	v1.GET("/branches/:id", h.getBranch)
	v1.PUT("/branches/:id", admin, h.updateBranch)
	v1.POST("/branches/:id/deactivate", admin, h.deactivateBranch)

	v1.GET("/subjects", h.listSubjects)
	v1.POST("/subjects", admin, h.createSubject)
	v1.GET("/subjects/:id", h.getSubject)
	v1.PUT("/subjects/:id", admin, h.updateSubject)
	v1.POST("/subjects/:id/deactivate", admin, h.deactivateSubject)

	v1.GET("/timetables", h.listTimetables)
	v1.POST("/timetables", admin, h.createTimetable)
	v1.GET("/timetables/current", h.currentTimetable)
	v1.GET("/timetables/today", h.todaySchedule)
	v1.GET("/timetables/next", h.nextClass)
	v1.GET("/timetables/history", h.timetableHistory)
	v1.GET("/timetables/:id", h.getTimetable)
	v1.GET("/timetables/:id/weekly-count", h.weeklyCount)
	v1.POST("/timetables/:id/slots", admin, h.addSlot)
	v1.PUT("/timetables/:id/slots", admin, h.updateSlot)
	v1.DELETE("/timetables/:id/slots", admin, h.deleteSlot)
	v1.PUT("/timetables/:id/schedule", admin, h.replaceSchedule)
	v1.POST("/timetables/:id/versions", admin, h.createVersion)
	v1.POST("/timetables/:id/deactivate", admin, h.deactivateTimetable)

	v1.POST("/attendance", h.markAttendance)
	v1.POST("/attendance/bulk", h.markBulk)
	v1.GET("/attendance", h.listAttendance)
	v1.PATCH("/attendance/:id/status", h.modifyStatus)
	v1.GET("/attendance/summary/student/:id", h.studentSummary)
	v1.GET("/attendance/summary/subject/:id", admin, h.subjectSummary)
	v1.GET("/attendance/daily", admin, h.dailyCount)
	v1.GET("/attendance/trends/:id", h.trends)
	v1.GET("/attendance/shortages", h.shortages)

	v1.GET("/calendar", h.listEvents)
	v1.POST("/calendar", admin, h.createEvent)
	v1.GET("/calendar/range", h.eventsForRange)
	v1.GET("/calendar/holidays", h.holidaysForRange)
	v1.GET("/calendar/:id", h.getEvent)
	v1.PUT("/calendar/:id", admin, h.updateEvent)
	v1.DELETE("/calendar/:id", admin, h.deleteEvent)
	v1.POST("/calendar/:id/recurrences", admin, h.createRecurrences)

	if d.WebDir != "" {
		r.StaticFile("/", filepath.Join(d.WebDir, "index.html"))
		r.Static("/static", filepath.Join(d.WebDir, "static"))
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}

func (h *handlers) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.Health {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
