// Package app assembles services from configuration for the binaries in cmd/.
package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"atttracker/internal/api"
	"atttracker/internal/attendance"
	"atttracker/internal/auth"
	"atttracker/internal/calendar"
	"atttracker/internal/clock"
	"atttracker/internal/config"
	"atttracker/internal/httpmiddleware"
	"atttracker/internal/queue"
	"atttracker/internal/registry"
	"atttracker/internal/shortage"
	"atttracker/internal/store"
	"atttracker/internal/timetable"
	"atttracker/internal/user"
)

// Backend names accepted by STORE_BACKEND and QUEUE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const queueKey = "attendance:events"

// App holds the wired services and the connections behind them.
type App struct {
	Config     config.App
	Log        *zap.Logger
	Clock      clock.Clock
	DB         *store.DB    // nil on the memory backend
	Redis      *store.Redis // nil when nothing needs redis
	Registry   *registry.Service
	Timetables *timetable.Service
	Attendance *attendance.Service
	Calendar   *calendar.Service
	Users      *user.Service
	Tokens     *auth.Tokens
	Queue      queue.Queue
	Shortages  shortage.Tracker
	Evaluator  *shortage.Evaluator
}

// Build connects the configured backends and wires every service.
func Build(ctx context.Context, cfg config.App, log *zap.Logger) (*App, error) {
	clk := clock.New(cfg.Location())
	a := &App{Config: cfg, Log: log, Clock: clk}

	if cfg.StoreBackend != BackendMemory || cfg.QueueBackend != BackendMemory {
		rdb, err := store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		a.Redis = rdb
		if !a.Redis.Healthy(ctx) {
			log.Warn("redis not reachable", zap.String("addr", cfg.RedisAddr))
		}
	}

	var (
		regRepo registry.Repository
		ttRepo  timetable.Repository
		attRepo attendance.Repository
		calRepo calendar.Repository
		usrRepo user.Repository
	)
	switch cfg.StoreBackend {
	case BackendMemory:
		regRepo = registry.NewMemoryRepository()
		ttRepo = timetable.NewMemoryRepository()
		attRepo = attendance.NewMemoryRepository()
		calRepo = calendar.NewMemoryRepository()
		usrRepo = user.NewMemoryRepository()
		a.Shortages = shortage.NewMemoryTracker()
	case BackendPostgres:
		db, err := store.NewDB(ctx, cfg.DatabaseURL)
		a.DB = db
		if err != nil {
			a.Close()
			return nil, errors.Wrap(err, "connect postgres")
		}
		if err := store.Migrate(ctx, db); err != nil {
			a.Close()
			return nil, err
		}
		regRepo = registry.NewPostgresRepository(db.Client)
		ttRepo = timetable.NewPostgresRepository(db)
		attRepo = attendance.NewPostgresRepository(db.Client)
		calRepo = calendar.NewPostgresRepository(db)
		usrRepo = user.NewPostgresRepository(db.Client)
		a.Shortages = shortage.NewRedisTracker(a.Redis.Client, "")
	default:
		a.Close()
		return nil, errors.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	switch cfg.QueueBackend {
	case BackendMemory:
		a.Queue = queue.NewInMemory(256)
	case BackendRedis:
		a.Queue = queue.NewRedisQueue(a.Redis.Client, queueKey)
	default:
		a.Close()
		return nil, errors.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}

	a.Registry = registry.NewService(regRepo, clk, log.Named("registry"))
	a.Calendar = calendar.NewService(calRepo, clk, log.Named("calendar"))
	a.Timetables = timetable.NewService(ttRepo, a.Registry, clk, log.Named("timetable"))
	a.Timetables.UseHolidays(a.Calendar)
	if a.DB != nil {
		a.Timetables.UseCache(timetable.NewRedisCache(a.Redis.Client, cfg.CacheTTL))
	}
	a.Attendance = attendance.NewService(attRepo, a.Registry, clk, log.Named("attendance"))
	a.Attendance.SetModifyWindow(cfg.ModifyWindowDays)
	a.Attendance.UsePublisher(a.Queue)
	a.Users = user.NewService(usrRepo, a.Registry, log.Named("user"))
	a.Tokens = auth.NewTokens(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL, cfg.RefreshTTL)
	a.Evaluator = shortage.NewEvaluator(a.Attendance, a.Registry, a.Shortages, log.Named("shortage"))
	return a, nil
}

// Router builds the HTTP handler over the wired services.
func (a *App) Router() *gin.Engine {
	health := map[string]api.HealthCheck{}
	if a.DB != nil {
		health["db"] = a.DB.Healthy
	}
	if a.Redis != nil {
		health["redis"] = a.Redis.Healthy
	}
	var limiter *httpmiddleware.SimpleTokenBucket
	if a.Config.RateLimitPerMin > 0 {
		limiter = httpmiddleware.NewSimpleTokenBucket(a.Config.RateLimitPerMin, a.Config.RateLimitPerMin)
	}
	return api.NewRouter(api.Deps{
		Log:         a.Log.Named("http"),
		Registry:    a.Registry,
		Timetables:  a.Timetables,
		Attendance:  a.Attendance,
		Calendar:    a.Calendar,
		Users:       a.Users,
		Tokens:      a.Tokens,
		Shortages:   a.Shortages,
		Limiter:     limiter,
		Location:    a.Config.Location(),
		Health:      health,
		CORSOrigins: a.Config.CORSOrigins,
		WebDir:      a.Config.WebDir,
	})
}

// Close releases connections. It is safe on a partially built App.
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("close postgres", zap.Error(err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warn("close redis", zap.Error(err))
		}
	}
}
