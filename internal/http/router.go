package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/bellcorp/events/internal/auth"
	"github.com/bellcorp/events/internal/cache"
	"github.com/bellcorp/events/internal/config"
	"github.com/bellcorp/events/internal/http/handlers"
	"github.com/bellcorp/events/internal/http/middlewares"
	"github.com/bellcorp/events/internal/observability"
	"github.com/bellcorp/events/internal/repo/postgres"
	"github.com/bellcorp/events/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20 // 1 MiB

func NewRouter(
	cfg config.Config,
	log *slog.Logger,
	pool *pgxpool.Pool,
	reg *prometheus.Registry,
	prom *observability.Prom,
	nudge service.QueueNudger,
) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(maxBodyBytes))
	r.Use(middlewares.RequireJSON())
	r.Use(otelgin.Middleware("events-api"))
	r.Use(prom.GinHandleMiddleware())

	// health + metrics
	ping := func() error {
		if pool == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return pool.Ping(ctx)
	}

	health := handlers.NewHealthHandler(ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// repositories
	eventsRepo := postgres.NewEventsRepo(pool, prom)
	registrationsRepo := postgres.NewRegistrationsRepo(pool, prom)
	usersRepo := postgres.NewUsersRepo(pool)
	refreshRepo := postgres.NewRefreshTokensRepo(pool)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	// service layer
	registrationsSvc := service.NewRegistrations(log, eventsRepo, registrationsRepo, jobsRepo, nudge)

	// handlers
	jwtManager := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	authMw := middlewares.NewAuthMiddleware(jwtManager)

	listCache := cache.New(30 * time.Second)

	authHandler := handlers.NewAuthHandler(usersRepo, jwtManager, refreshRepo, cfg)
	eventsHandler := handlers.NewEventsHandler(eventsRepo, listCache)
	registrationsHandler := handlers.NewRegistrationsHandler(registrationsSvc)

	// auth routes, rate limited by IP
	authLimiter := middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow)

	authGroup := r.Group("/auth")
	authGroup.Use(authLimiter.RateLimiterMiddleware(middlewares.KeyByIP))
	{
		authGroup.POST("/register", authHandler.SignUp)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
		authGroup.GET("/me", authMw.RequireAuth(), authHandler.Me)
	}

	// events: reads are public, writes are admin only
	r.GET("/events", eventsHandler.ListEvents)
	r.GET("/events/meta/categories", eventsHandler.Categories)
	r.GET("/events/meta/locations", eventsHandler.Locations)
	r.GET("/events/:id", eventsHandler.GetEventByID)

	admin := r.Group("/events")
	admin.Use(authMw.RequireAuth(), authMw.RequireRole("admin"))
	{
		admin.POST("", eventsHandler.CreateEvent)
		admin.PUT("/:id", eventsHandler.UpdateEvent)
		admin.DELETE("/:id", eventsHandler.DeleteEvent)
	}

	// registrations, all behind auth
	regs := r.Group("/registrations")
	regs.Use(authMw.RequireAuth())
	{
		regs.POST("/:eventId", registrationsHandler.Register)
		regs.DELETE("/:eventId", registrationsHandler.Cancel)
		regs.GET("/check/:eventId", registrationsHandler.Check)
		regs.GET("/my-events", registrationsHandler.MyEvents)
	}

	return r
}
