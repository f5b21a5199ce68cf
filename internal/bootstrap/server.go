package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/teleconsult/api"
	"github.com/Domenick1991/teleconsult/config"
	"github.com/Domenick1991/teleconsult/internal/logger"
	"github.com/Domenick1991/teleconsult/internal/service/availability"
	"github.com/Domenick1991/teleconsult/internal/service/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Dependencies struct {
	Availability availability.AvailabilityUseCase
	Bookings     booking.BookingUseCase
	Checks       map[string]HealthCheck
	Log          *zap.Logger
}

// NewRouter builds the HTTP API: /api/v1 resources, /healthz and the
// Swagger UI when a swagger directory is configured.
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	router := gin.New()
	router.Use(logger.Middleware(deps.Log), gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.HTTP.AllowedOrigins)))

	router.GET("/healthz", healthHandler(deps.Checks))

	v1 := router.Group("/api/v1")
	api.NewSlotHandler(deps.Availability).Register(v1.Group("/slots"))
	api.NewAvailabilityHandler(deps.Availability).Register(v1.Group("/providers"))
	api.NewBookingHandler(deps.Bookings).Register(v1.Group("/bookings"))

	var guards []gin.HandlerFunc
	if cfg.HTTP.ReserveRatePerMinute > 0 {
		guards = append(guards, NewIPRateLimiter(cfg.HTTP.ReserveRatePerMinute).Middleware())
	}
	api.NewReservationHandler(deps.Bookings).Register(v1.Group("/reservations"), guards...)

	if cfg.HTTP.SwaggerDir != "" {
		router.Static("/swagger", cfg.HTTP.SwaggerDir)
		router.GET("/docs/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/swagger/openapi.json"))))
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "X-Request-Id"},
		ExposeHeaders: []string{"Content-Length", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = origins
	}
	return c
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		failed := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Run serves handler on the configured address and blocks until ctx is
// canceled or the server fails.
func Run(ctx context.Context, cfg *config.Config, handler http.Handler, log *zap.Logger) error {
	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("address", cfg.HTTP.Address))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
