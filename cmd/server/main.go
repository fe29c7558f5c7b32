package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mkmk6794/timepick/internal/admin"
	"github.com/mkmk6794/timepick/internal/api"
	"github.com/mkmk6794/timepick/internal/config"
	"github.com/mkmk6794/timepick/internal/middleware"
	"github.com/mkmk6794/timepick/internal/schedule"
	"github.com/mkmk6794/timepick/internal/seed"
	"github.com/mkmk6794/timepick/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log.SetFormatter(&log.JSONFormatter{})
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	gin.SetMode(cfg.GinMode)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		log.WithError(err).Fatal("failed to create db directory")
	}

	st, err := store.Open(cfg.StoreDriver, cfg.DBPath)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.StoreDriver).Fatal("failed to open store")
	}
	defer st.Close()

	if err := seed.LoadFromFile(context.Background(), cfg.SeedFile, st); err != nil {
		log.WithError(err).Fatal("failed to seed data")
	}

	swagger, err := api.GetSwagger()
	if err != nil {
		log.WithError(err).Fatal("failed to load embedded swagger spec")
	}

	validator, err := middleware.NewOpenAPIValidator(swagger)
	if err != nil {
		log.WithError(err).Fatal("failed to create openapi validator")
	}

	limiter := middleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	defer limiter.Stop()

	svc := schedule.NewService(st)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log.StandardLogger()))
	r.Use(limiter.Handler())
	r.Use(validator)

	api.RegisterHandlers(r, api.NewHandler(svc, cfg.PublicURL))

	srv := &http.Server{
		Handler:           middleware.CORS(r, cfg.CORSOrigins),
		Addr:              net.JoinHostPort("0.0.0.0", cfg.Port),
		ReadHeaderTimeout: 10 * time.Second,
	}

	adminRouter := gin.New()
	adminRouter.Use(gin.Recovery())
	adminRouter.Use(middleware.RequestLogger(log.StandardLogger()))

	admin.RegisterHandlers(adminRouter, admin.NewHandler(st, svc))

	adminSrv := &http.Server{
		Handler:           adminRouter,
		Addr:              net.JoinHostPort("0.0.0.0", cfg.AdminPort),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{"addr": srv.Addr, "driver": cfg.StoreDriver}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	go func() {
		log.WithField("addr", adminSrv.Addr).Info("starting admin server")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("admin server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.WithField("signal", fmt.Sprintf("%v", sig)).Info("shutting down servers")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}
	if err := adminSrv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("admin server shutdown error")
	}
}
