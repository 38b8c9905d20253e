// Package main runs the conference registration HTTP server with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/confreg/backend/config"
	"github.com/confreg/backend/internal/app"
	"github.com/confreg/backend/pkg/logger"
)

func main() {
	boot, _ := logger.New(logger.Options{})

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("load config", zap.Error(err))
	}
	log, err := logger.New(logger.Options{Level: cfg.Log.Level, ToFile: cfg.Log.ToFile, Dir: cfg.Log.Dir})
	if err != nil {
		boot.Fatal("logger", zap.Error(err))
	}
	defer log.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup", zap.Error(err))
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("https", cfg.Server.HTTPS),
			zap.String("db", cfg.Database.Driver),
		)
		var err error
		if cfg.Server.HTTPS {
			err = srv.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}
