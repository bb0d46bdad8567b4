// Command dbridge runs the connection service: an HTTP API over the
// multi-backend connection registry.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prateeksaini/dbridge/internal/backend"
	"github.com/prateeksaini/dbridge/internal/config"
	"github.com/prateeksaini/dbridge/internal/logger"
	"github.com/prateeksaini/dbridge/internal/registry"
	"github.com/prateeksaini/dbridge/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.New(nil).Fatal(err.Error())
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	log := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	manager := registry.New(log)
	defer manager.CloseAll()

	pool := backend.Config{
		MaxConns:        cfg.Pool.MaxConns,
		MinConns:        cfg.Pool.MinConns,
		MaxConnLifetime: cfg.Pool.MaxConnLifetime.Std(),
		MaxConnIdleTime: cfg.Pool.MaxConnIdleTime.Std(),
		ConnectTimeout:  cfg.Pool.ConnectTimeout.Std(),
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(manager, pool, log).Routes(),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.With().Str("addr", cfg.Server.Addr).Logger().Info("dbridge listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err.Error())
	}
	<-done
}
