package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-upload/pkg/simpleupload"
	"github.com/tendant/simple-upload/pkg/simpleupload/api"
	"github.com/tendant/simple-upload/pkg/simpleupload/config"
	"github.com/tendant/simple-upload/pkg/simpleupload/deployment"
	"github.com/tendant/simple-upload/pkg/simpleupload/metrics"
)

func main() {
	// Deployment settings are checked before anything else is built
	deploy, err := deployment.FromEnv()
	if err != nil {
		slog.Error("Invalid deployment configuration", "err", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(serverConfig)
	slog.SetDefault(logger)

	comps, err := serverConfig.Build()
	if err != nil {
		slog.Error("Failed to build services", "err", err)
		os.Exit(1)
	}

	// chi-demo records its HTTP metrics on the default registerer, so ours
	// join it and /metrics serves both
	collector := metrics.New(prometheus.DefaultRegisterer)

	issuer := simpleupload.NewIssuer(comps.Signer, append(comps.Options, simpleupload.WithObserver(collector))...)
	handlers := api.NewHandlers(issuer, comps.Verifier)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)
	server.R.Method(http.MethodGet, "/metrics", collector.Handler())

	var mounts []func(chi.Router)
	if comps.Local != nil {
		mounts = append(mounts, comps.Local.Mount)
	}
	// The app already assigns request IDs, logs requests and recovers
	// panics; Attach only adds what it lacks.
	server.R.Group(func(r chi.Router) {
		api.Attach(r, handlers, api.RouterOptions{Metrics: collector}, mounts...)
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", serverConfig.Port),
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Upload server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"storage_backend", serverConfig.StorageBackend,
			"deployment_provider", deploy.DeploymentProvider,
			"stripe_enabled", deploy.StripeEnabled(),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}

func newLogger(c *config.ServerConfig) *slog.Logger {
	if c.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
