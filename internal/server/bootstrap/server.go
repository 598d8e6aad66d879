package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	serverHTTP "agentloop/internal/server/http"
	"agentloop/internal/shared/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// NewHTTPServer builds the gateway for c without starting it.
func NewHTTPServer(c *Container, version string) *http.Server {
	cfg := c.Config.Server
	routerCfg := serverHTTP.RouterConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		Version:           version,
		Logger:            logging.NewComponentLogger("HTTP"),
	}
	if cfg.EnableMetrics {
		routerCfg.Gatherer = c.Registry
	}
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           serverHTTP.NewRouter(c.Manager, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// RunServer serves the gateway and the maintenance sweeps until ctx ends,
// then drains the HTTP server and running tasks.
func RunServer(ctx context.Context, c *Container, version string) error {
	logger := logging.NewComponentLogger("Main")
	server := NewHTTPServer(c, version)

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	}
	logger.Info("agentloop %s listening on %s", version, listener.Addr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return c.Manager.RunMaintenance(groupCtx, c.Config.Memory.SweepInterval)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down...")

		timeout := c.Config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// Tasks stop first so their terminal events close open streams.
		var errs []error
		if err := c.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	err = group.Wait()
	if err != nil {
		logger.Error("Server stopped with error: %v", err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}
