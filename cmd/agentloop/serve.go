package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"agentloop/internal/server/bootstrap"
	"agentloop/internal/shared/config"
	"agentloop/internal/shared/logging"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var addr, workspaceRoot, memoryDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP, SSE and WebSocket gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var overrides config.Overrides
			if addr != "" {
				overrides.ServerAddr = &addr
			}
			if workspaceRoot != "" {
				overrides.WorkspaceRoot = &workspaceRoot
			}
			if memoryDir != "" {
				overrides.MemoryDir = &memoryDir
			}
			cfg, meta, err := loadConfig(flags, overrides)
			if err != nil {
				return err
			}
			cleanup, err := setupLogging(cfg, flags.noColor)
			if err != nil {
				return err
			}
			defer cleanup()

			logger := logging.NewComponentLogger("Main")
			if meta.Path() != "" {
				logger.Info("Loaded config from %s", meta.Path())
			}
			if cfg.Logging.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}

			container, err := bootstrap.BuildContainer(cfg, bootstrap.WithVersion(version))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return bootstrap.RunServer(ctx, container, version)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, e.g. :8080")
	cmd.Flags().StringVar(&workspaceRoot, "workspace-root", "", "directory holding per-task workspaces")
	cmd.Flags().StringVar(&memoryDir, "memory-dir", "", "directory holding session memory files")
	return cmd
}
