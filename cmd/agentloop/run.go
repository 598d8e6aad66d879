package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	agentports "agentloop/internal/agent/ports"
	"agentloop/internal/server/app"
	"agentloop/internal/server/bootstrap"
	"agentloop/internal/shared/config"
)

func newRunCommand(flags *globalFlags) *cobra.Command {
	var sessionID, workspaceRoot string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Run one task in-process and stream its events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var overrides config.Overrides
			if workspaceRoot != "" {
				overrides.WorkspaceRoot = &workspaceRoot
			}
			cfg, _, err := loadConfig(flags, overrides)
			if err != nil {
				return err
			}
			if flags.logLevel == "" {
				cfg.Logging.Level = "warn"
			}
			cleanup, err := setupLogging(cfg, flags.noColor)
			if err != nil {
				return err
			}
			defer cleanup()

			container, err := bootstrap.BuildContainer(cfg, bootstrap.WithVersion(version))
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				_ = container.Shutdown(shutdownCtx)
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			printer := newEventPrinter(cmd.OutOrStdout(), flags.noColor, verbose)
			return runTask(ctx, container, strings.Join(args, " "), sessionID, printer)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session ID to share memory across runs")
	cmd.Flags().StringVar(&workspaceRoot, "workspace-root", "", "directory holding per-task workspaces")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print status events")
	return cmd
}

// runTask submits prompt and prints its events until the terminal one. An
// interrupt cancels the task and waits for its closing event.
func runTask(ctx context.Context, container *bootstrap.Container, prompt, sessionID string, printer *eventPrinter) error {
	task, err := container.Manager.Submit(ctx, prompt, sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(printer.out, "task %s (session %s)\n", task.ID, task.SessionID)

	sub, err := container.Manager.Subscribe(context.Background(), task.ID)
	if err != nil {
		return err
	}
	defer sub.Close()

	interrupted := ctx.Done()
	var last agentports.Event
	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				if last.Type == agentports.EventFinalAnswer {
					return nil
				}
				return &exitCodeError{code: 2}
			}
			printer.Print(event)
			last = event
		case <-interrupted:
			interrupted = nil
			// A conflict means the task already finished; its final event is still buffered.
			if _, err := container.Manager.Cancel(context.Background(), task.ID); err != nil && !errors.Is(err, app.ErrConflict) {
				return err
			}
		}
	}
}
