package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/jobclock/internal/config"
	"github.com/kiranshivaraju/jobclock/internal/reconcile"
	"github.com/kiranshivaraju/jobclock/internal/timer"
	"github.com/kiranshivaraju/jobclock/pkg/models"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <jobID>",
		Short: "Show and control a job timer",
		Example: `
# Open the timer for a job, then type commands:
#   start | pause <reason> | resume | stop | quit
jobclock watch 3f0c6a1e-8d4b-4a53-9d1e-2b7c9a0e5f11`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			client := reconcile.NewHTTPClient(cfg.ServerURL, cfg.APIKey, cfg.Timeout)
			return watch(cmd.Context(), watchOptions{
				jobID:  jobID,
				client: client,
				cfg:    cfg,
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
				logger: flags.logger(cmd.ErrOrStderr()),
			})
		},
	}
}

type watchOptions struct {
	jobID  uuid.UUID
	client reconcile.Client
	cfg    *config.ClientConfig
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
}

// watch runs an interactive timer session until the user quits, input ends
// or ctx is cancelled.
func watch(ctx context.Context, o watchOptions) error {
	ps, err := o.client.PageState(ctx, o.jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}

	seed := timer.SeedFromPage(*ps)
	renderer := newTerminalRenderer(o.out, o.cfg.Color)
	renderer.Info(jobSummary(o.jobID, seed))

	session := timer.NewSession(o.jobID, seed, o.client, renderer,
		timer.WithTickInterval(o.cfg.TickInterval),
		timer.WithLogger(o.logger.With("job_id", o.jobID)),
	)
	defer func() {
		session.Close()
		fmt.Fprintln(o.out)
	}()
	session.Refresh()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(o.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			ev, err := parseCommand(line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				renderer.Notice(err)
				session.Refresh()
				continue
			}
			if ev == nil {
				session.Refresh()
				continue
			}
			if err := session.Handle(*ev); err != nil {
				renderer.Notice(err)
				session.Refresh()
			}
		}
	}
}

func jobSummary(jobID uuid.UUID, seed timer.Seed) string {
	status := seed.Status
	if status == "" {
		status = "unknown status"
	}
	return fmt.Sprintf("job %s: %s, target %s", jobID, status, timer.Format(seed.TargetSeconds))
}

// parseCommand turns an input line into a timer event. A blank line yields
// no event; quit yields errQuit.
func parseCommand(line string) (*timer.Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	switch verb := strings.ToLower(fields[0]); verb {
	case "quit", "exit", "q":
		return nil, errQuit
	case string(models.ActionStart), string(models.ActionResume), string(models.ActionStop):
		return &timer.Event{Kind: models.Action(verb)}, nil
	case string(models.ActionPause):
		reason := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		return &timer.Event{Kind: models.ActionPause, Reason: reason}, nil
	default:
		return nil, fmt.Errorf("unknown command %q (start, pause <reason>, resume, stop, quit)", fields[0])
	}
}
