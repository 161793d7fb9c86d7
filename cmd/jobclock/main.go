// Command jobclock is the technician's terminal job timer.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/jobclock/internal/config"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "jobclock",
		Short: "Workshop job timer",
		Long: `jobclock tracks time worked on a workshop job against its target and
keeps the clock reconciled with the job server.

Configuration is read from jobclock.yaml in the user config directory
(override with --config); JOBCLOCK_SERVER_URL and JOBCLOCK_API_KEY take
precedence over the file.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to client config file")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newWatchCmd(flags), newKeygenCmd())
	return root
}

func (f *globalFlags) loadConfig() (*config.ClientConfig, error) {
	path := f.configPath
	if path == "" {
		p, err := config.DefaultClientPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.LoadClient(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// logger writes to stderr so it never interleaves with the timer line on
// stdout. Only warnings show unless --verbose is set.
func (f *globalFlags) logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if f.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
