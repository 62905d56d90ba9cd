package repomonitor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/skaphos/repomonitor/internal/config"
	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/refwatch"
	"github.com/skaphos/repomonitor/internal/state"
	"github.com/skaphos/repomonitor/internal/status"
	"github.com/skaphos/repomonitor/internal/termstyle"
)

var watchCmd = &cobra.Command{
	Use:   "watch [project...]",
	Short: "Monitor repositories until interrupted",
	Long:  "Runs a monitoring cycle on a schedule, prints a summary line whenever the overall status changes, and records every snapshot in the state file. `repomonitor refresh` (or a local branch moving, when watch_refs is enabled) starts the next cycle early.",
	RunE: func(cmd *cobra.Command, args []string) error {
		setColorOutputMode(cmd, "table")
		a, err := newApp(cmd, args)
		if err != nil {
			return err
		}
		statePath := getStringFlag(cmd, "state")
		if statePath == "" {
			statePath, err = config.StatePath(a.Runtime.Path, a.Config)
			if err != nil {
				return err
			}
		}
		return runWatch(cmd.Context(), cmd, a, statePath)
	},
}

func init() {
	addVCSFlag(watchCmd)
	watchCmd.Flags().Bool("now", false, "run the first cycle immediately instead of after the start delay")
	watchCmd.Flags().Int("concurrency", 0, "maximum concurrent probes (overrides config)")
	watchCmd.Flags().String("state", "", "state file path (overrides config)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, cmd *cobra.Command, a *app, statePath string) error {
	writer := state.NewWriter(statePath, os.Getpid())
	unsubscribeState := a.Board.Subscribe(writer)
	defer unsubscribeState()
	unsubscribeConsole := a.Board.Subscribe(consoleListener(cmd))
	defer unsubscribeConsole()
	defer func() {
		if err := writer.Release(); err != nil {
			a.Log.WithError(err).Warn("failed to release state file")
		}
	}()

	if a.Config.WatchRefs {
		stopRefs, err := startRefWatch(ctx, a)
		if err != nil {
			a.Log.WithError(err).Warn("ref watching disabled")
		} else {
			defer stopRefs()
		}
	}

	refresh := make(chan os.Signal, 1)
	if sigs := refreshSignals(); len(sigs) > 0 {
		signal.Notify(refresh, sigs...)
		defer signal.Stop(refresh)
	}

	a.Log.WithFields(logrus.Fields{
		"state":       writer.Path(),
		"backend":     a.Adapter.Name(),
		"delay":       a.Config.Monitor.Delay.String(),
		"start_delay": a.Config.Monitor.StartDelay.String(),
	}).Info("watching repositories")
	a.Monitor.Start(ctx)

	for {
		select {
		case <-ctx.Done():
			a.Monitor.Stop()
			a.Monitor.Wait()
			infof(cmd, "stopped after %d cycles", a.Monitor.Cycles())
			return nil
		case <-refresh:
			if a.Monitor.Refresh() {
				a.Log.Info("refresh requested")
			} else {
				a.Log.WithField("state", a.Monitor.State()).Debug("refresh ignored")
			}
		}
	}
}

// consoleListener prints the summary line whenever the status changes.
func consoleListener(cmd *cobra.Command) status.Listener {
	var last string
	return status.ListenerFunc(func(s model.Snapshot) error {
		summary := status.Summary(s)
		if summary == last {
			return nil
		}
		last = summary
		stamp := s.UpdatedAt
		if stamp.IsZero() {
			stamp = time.Now()
		}
		line := termstyle.Colorize(colorOutputEnabled, summary, termstyle.ForStatus(s.Status))
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", stamp.Format(time.TimeOnly), line)
		return err
	})
}

// startRefWatch watches the repositories listed now and picks up
// repositories that appear in later cycles.
func startRefWatch(ctx context.Context, a *app) (func(), error) {
	repos, err := a.Lister.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}
	log := a.Log.WithField("component", "refwatch")
	w, err := refwatch.New(repos, a.Monitor, refwatch.DefaultDebounce, log)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"repos": len(repos),
		"dirs":  len(w.WatchList()),
	}).Debug("watching local branch refs")
	unsubscribe := a.Board.Subscribe(status.ListenerFunc(func(s model.Snapshot) error {
		for _, r := range s.Repos {
			if err := w.Add(model.Repository{ID: r.RepoID, Path: r.Path}); err != nil {
				log.WithField("repo", r.RepoID).WithError(err).Debug("not watching repository refs")
			}
		}
		return nil
	}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(runCtx); err != nil {
			log.WithError(err).Warn("ref watcher stopped")
		}
	}()
	return func() {
		unsubscribe()
		cancel()
		<-done
		_ = w.Close()
	}, nil
}
