package repomonitor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/skaphos/repomonitor/internal/config"
	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/monitor"
	"github.com/skaphos/repomonitor/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status [repo...]",
	Short: "Show the last result recorded by a running watcher",
	Long:  "Shows the snapshot recorded in the state file. Arguments select repositories by project path, repository path, or repository id; the status and counts are then computed over the selected repositories only.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		kind, err := parseOutputKind(format)
		if err != nil {
			return err
		}
		noHeaders, _ := cmd.Flags().GetBool("no-headers")
		maxAge, _ := cmd.Flags().GetDuration("max-age")
		setColorOutputMode(cmd, string(kind))

		statePath, err := resolveStatePath(cmd)
		if err != nil {
			return err
		}
		st, err := state.Load(statePath)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no state recorded at %s (run repomonitor watch first)", statePath)
		}
		if err != nil {
			return fmt.Errorf("read state %s: %w", statePath, err)
		}

		if st.PID == 0 {
			infof(cmd, "watcher is not running; showing its last result from %s", st.UpdatedAt.Format(time.RFC3339))
			raiseExitCode(1)
		} else if st.Stale(time.Now(), maxAge) {
			infof(cmd, "state has not been updated since %s", st.UpdatedAt.Format(time.RFC3339))
			raiseExitCode(1)
		}
		snap, err := selectRecorded(st, args)
		if err != nil {
			return err
		}
		logOutputWriteFailure(cmd, "status", writeSnapshot(cmd, snap, kind, noHeaders))
		raiseExitCode(exitCodeForSnapshot(snap))
		return nil
	},
}

func init() {
	addFormatFlag(statusCmd)
	addNoHeadersFlag(statusCmd)
	statusCmd.Flags().String("state", "", "state file path (overrides config)")
	statusCmd.Flags().Duration("max-age", 0, "warn when the state is older than this (0 disables)")

	rootCmd.AddCommand(statusCmd)
}

// selectRecorded narrows the recorded snapshot to the repositories named by
// keys. No keys selects the whole snapshot.
func selectRecorded(st *state.State, keys []string) (model.Snapshot, error) {
	if len(keys) == 0 {
		return st.Snapshot, nil
	}
	selected := make([]model.RepoResult, 0, len(keys))
	seen := map[string]struct{}{}
	for _, key := range keys {
		res := st.FindRepo(key)
		if res == nil {
			if abs, err := filepath.Abs(key); err == nil {
				res = st.FindRepo(abs)
			}
		}
		if res == nil {
			return model.Snapshot{}, fmt.Errorf("no result recorded for %s", key)
		}
		if _, ok := seen[res.RepoID]; ok {
			continue
		}
		seen[res.RepoID] = struct{}{}
		selected = append(selected, *res)
	}
	snap := monitor.Aggregate(selected)
	snap.CycleID = st.Snapshot.CycleID
	snap.UpdatedAt = st.Snapshot.UpdatedAt
	return snap, nil
}

// resolveStatePath returns the --state flag or the configured state path.
func resolveStatePath(cmd *cobra.Command) (string, error) {
	if p := getStringFlag(cmd, "state"); p != "" {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	cfgPath, err := config.ResolveConfigPath(flagConfig, cwd)
	if err != nil {
		return "", err
	}
	cfg, _, err := config.LoadOrDefault(cfgPath)
	if err != nil {
		return "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return config.StatePath(cfgPath, cfg)
}
