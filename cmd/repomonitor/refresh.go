package repomonitor

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/repomonitor/internal/state"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Ask the running watcher to start a cycle now",
	Long:  "Signals the watcher recorded in the state file. A watcher that is already running a cycle ignores the request.",
	RunE: func(cmd *cobra.Command, args []string) error {
		statePath, err := resolveStatePath(cmd)
		if err != nil {
			return err
		}
		st, err := state.Load(statePath)
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no watcher recorded at %s", statePath)
		}
		if err != nil {
			return fmt.Errorf("read state %s: %w", statePath, err)
		}
		if st.PID <= 0 {
			return fmt.Errorf("watcher recorded at %s is not running", statePath)
		}
		if err := signalRefresh(st.PID); err != nil {
			return fmt.Errorf("signal watcher %d: %w", st.PID, err)
		}
		infof(cmd, "refresh requested from watcher %d", st.PID)
		return nil
	},
}

func init() {
	refreshCmd.Flags().String("state", "", "state file path (overrides config)")

	rootCmd.AddCommand(refreshCmd)
}
