// SPDX-License-Identifier: MIT
package repomonitor

import (
	"github.com/spf13/cobra"

	"github.com/skaphos/repomonitor/internal/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check [project...]",
	Short: "Run one monitoring cycle and report the result",
	Long:  "Fetches every repository once, counts commits ahead and behind, and prints the per-repository results with the overall status. Exits 1 when a repository shares no history with its remote and 2 when any repository failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		kind, err := parseOutputKind(format)
		if err != nil {
			return err
		}
		noHeaders, _ := cmd.Flags().GetBool("no-headers")
		setColorOutputMode(cmd, string(kind))

		a, err := newApp(cmd, args)
		if err != nil {
			return err
		}
		debugf(cmd, "checking with backend %s", a.Adapter.Name())

		snap, err := a.Monitor.RunCycle(cmd.Context())
		if err != nil {
			if monitor.IsCancelled(err) {
				return err
			}
			a.Log.WithError(err).Error("cycle failed")
		}
		logOutputWriteFailure(cmd, "check", writeSnapshot(cmd, snap, kind, noHeaders))
		raiseExitCode(exitCodeForSnapshot(snap))
		return nil
	},
}

func init() {
	addFormatFlag(checkCmd)
	addNoHeadersFlag(checkCmd)
	addVCSFlag(checkCmd)
	checkCmd.Flags().Int("concurrency", 0, "maximum concurrent probes (overrides config)")

	rootCmd.AddCommand(checkCmd)
}
