// SPDX-License-Identifier: MIT
package repomonitor

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skaphos/repomonitor/internal/cliio"
	"github.com/skaphos/repomonitor/internal/config"
	"github.com/skaphos/repomonitor/internal/vcs"
)

// promptInput is overridable in tests.
var promptInput = func() *os.File { return os.Stdin }

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a repomonitor configuration",
	Long:  "Creates a repomonitor config file in the current directory by default.",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		roots, _ := cmd.Flags().GetStringSlice("root")
		projects, _ := cmd.Flags().GetStringSlice("project")
		backend, _ := cmd.Flags().GetString("vcs")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfgPath, err := config.InitConfigPath(flagConfig, cwd)
		if err != nil {
			return err
		}
		if _, err := os.Stat(cfgPath); err == nil && !force {
			in := promptInput()
			if !isTerminalFD(int(in.Fd())) {
				return fmt.Errorf("config already exists at %q (use --force to overwrite)", cfgPath)
			}
			ok, err := cliio.PromptYesNo(cmd.ErrOrStderr(), in, fmt.Sprintf("Overwrite %s? [y/N]: ", cfgPath))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("config already exists at %q", cfgPath)
			}
		}

		cfg := config.DefaultConfig()
		cfg.Roots = roots
		cfg.Projects = projects
		if backend != "" {
			if _, err := vcs.ParseAdapterSelection(backend); err != nil {
				return err
			}
			cfg.Backend = backend
		}
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote config to %s\n", cfgPath); err != nil {
			return err
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("force", false, "overwrite existing config without prompting")
	initCmd.Flags().StringSlice("root", nil, "directory to scan for repositories (repeatable)")
	initCmd.Flags().StringSlice("project", nil, "project directory to monitor (repeatable)")
	initCmd.Flags().String("vcs", "", "backends to use: git, go-git, or a comma-separated list")

	rootCmd.AddCommand(initCmd)
}
