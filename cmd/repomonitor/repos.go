package repomonitor

import (
	"github.com/spf13/cobra"
)

var reposCmd = &cobra.Command{
	Use:   "repos [project...]",
	Short: "List the repositories that would be monitored",
	Long:  "Lists each distinct repository with the projects that map to it. Projects that share a repository are fetched once per cycle.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		kind, err := parseOutputKind(format)
		if err != nil {
			return err
		}
		noHeaders, _ := cmd.Flags().GetBool("no-headers")

		a, err := newApp(cmd, args)
		if err != nil {
			return err
		}
		repos, err := a.Lister.ListRepositories(cmd.Context())
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			infof(cmd, "no repositories found")
			raiseExitCode(1)
		}
		logOutputWriteFailure(cmd, "repos", writeRepositories(cmd, repos, kind, noHeaders))
		return nil
	},
}

func init() {
	addFormatFlag(reposCmd)
	addNoHeadersFlag(reposCmd)
	addVCSFlag(reposCmd)

	rootCmd.AddCommand(reposCmd)
}
