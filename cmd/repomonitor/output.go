package repomonitor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skaphos/repomonitor/internal/cliio"
	"github.com/skaphos/repomonitor/internal/model"
	"github.com/skaphos/repomonitor/internal/sortutil"
	"github.com/skaphos/repomonitor/internal/status"
	"github.com/skaphos/repomonitor/internal/tableutil"
	"github.com/skaphos/repomonitor/internal/termstyle"
)

type outputKind string

const (
	outputKindTable outputKind = "table"
	outputKindWide  outputKind = "wide"
	outputKindJSON  outputKind = "json"
	outputKindYAML  outputKind = "yaml"
)

const (
	noHeadersUsage = "when using table format, do not print headers"
	formatUsage    = "output format: table, wide, json, yaml"
)

// repoStatusWarning marks a repository whose history shares no commit with
// its remote within the search depth.
const repoStatusWarning = "warning"

func parseOutputKind(format string) (outputKind, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", string(outputKindTable):
		return outputKindTable, nil
	case string(outputKindWide):
		return outputKindWide, nil
	case string(outputKindJSON):
		return outputKindJSON, nil
	case string(outputKindYAML), "yml":
		return outputKindYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q", format)
	}
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", "table", formatUsage)
}

func addNoHeadersFlag(cmd *cobra.Command) {
	cmd.Flags().Bool("no-headers", false, noHeadersUsage)
}

// logOutputWriteFailure records non-fatal output write/flush failures.
// CLI consumers frequently pipe to tools that close early (for example `head`),
// so we log and continue instead of treating these as command failures.
func logOutputWriteFailure(cmd *cobra.Command, context string, err error) {
	if err == nil {
		return
	}
	debugf(cmd, "ignored output write failure (%s): %v", context, err)
}

// repoStatus is the per-repository status shown in tables.
func repoStatus(r model.RepoResult) string {
	switch {
	case r.Soft:
		return repoStatusWarning
	case !r.OK():
		return string(model.StatusError)
	default:
		return string(model.DeriveStatus(r.State.TrackingBranchAhead, r.State.RemoteBranchAhead))
	}
}

func repoStatusColor(value string) string {
	if value == repoStatusWarning {
		return termstyle.Warn
	}
	return termstyle.ForStatus(model.OverallStatus(value))
}

// exitCodeForSnapshot maps a snapshot to the CLI exit code: 2 when any
// repository failed or the cycle could not list repositories, 1 when the
// only problems are repositories without a common ancestor.
func exitCodeForSnapshot(s model.Snapshot) int {
	if s.Status != model.StatusError {
		return 0
	}
	soft := false
	for _, r := range s.Repos {
		if r.OK() {
			continue
		}
		if !r.Soft {
			return 2
		}
		soft = true
	}
	if soft {
		return 1
	}
	return 2
}

func writeSnapshot(cmd *cobra.Command, s model.Snapshot, kind outputKind, noHeaders bool) error {
	out := cmd.OutOrStdout()
	switch kind {
	case outputKindJSON:
		return cliio.WriteJSON(out, s)
	case outputKindYAML:
		return cliio.WriteYAML(out, s)
	default:
		if err := writeSnapshotTable(cmd, s, kind == outputKindWide, noHeaders); err != nil {
			return err
		}
		summary := termstyle.Colorize(colorOutputEnabled, status.Summary(s), termstyle.ForStatus(s.Status))
		_, err := fmt.Fprintln(out, summary)
		return err
	}
}

func writeSnapshotTable(cmd *cobra.Command, s model.Snapshot, wide bool, noHeaders bool) error {
	repos := slices.Clone(s.Repos)
	sortutil.SortRepoResults(repos)

	headers := []string{"PATH", "STATUS", "AHEAD", "BEHIND", "ERROR"}
	if wide {
		headers = []string{"PATH", "STATUS", "AHEAD", "BEHIND", "TRACKING", "REMOTE", "REPO_ID", "PROJECTS", "ERROR_KIND", "ERROR_CLASS", "ERROR"}
	}
	errLimit := adaptiveCellLimit(cmd, 60, 40, 24)
	if wide {
		errLimit = 0
	}

	rows := make([][]string, 0, len(repos))
	for _, r := range repos {
		st := repoStatus(r)
		cells := []string{
			r.Path,
			termstyle.Colorize(colorOutputEnabled, st, repoStatusColor(st)),
			strconv.Itoa(r.State.TrackingBranchAhead),
			strconv.Itoa(r.State.RemoteBranchAhead),
		}
		if wide {
			cells = append(cells,
				dashIfEmpty(r.State.TrackingRef),
				dashIfEmpty(r.State.RemoteRef),
				r.RepoID,
				strconv.Itoa(len(r.Projects)),
				dashIfEmpty(r.ErrorKind),
				dashIfEmpty(r.ErrorClass),
			)
		}
		cells = append(cells, dashIfEmpty(tableutil.Truncate(r.Error, errLimit)))
		rows = append(rows, cells)
	}
	return cliio.WriteTable(cmd.OutOrStdout(), colorOutputEnabled, noHeaders, headers, rows)
}

func writeRepositories(cmd *cobra.Command, repos []model.Repository, kind outputKind, noHeaders bool) error {
	out := cmd.OutOrStdout()
	switch kind {
	case outputKindJSON:
		return cliio.WriteJSON(out, repos)
	case outputKindYAML:
		return cliio.WriteYAML(out, repos)
	}
	headers := []string{"PATH", "REPO_ID", "PROJECTS"}
	rows := make([][]string, 0, len(repos))
	for _, repo := range repos {
		projects := strconv.Itoa(len(repo.Projects))
		if kind == outputKindWide {
			projects = strings.Join(repo.Projects, ",")
		}
		rows = append(rows, []string{repo.Path, repo.ID, projects})
	}
	return cliio.WriteTable(out, false, noHeaders, headers, rows)
}

func dashIfEmpty(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
