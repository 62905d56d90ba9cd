// SPDX-License-Identifier: MIT
package repomonitor

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	narrowTableWidth = 100
	tinyTableWidth   = 80
)

var getTerminalSize = term.GetSize

// tableWidth returns the width of the terminal stdout is attached to.
func tableWidth(cmd *cobra.Command) (int, bool) {
	if cmd == nil {
		return 0, false
	}
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok || !isTerminalFD(int(file.Fd())) {
		return 0, false
	}
	width, _, err := getTerminalSize(int(file.Fd()))
	if err != nil || width <= 0 {
		return 0, false
	}
	return width, true
}

// adaptiveCellLimit picks a cell length limit for the current terminal.
// Output that is not a terminal gets the normal limit.
func adaptiveCellLimit(cmd *cobra.Command, normal, narrow, tiny int) int {
	width, ok := tableWidth(cmd)
	if !ok {
		return normal
	}
	return adaptiveCellLimitForWidth(width, normal, narrow, tiny)
}

func adaptiveCellLimitForWidth(width, normal, narrow, tiny int) int {
	switch {
	case width < tinyTableWidth && tiny > 0:
		return tiny
	case width < narrowTableWidth && narrow > 0:
		return narrow
	default:
		return normal
	}
}
