// SPDX-License-Identifier: MIT
package main

import "github.com/skaphos/repomonitor/cmd/repomonitor"

var execute = repomonitor.Execute

func main() {
	execute()
}
