// Package main provides the entry point for the rangesync CLI tool.
package main

import (
	"github.com/aviarylabs/rangesync/cmd/rangesync/cmd"
)

// Version information populated by goreleaser.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.Execute(version, commit, date)
}
