package main

import "github.com/creativeprojects/courier/cmd"

// set by goreleaser
var (
	version = "0.1.0-dev"
	commit  = ""
	date    = ""
	builtBy = ""
)

func main() {
	cmd.Execute(version, commit, date, builtBy)
}
