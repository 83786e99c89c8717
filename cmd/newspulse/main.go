package main

import "github.com/deusflow/newspulse/internal/app"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	app.SetVersionInfo(version, commit, date)
	app.Execute()
}
