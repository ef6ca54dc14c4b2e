package main

import (
	"github.com/alecthomas/kong"

	"github.com/shell-compose/shellcompose/cli"
)

var version = "v0.0.0"

// config is the top level of the command line parse tree, following the
// teacher's single-config-struct pattern in main.go: one kong.Parse call
// drives both the daemon subcommand and every client subcommand.
type config struct {
	Version kong.VersionFlag `short:"V" help:"Print version information"`

	Serve cli.CmdServe `cmd:"" help:"Run the shell-compose daemon"`

	Run   cli.CmdRun   `cmd:"" help:"Run a one-shot shell command"`
	Runat cli.CmdRunat `cmd:"" help:"Run a command on a cron schedule"`
	Start cli.CmdStart `cmd:"" help:"Start a named service"`
	Up    cli.CmdUp    `cmd:"" help:"Start every service in a recipe group"`
	Stop  cli.CmdStop  `cmd:"" help:"Stop a job"`
	Down  cli.CmdDown  `cmd:"" help:"Stop every service in a recipe group"`
	Ps    cli.CmdPs    `cmd:"" help:"List processes"`
	Jobs  cli.CmdJobs  `cmd:"" help:"List jobs"`
	Logs  cli.CmdLogs  `cmd:"" help:"Stream job output"`
	Exit  cli.CmdExit  `cmd:"" help:"Terminate the daemon"`
}

func main() {
	cfg := &config{}
	kctx := kong.Parse(cfg, kong.Vars{"version": version})

	err := kctx.Run()
	kctx.FatalIfErrorf(err)
}
