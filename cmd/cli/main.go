package main

import (
	"context"

	"github.com/alecthomas/kong"

	"github.com/wolfeidau/wardcast/cmd/cli/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode."`
		Version kong.VersionFlag
		Listen  commands.ListenCmd `cmd:"" help:"Connect and print incoming notifications"`
		Send    commands.SendCmd   `cmd:"" help:"Connect and send a single frame"`
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
