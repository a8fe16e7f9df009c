package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/Silberengel/scriptorium/cmd/scriptorium/commands"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/version"
)

const description = `Compile a document into a hierarchy of signed Nostr publication records
(kind 30040 indexes, kind 30041 content), publish them to a relay and keep the
relay complete.

Environment:
  SCRIPTORIUM_KEY     nsec... or 64 hex secret key
  SCRIPTORIUM_RELAY   relay URL (default wss://thecitadel.nostr1.com)
  SCRIPTORIUM_SOURCE  default source type
  SCRIPTORIUM_OUT     output directory`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("scriptorium"),
		kong.Description(description),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)
	err := parser.Run(&commands.Global{Ctx: ctx}, cli)
	if err != nil {
		stop()
		ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
