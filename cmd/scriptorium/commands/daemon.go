package commands

import (
	"fmt"
	"log/slog"

	"github.com/Silberengel/scriptorium/internal/daemon"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/pipeline"
	"github.com/Silberengel/scriptorium/internal/version"
)

// DaemonCmd implements the 'daemon' command.
type DaemonCmd struct {
	Input          string `short:"i" type:"path" help:"Input document to watch (enables watching)"`
	SourceType     string `name:"source-type" help:"Source type of the watched input"`
	Metadata       string `type:"path" help:"Metadata file (default: @metadata.yml next to the input)"`
	ASCIIOnly      bool   `name:"ascii-only" help:"Fold the normalized document to ASCII"`
	StructureFlags `embed:""`
}

func (d *DaemonCmd) Run(g *Global, root *CLI) error {
	cfg, svc, closeFn, err := root.service()
	if err != nil {
		return err
	}
	defer closeFn()

	var req pipeline.GenerateRequest
	if d.Input != "" {
		cfg.Daemon.Watch = true
		req, err = request(InputFlags{Input: d.Input, SourceType: d.SourceType, Metadata: d.Metadata, ASCIIOnly: d.ASCIIOnly}, d.StructureFlags)
		if err != nil {
			return err
		}
	} else if cfg.Daemon.Watch {
		return ferrors.ConfigError("daemon.watch requires --input").Build()
	}

	slog.Info("Starting daemon mode", "version", version.Version, "relay", cfg.Relay.URL)
	dm := daemon.New(cfg.Daemon, svc, req, slog.Default())
	if err := dm.Run(g.context()); err != nil {
		return err
	}
	stats := dm.Stats()
	fmt.Printf("Daemon stopped after %d qc runs and %d regenerations (%d failed)\n", stats.QCRuns, stats.Regenerations, stats.Failures)
	return nil
}

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (v *VersionCmd) Run(_ *Global, _ *CLI) error {
	fmt.Println(version.String())
	return nil
}
