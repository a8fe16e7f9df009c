package commands

import (
	"fmt"
	"path/filepath"

	"github.com/Silberengel/scriptorium/internal/metadata"
	"github.com/Silberengel/scriptorium/internal/pipeline"
)

// InitMetadataCmd implements the 'init-metadata' command.
type InitMetadataCmd struct {
	Input         string `short:"i" required:"" type:"path" help:"Path to the input document"`
	HasCollection bool   `name:"has-collection" help:"The document has a collection level above its books"`
	Force         bool   `help:"Overwrite an existing metadata file"`
}

func (c *InitMetadataCmd) Run(_ *Global, _ *CLI) error {
	path := filepath.Join(filepath.Dir(c.Input), metadata.FileName)
	if err := metadata.WriteDraft(path, metadata.NewDraft(c.Input, c.HasCollection), c.Force); err != nil {
		return err
	}
	fmt.Printf("Wrote %s; fill in author and review the inferred title before generating\n", path)
	return nil
}

// GenerateCmd implements the 'generate' command.
type GenerateCmd struct {
	InputFlags     `embed:""`
	StructureFlags `embed:""`
}

func (c *GenerateCmd) Run(g *Global, root *CLI) error {
	req, err := request(c.InputFlags, c.StructureFlags)
	if err != nil {
		return err
	}
	_, svc, closeFn, err := root.service()
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.Generate(g.context(), req)
	if err != nil {
		return err
	}
	printGenerate(svc, res)
	return nil
}

func printGenerate(svc *pipeline.Service, res *pipeline.GenerateResult) {
	fmt.Printf("Author:  %s\n", res.NPub)
	fmt.Printf("Root:    %s\n", res.Root)
	fmt.Printf("Records: %d (%d index, %d content, %d unchanged)\n", res.Records, res.Index, res.Content, res.Reused)
	fmt.Printf("Events:  %s\n", svc.Layout().EventsFile())
	if res.Unchanged {
		fmt.Println("Input unchanged since the last generate")
	}
	if n := len(res.Diagnostics); n > 0 {
		fmt.Printf("Structure repairs: %d (see log)\n", n)
	}
}
