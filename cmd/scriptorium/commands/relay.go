package commands

import (
	"fmt"

	"github.com/Silberengel/scriptorium/internal/publish"
	"github.com/Silberengel/scriptorium/internal/reconcile"
)

// PublishCmd implements the 'publish' command.
type PublishCmd struct{}

func (c *PublishCmd) Run(g *Global, root *CLI) error {
	_, svc, closeFn, err := root.service()
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := svc.Publish(g.context())
	if report != nil {
		printPublish(report)
	}
	return err
}

func printPublish(r *publish.Report) {
	fmt.Printf("Relay:      %s\n", r.Relay)
	fmt.Printf("Published:  %d of %d (%d already stored, %d retries)\n", r.Stored+r.Duplicates, r.Total, r.Duplicates, r.Retries)
	if r.Failed != nil {
		fmt.Printf("Stopped at: %s\n", r.Failed)
	}
	if r.RootVerified {
		fmt.Println("Root verified on relay")
	}
}

// QCCmd implements the 'qc' command.
type QCCmd struct {
	Republish bool `help:"Republish missing records, children first, and re-check"`
}

func (c *QCCmd) Run(g *Global, root *CLI) error {
	_, svc, closeFn, err := root.service()
	if err != nil {
		return err
	}
	defer closeFn()

	report, err := svc.QC(g.context(), c.Republish)
	if report != nil {
		printQC(report)
	}
	return err
}

func printQC(r *reconcile.Report) {
	fmt.Print(r.Table())
}

// AllCmd implements the 'all' command.
type AllCmd struct {
	InputFlags     `embed:""`
	StructureFlags `embed:""`
	Republish      bool `help:"Republish records qc finds missing"`
}

func (c *AllCmd) Run(g *Global, root *CLI) error {
	req, err := request(c.InputFlags, c.StructureFlags)
	if err != nil {
		return err
	}
	_, svc, closeFn, err := root.service()
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := svc.All(g.context(), req, c.Republish)
	if res.Generate != nil {
		printGenerate(svc, res.Generate)
	}
	if res.Publish != nil {
		printPublish(res.Publish)
	}
	if res.QC != nil {
		printQC(res.QC)
	}
	return err
}
