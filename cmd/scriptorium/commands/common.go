package commands

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/notify"
	"github.com/Silberengel/scriptorium/internal/pipeline"
	"github.com/Silberengel/scriptorium/internal/structure"
)

// Global carries process wide state into every command.
type Global struct {
	Ctx context.Context
}

func (g *Global) context() context.Context {
	if g == nil || g.Ctx == nil {
		return context.Background()
	}
	return g.Ctx
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"scriptorium.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	InitMetadata InitMetadataCmd `cmd:"" name:"init-metadata" help:"Write a starter @metadata.yml next to the input"`
	Generate     GenerateCmd     `cmd:"" help:"Normalize the input and write signed publication records"`
	Publish      PublishCmd      `cmd:"" help:"Publish generated records to the relay, children first"`
	QC           QCCmd           `cmd:"" name:"qc" help:"Check which generated records the relay is missing"`
	All          AllCmd          `cmd:"" help:"Run generate, publish and qc"`
	Daemon       DaemonCmd       `cmd:"" help:"Run scheduled qc and republish on input changes"`
	VersionCmd   VersionCmd      `cmd:"" name:"version" help:"Print version information"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// load reads the configuration and reinstalls the logger it describes.
func (c *CLI) load() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}

// service builds a pipeline service with the configured notifier.
// The returned func releases the notifier connection.
func (c *CLI) service() (*config.Config, *pipeline.Service, func(), error) {
	cfg, err := c.load()
	if err != nil {
		return nil, nil, nil, err
	}
	n, err := notify.New(cfg.Notify)
	if err != nil {
		return nil, nil, nil, err
	}
	svc := pipeline.New(cfg, pipeline.WithNotifier(n), pipeline.WithLogger(slog.Default()))
	return cfg, svc, n.Close, nil
}

// InputFlags select the document to compile.
type InputFlags struct {
	Input      string `short:"i" required:"" type:"path" help:"Path to the input document (HTML, AsciiDoc, Markdown or text)"`
	SourceType string `name:"source-type" help:"Source type: HTML, ADOC, MARKDOWN or TEXT (default: configured, else detected from the extension)"`
	Metadata   string `type:"path" help:"Metadata file (default: @metadata.yml next to the input)"`
	ASCIIOnly  bool   `name:"ascii-only" help:"Fold the normalized document to ASCII"`
}

// StructureFlags tune heading promotion and level classification.
type StructureFlags struct {
	PromoteDefaultStructure bool   `name:"promote-default-structure" help:"Promote 'Name N' chapter lines and 'N:M' verse lines to headings"`
	ChapterPattern          string `name:"chapter-pattern" help:"Regular expression matching chapter title lines"`
	VersePattern            string `name:"verse-pattern" help:"Regular expression matching verse lines"`
	ChapterLevel            int    `name:"chapter-level" help:"Heading level of chapters (default 3 with default structure, else 4)"`
	VerseLevel              int    `name:"verse-level" help:"Heading level of verses (default chapter level + 1)"`
	UnwrapLines             bool   `name:"unwrap-lines" help:"Join hard wrapped lines inside sections"`
	UnwrapLevel             int    `name:"unwrap-level" help:"Heading level whose bodies are unwrapped (default 4)"`
	NoPreamble              bool   `name:"no-preamble" help:"Do not wrap loose sections in a Preamble chapter"`
}

func (s StructureFlags) options() structure.Options {
	opts := structure.DefaultOptions()
	opts.PromoteDefaultStructure = s.PromoteDefaultStructure
	opts.ChapterPattern = s.ChapterPattern
	opts.SectionPattern = s.VersePattern
	opts.ChapterLevel = s.ChapterLevel
	opts.SectionLevel = s.VerseLevel
	opts.UnwrapLines = s.UnwrapLines
	opts.UnwrapLevel = s.UnwrapLevel
	opts.Preamble = !s.NoPreamble
	return opts
}

func request(in InputFlags, st StructureFlags) (pipeline.GenerateRequest, error) {
	srcType, err := config.ParseSourceType(in.SourceType)
	if err != nil {
		return pipeline.GenerateRequest{}, ferrors.WrapError(err, ferrors.CategoryConfig, "invalid source type").
			WithContext("source_type", in.SourceType).Build()
	}
	return pipeline.GenerateRequest{
		Input:      in.Input,
		Metadata:   in.Metadata,
		Structure:  st.options(),
		SourceType: srcType,
		ASCIIOnly:  in.ASCIIOnly,
	}, nil
}
