package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Silberengel/scriptorium/internal/config"
	ferrors "github.com/Silberengel/scriptorium/internal/foundation/errors"
	"github.com/Silberengel/scriptorium/internal/forest"
	"github.com/Silberengel/scriptorium/internal/keys"
	"github.com/Silberengel/scriptorium/internal/layout"
	"github.com/Silberengel/scriptorium/internal/localindex"
	"github.com/Silberengel/scriptorium/internal/logfields"
	"github.com/Silberengel/scriptorium/internal/metadata"
	"github.com/Silberengel/scriptorium/internal/record"
	"github.com/Silberengel/scriptorium/internal/source"
	"github.com/Silberengel/scriptorium/internal/structure"
	"github.com/Silberengel/scriptorium/internal/tags"
)

// GenerateRequest names the input document and how to read it.
type GenerateRequest struct {
	Input string
	// Metadata defaults to @metadata.yml next to Input.
	Metadata   string
	Structure  structure.Options
	SourceType config.SourceType
	ASCIIOnly  bool
}

// GenerateResult summarizes a compile.
type GenerateResult struct {
	Records     int
	Index       int
	Content     int
	Reused      int
	Root        record.Key
	NPub        string
	Fingerprint string
	// Unchanged is set when metadata and normalized input match the last run.
	Unchanged   bool
	Diagnostics []structure.Diagnostic
}

// Generate compiles the input into signed records and writes every local
// artifact: normalized document, NDJSON events, cache index and LocalIndex.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var res *GenerateResult
	err := s.locked(func() error {
		var err error
		res, err = s.generate(ctx, req)
		return err
	})
	s.writeMetrics()
	return res, err
}

func (s *Service) generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var res *GenerateResult
	err := s.stage(StageGenerate, func() error {
		var err error
		res, err = s.compile(ctx, req)
		return err
	})
	return res, err
}

func (s *Service) compile(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if err := s.cfg.RequireKey(); err != nil {
		return nil, err
	}
	signer, err := keys.Parse(s.cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	mdPath := req.Metadata
	if mdPath == "" {
		mdPath = filepath.Join(filepath.Dir(req.Input), metadata.FileName)
	}
	md, err := metadata.Load(mdPath)
	if err != nil {
		return nil, err
	}
	mdRaw, err := os.ReadFile(filepath.Clean(mdPath))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to read metadata file").
			WithContext("path", mdPath).Build()
	}
	mapping, err := metadata.ResolveMappings(md)
	if err != nil {
		return nil, err
	}

	srcType := req.SourceType
	if srcType == config.SourceAuto {
		srcType = s.cfg.Source.Type
	}
	text, err := source.Load(req.Input, source.Options{
		Type:      srcType,
		Language:  md.Language,
		ASCIIOnly: req.ASCIIOnly || s.cfg.Source.ASCIIOnly,
	})
	if err != nil {
		return nil, err
	}

	lines, err := structure.Prepare(text, req.Structure)
	if err != nil {
		return nil, err
	}
	normalized := strings.Join(lines, "\n") + "\n"
	root, diags, err := structure.Build(lines, md.Title, req.Structure)
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		s.logger.Warn("Structure repaired", "line", d.Line, "detail", d.Message)
	}
	if err := tags.Derive(root, md, mapping); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	store, err := s.openStore()
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	previous, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	lastFingerprint, err := store.Fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	fingerprint := localindex.Fingerprint(string(mdRaw), normalized)

	f, err := forest.Compile(root, forest.Options{
		PubKey:    signer.PubKey(),
		CreatedAt: s.now().Unix(),
		RelayHint: s.cfg.RelayHint(),
		Previous:  previous.Lookup,
	})
	if err != nil {
		return nil, err
	}
	if err := f.Sign(signer); err != nil {
		return nil, err
	}
	idx, err := f.Index()
	if err != nil {
		return nil, err
	}

	res := &GenerateResult{
		Records:     f.Len(),
		Reused:      f.Reused(),
		Root:        f.Root().Key(),
		NPub:        signer.NPub(),
		Fingerprint: fingerprint,
		Unchanged:   fingerprint == lastFingerprint,
		Diagnostics: diags,
	}
	for _, r := range f.Records() {
		if r.Kind == record.KindIndex {
			res.Index++
		} else {
			res.Content++
		}
	}

	err = s.journal(ctx, store, StageGenerate, "", func(*localindex.Run) (map[string]int, error) {
		counters := map[string]int{
			"records":     res.Records,
			"index":       res.Index,
			"content":     res.Content,
			"reused":      res.Reused,
			"diagnostics": len(diags),
		}
		return counters, s.writeArtifacts(ctx, store, normalized, f, idx, fingerprint)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Publication compiled",
		logfields.Count(res.Records),
		logfields.DTag(res.Root.DTag),
		"index", res.Index,
		"content", res.Content,
		"reused", res.Reused,
		"unchanged", res.Unchanged)
	return res, nil
}

func (s *Service) writeArtifacts(ctx context.Context, store *localindex.Store, normalized string, f *forest.Forest, idx *localindex.Index, fingerprint string) error {
	l := s.layout
	if err := layout.WriteFile(l.NormalizedDocument(), []byte(normalized)); err != nil {
		return err
	}
	if err := layout.WriteEvents(l.EventsFile(), f.Records()); err != nil {
		return err
	}
	if err := layout.WriteCacheIndex(l.CacheIndex(), f.Keys()); err != nil {
		return err
	}
	if err := store.Save(ctx, idx, fingerprint); err != nil {
		return err
	}
	s.logger.Debug("Artifacts written", logfields.Path(l.Base), logfields.Count(idx.Len()))
	return nil
}
