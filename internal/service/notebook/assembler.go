// Package notebook assembles generated notebooks from a recipe.
package notebook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/alacard/internal/model"
	"github.com/ashita-ai/alacard/internal/service/adapt"
	"github.com/ashita-ai/alacard/internal/service/extract"
	"github.com/ashita-ai/alacard/internal/service/scaffold"
)

// MinCells is the number of cells present regardless of what the
// registry returned: title, setup, smoke test and next steps.
const MinCells = 4

// MetadataSource fetches registry data. Implementations absorb their own
// failures and return nil or "".
type MetadataSource interface {
	FetchMetadata(ctx context.Context, modelID string) *model.ModelMetadata
	FetchDocumentation(ctx context.Context, modelID, revision string) string
}

// Sources is everything gathered before cells are built.
type Sources struct {
	Metadata      *model.ModelMetadata
	Documentation string
	Scaffold      string
}

// Assembler turns recipes into notebooks.
type Assembler struct {
	source      MetadataSource
	adapter     *adapt.Adapter
	registryURL string
	now         func() time.Time
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithRegistryURL sets the base URL used for model links.
func WithRegistryURL(u string) Option {
	return func(a *Assembler) { a.registryURL = strings.TrimRight(u, "/") }
}

// NewAssembler creates an Assembler. source may be nil, in which case
// every notebook is built from the recipe alone.
func NewAssembler(source MetadataSource, adapter *adapt.Adapter, opts ...Option) *Assembler {
	a := &Assembler{
		source:      source,
		adapter:     adapter,
		registryURL: "https://huggingface.co",
		now:         time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Assemble fetches sources and builds the notebook. It never fails.
func (a *Assembler) Assemble(ctx context.Context, r model.Recipe) model.Notebook {
	return a.Build(r, a.Fetch(ctx, r))
}

// Fetch gathers metadata and documentation. The scaffold does not depend
// on either, so it renders while the network calls are in flight.
func (a *Assembler) Fetch(ctx context.Context, r model.Recipe) Sources {
	var src Sources
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		src.Scaffold = scaffold.Generate(r.UIComponent.Type, r.Model.ID, r.PromptPack.Prompts)
		return nil
	})
	if a.source != nil {
		g.Go(func() error {
			md := a.source.FetchMetadata(gctx, r.Model.ID)
			rev := ""
			if md != nil {
				rev = md.Revision
			}
			doc := a.source.FetchDocumentation(gctx, r.Model.ID, rev)
			src.Metadata, src.Documentation = md, doc
			return nil
		})
	}
	_ = g.Wait()
	return src
}

// Build assembles cells in their fixed order. The documentation sample
// cell is the only optional one.
func (a *Assembler) Build(r model.Recipe, src Sources) model.Notebook {
	md := effectiveMetadata(r.Model, src.Metadata)
	kind := md.TaskKind

	cells := []model.Cell{
		model.NewCell(model.CellMarkdown, titleCell(r, a.now())),
		model.NewCell(model.CellCode, setupCell(r.UIComponent.Type)),
		model.NewCell(model.CellCode, adapt.ForDifficulty(smokeTest(kind, r.Model.ID), r.Difficulty.Level)),
		model.NewCell(model.CellMarkdown, a.infoCell(md, src.Metadata != nil)),
	}
	if sample, ok := extract.FirstSample(src.Documentation, extract.Python); ok {
		cells = append(cells, model.NewCell(model.CellCode,
			"# Adapted from the model documentation\n"+a.adapter.Adapt(sample.Code, *r.Topic, *r.Difficulty)))
	}
	cells = append(cells,
		model.NewCell(model.CellCode, a.adapter.Adapt(customExample(kind, r), *r.Topic, *r.Difficulty)),
		model.NewCell(model.CellCode, scaffoldCell(r, src.Scaffold)),
		model.NewCell(model.CellMarkdown, nextStepsCell(r)),
	)
	for i := range cells {
		cells[i].ID = fmt.Sprintf("cell-%02d", i)
	}

	prov := &model.Provenance{
		Title:       "Alacard: " + r.Model.DisplayName(),
		Recipe:      r,
		GeneratedAt: a.now().UTC(),
	}
	if src.Metadata != nil {
		prov.SourceRevision = src.Metadata.Revision
	}
	return model.Notebook{
		Cells: cells,
		Metadata: model.NotebookMetadata{
			KernelSpec:   model.DefaultKernelSpec(),
			LanguageInfo: model.DefaultLanguageInfo(),
			Alacard:      prov,
		},
		NBFormat:      model.NotebookFormat,
		NBFormatMinor: model.NotebookFormatMinor,
	}
}

// effectiveMetadata prefers registry data and falls back to the card.
func effectiveMetadata(card *model.ModelCard, md *model.ModelMetadata) model.ModelMetadata {
	if md != nil {
		out := *md
		if out.TaskKind == "" || (out.TaskKind == model.TaskOther && card.TaskKind != "") {
			out.TaskKind = card.TaskKind
		}
		return out
	}
	kind := card.TaskKind
	if kind == "" {
		kind = model.TaskOther
	}
	return model.ModelMetadata{
		ID:            card.ID,
		DisplayName:   card.DisplayName(),
		TaskKind:      kind,
		DownloadCount: card.Downloads,
		LikeCount:     card.Likes,
		Tags:          card.Tags,
		License:       card.License,
	}
}

// Validate is the structural check run before a notebook is stored.
func Validate(nb model.Notebook) error {
	if len(nb.Cells) < MinCells {
		return fmt.Errorf("notebook: %d cells, need at least %d", len(nb.Cells), MinCells)
	}
	if nb.NBFormat != model.NotebookFormat || nb.NBFormatMinor != model.NotebookFormatMinor {
		return fmt.Errorf("notebook: unsupported format %d.%d", nb.NBFormat, nb.NBFormatMinor)
	}
	if nb.Metadata.KernelSpec == nil || nb.Metadata.KernelSpec.Name == "" {
		return fmt.Errorf("notebook: missing kernelspec")
	}
	if nb.Metadata.LanguageInfo == nil || nb.Metadata.LanguageInfo.Name == "" {
		return fmt.Errorf("notebook: missing language_info")
	}
	for i, c := range nb.Cells {
		if c.Type != model.CellCode && c.Type != model.CellMarkdown {
			return fmt.Errorf("notebook: cell %d has unknown type %q", i, c.Type)
		}
		if len(c.Source) == 0 {
			return fmt.Errorf("notebook: cell %d is empty", i)
		}
	}
	return nil
}
