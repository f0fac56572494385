// Package studyfile loads study definitions from YAML and seeds them into a
// store.
package studyfile

import (
	"context"
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/blindpair/internal/adapters/repository"
	"github.com/okian/blindpair/internal/domain/model"
)

// ErrInvalidDefinition reports a structurally broken study file.
var ErrInvalidDefinition = errors.New("invalid study definition")

// Definition is the on-disk shape of a study.
type Definition struct {
	Study      Study      `koanf:"study"`
	Categories []Category `koanf:"categories"`
}

// Study mirrors model.Study with file tags.
type Study struct {
	ID                   string           `koanf:"id"`
	Name                 string           `koanf:"name"`
	Mode                 string           `koanf:"mode"`
	KFactor              float64          `koanf:"k_factor"`
	AdaptiveK            bool             `koanf:"adaptive_k"`
	Thresholds           model.Thresholds `koanf:"thresholds"`
	ExpectedReviewers    int              `koanf:"expected_reviewers"`
	AllowContinuedVoting bool             `koanf:"allow_continued_voting"`
}

// Category lists the items ranked together.
type Category struct {
	ID           string `koanf:"id"`
	Name         string `koanf:"name"`
	DisplayOrder int    `koanf:"display_order"`
	Items        []Item `koanf:"items"`
}

// Item is one submission. EloBoost raises the seed rating.
type Item struct {
	ID         string  `koanf:"id"`
	Title      string  `koanf:"title"`
	ArtistRank *int    `koanf:"artist_rank"`
	EloBoost   float64 `koanf:"artist_elo_boost"`
}

// Load reads and validates a YAML study definition.
func Load(path string) (Definition, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Definition{}, fmt.Errorf("load %s: %w", path, err)
	}
	var def Definition
	if err := k.UnmarshalWithConf("", &def, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Definition{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// Validate checks ids are present and unique. A category listed without a
// display order keeps its file position.
func (d *Definition) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, fmt.Sprintf(format, args...))
	}
	if d.Study.ID == "" {
		return invalid("study id is required")
	}
	if d.Study.Mode != "" && !model.Mode(d.Study.Mode).Valid() {
		return invalid("unknown mode %q", d.Study.Mode)
	}
	if len(d.Categories) == 0 {
		return invalid("study %s has no categories", d.Study.ID)
	}

	cats := make(map[string]struct{}, len(d.Categories))
	items := make(map[string]struct{})
	for i := range d.Categories {
		c := &d.Categories[i]
		if c.ID == "" {
			return invalid("category %d has no id", i)
		}
		if _, dup := cats[c.ID]; dup {
			return invalid("duplicate category %s", c.ID)
		}
		cats[c.ID] = struct{}{}
		if c.DisplayOrder == 0 {
			c.DisplayOrder = i + 1
		}
		if c.Name == "" {
			c.Name = c.ID
		}
		for j, it := range c.Items {
			if it.ID == "" {
				return invalid("category %s item %d has no id", c.ID, j)
			}
			if _, dup := items[it.ID]; dup {
				return invalid("duplicate item %s", it.ID)
			}
			items[it.ID] = struct{}{}
		}
	}
	return nil
}

// Model converts the file study into the domain type.
func (d Definition) Model() model.Study {
	s := d.Study
	name := s.Name
	if name == "" {
		name = s.ID
	}
	return model.Study{
		ID:                   s.ID,
		Name:                 name,
		Mode:                 model.Mode(s.Mode),
		KFactor:              s.KFactor,
		AdaptiveK:            s.AdaptiveK,
		Thresholds:           s.Thresholds,
		ExpectedReviewers:    s.ExpectedReviewers,
		AllowContinuedVoting: s.AllowContinuedVoting,
	}
}

// Summary counts what a seed created.
type Summary struct {
	StudyID    string
	Categories int
	Items      int
}

// Apply writes the definition into store. defaults fills unset study fields
// and may be nil.
func Apply(ctx context.Context, store repository.Store, d Definition, defaults func(model.Study) model.Study) (Summary, error) {
	study := d.Model()
	if defaults != nil {
		study = defaults(study)
	}
	if study.Mode == "" {
		study.Mode = model.ModePair
	}
	if err := store.CreateStudy(ctx, study); err != nil {
		return Summary{}, fmt.Errorf("create study: %w", err)
	}

	sum := Summary{StudyID: study.ID}
	for _, c := range d.Categories {
		if err := store.CreateCategory(ctx, model.Category{
			ID:           c.ID,
			StudyID:      study.ID,
			Name:         c.Name,
			DisplayOrder: c.DisplayOrder,
		}); err != nil {
			return sum, fmt.Errorf("create category %s: %w", c.ID, err)
		}
		sum.Categories++

		items := make([]model.Item, len(c.Items))
		for i, it := range c.Items {
			items[i] = model.Item{
				ID:             it.ID,
				CategoryID:     c.ID,
				Title:          it.Title,
				ArtistRank:     it.ArtistRank,
				ArtistEloBoost: it.EloBoost,
			}
		}
		if len(items) > 0 {
			if err := store.AddItems(ctx, items...); err != nil {
				return sum, fmt.Errorf("add items to %s: %w", c.ID, err)
			}
		}
		sum.Items += len(items)
	}
	return sum, nil
}
