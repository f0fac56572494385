package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/internal/domain/model"
	"github.com/okian/blindpair/internal/studyfile"
)

const simulatedResponseMs = 1500

type simulateOptions struct {
	studyID     string
	items       int
	categories  int
	reviewers   int
	mode        string
	seed        int64
	noise       float64
	concurrency int
	quiet       bool
}

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	opts := simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run synthetic reviewers against a study with known item strengths",
		Long: "Seeds a study whose items carry hidden strengths, then lets simulated reviewers\n" +
			"vote until their sessions complete. Without --db the run uses an in-memory store.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.items < 2 || opts.categories < 1 || opts.reviewers < 1 {
				return errors.New("need at least 2 items, 1 category and 1 reviewer")
			}
			if !model.Mode(opts.mode).Valid() {
				return fmt.Errorf("unknown mode %q", opts.mode)
			}
			if opts.concurrency < 1 {
				opts.concurrency = 1
			}
			return ctx.withService(cmd.Context(), true, func(svc *service.Service) error {
				return runSimulation(cmd, svc, ctx, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.studyID, "study", "simulation", "Study id to create")
	cmd.Flags().IntVar(&opts.items, "items", 8, "Items per category")
	cmd.Flags().IntVar(&opts.categories, "categories", 1, "Number of categories")
	cmd.Flags().IntVar(&opts.reviewers, "reviewers", 5, "Number of simulated reviewers")
	cmd.Flags().StringVar(&opts.mode, "mode", string(model.ModePair), "Comparison mode (pair or quad)")
	cmd.Flags().Int64Var(&opts.seed, "seed", 1, "Random seed")
	cmd.Flags().Float64Var(&opts.noise, "noise", 0.5, "Standard deviation of per-judgement noise")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 4, "Reviewers voting at the same time")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "Hide the progress bar")

	return cmd
}

func runSimulation(cmd *cobra.Command, svc *service.Service, cctx *commandContext, opts simulateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	rng := rand.New(rand.NewSource(opts.seed))

	def, strengths := simulatedStudy(opts, rng)
	if err := def.Validate(); err != nil {
		return err
	}
	if _, err := studyfile.Apply(ctx, svc.Store(), def, cctx.config.ApplyStudyDefaults); err != nil {
		return err
	}

	var barOut io.Writer = cmd.ErrOrStderr()
	if opts.quiet {
		barOut = io.Discard
	}
	bar := progressbar.NewOptions(opts.reviewers,
		progressbar.OptionSetWriter(barOut),
		progressbar.OptionSetDescription("reviewers"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	started := time.Now()
	votes := make([]int, opts.reviewers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i := 0; i < opts.reviewers; i++ {
		g.Go(func() error {
			r := &reviewer{
				id:        fmt.Sprintf("reviewer-%03d", i+1),
				rng:       rand.New(rand.NewSource(opts.seed + int64(i) + 1)),
				strengths: strengths,
				noise:     opts.noise,
			}
			n, err := r.run(gctx, svc, opts.studyID)
			votes[i] = n
			_ = bar.Add(1)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	_ = bar.Finish()

	total := 0
	for _, n := range votes {
		total += n
	}
	fmt.Fprintf(out, "%s votes from %d reviewers in %s\n\n",
		humanize.Comma(int64(total)), opts.reviewers, time.Since(started).Round(time.Millisecond))

	for _, c := range def.Categories {
		rankings, err := svc.Rankings(ctx, c.ID)
		if err != nil {
			return err
		}
		fmt.Fprint(out, renderRankings(rankings, trueRanks(c, strengths)))
		if _, err := svc.AnalyzeCategory(ctx, c.ID); err != nil {
			return err
		}
		report, err := svc.Report(ctx, c.ID)
		if err != nil {
			return err
		}
		printReport(out, report)
		fmt.Fprintln(out)
	}
	return nil
}

func simulatedStudy(opts simulateOptions, rng *rand.Rand) (studyfile.Definition, map[string]float64) {
	def := studyfile.Definition{
		Study: studyfile.Study{
			ID:                opts.studyID,
			Name:              "Simulated study",
			Mode:              opts.mode,
			ExpectedReviewers: opts.reviewers,
		},
	}
	strengths := make(map[string]float64, opts.items*opts.categories)
	for c := 1; c <= opts.categories; c++ {
		cat := studyfile.Category{
			ID:           fmt.Sprintf("%s-cat-%d", opts.studyID, c),
			Name:         fmt.Sprintf("Category %d", c),
			DisplayOrder: c,
		}
		for i := 1; i <= opts.items; i++ {
			id := fmt.Sprintf("%s-item-%02d", cat.ID, i)
			cat.Items = append(cat.Items, studyfile.Item{ID: id, Title: fmt.Sprintf("Item %d", i)})
			strengths[id] = rng.NormFloat64()
		}
		def.Categories = append(def.Categories, cat)
	}
	return def, strengths
}

// trueRanks ranks a category's items by hidden strength, strongest first.
func trueRanks(c studyfile.Category, strengths map[string]float64) map[string]int {
	ids := make([]string, len(c.Items))
	for i, it := range c.Items {
		ids[i] = it.ID
	}
	sort.Slice(ids, func(i, j int) bool { return strengths[ids[i]] > strengths[ids[j]] })
	ranks := make(map[string]int, len(ids))
	for i, id := range ids {
		ranks[id] = i + 1
	}
	return ranks
}

type reviewer struct {
	id        string
	rng       *rand.Rand
	strengths map[string]float64
	noise     float64
}

// run votes until the session has nothing left and returns the vote count.
func (r *reviewer) run(ctx context.Context, svc *service.Service, studyID string) (int, error) {
	sess, err := svc.CreateSession(ctx, studyID, r.id)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		m, err := svc.NextMatch(ctx, sess.ID)
		if err != nil {
			return n, err
		}
		if m == nil {
			return n, nil
		}
		if _, err := svc.SubmitVote(ctx, r.vote(sess.ID, m)); err != nil {
			return n, fmt.Errorf("%s: %w", r.id, err)
		}
		n++
	}
}

func (r *reviewer) vote(sessionID string, m *service.Match) service.Vote {
	rt := simulatedResponseMs
	v := service.Vote{
		SessionID:      sessionID,
		CategoryID:     m.CategoryID,
		ResponseTimeMs: &rt,
	}
	if m.Pair != nil {
		left, right := m.Pair.LeftItemID, m.Pair.RightItemID
		v.LeftItemID, v.RightItemID = left, right
		v.WinnerID = r.pick([]string{left, right})
		v.LoserID = left
		if v.WinnerID == left {
			v.LoserID = right
		}
		return v
	}
	ids := m.Quad.Positions
	if len(ids) == 0 {
		ids = m.Quad.ItemIDs
	}
	v.ItemIDs = append([]string(nil), ids...)
	v.WinnerID = r.pick(ids)
	return v
}

// pick returns the item with the highest noisy perceived strength.
func (r *reviewer) pick(ids []string) string {
	best, bestScore := "", 0.0
	for _, id := range ids {
		score := r.strengths[id] + r.rng.NormFloat64()*r.noise
		if best == "" || score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}
