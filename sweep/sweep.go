// Package sweep runs independent replicates of a bandit experiment in parallel, one seeded
// generator per replicate, and averages their GGI series.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/sw965/mocb"
	"github.com/sw965/mocb/bandit"
	"github.com/sw965/mocb/env"
	"github.com/sw965/mocb/mathx/randx"
	"github.com/sw965/mocb/report"
	"golang.org/x/sync/errgroup"
)

var ErrNoSeeds = errors.New("sweep: no seeds given")

// Factory builds the environment of one replicate. rng is that replicate's own generator.
type Factory func(rng *rand.Rand, cfg mocb.Config) (env.Environment, error)

// Gaussian is the default factory: a SyntheticGaussian with cfg's M and D.
func Gaussian(rng *rand.Rand, cfg mocb.Config) (env.Environment, error) {
	return env.NewSyntheticGaussian(cfg.M, cfg.D, rng)
}

// Options returns the loop options of replicate i. It is called once per replicate, so any
// reporter it returns belongs to that replicate alone.
type Options func(i int, seed uint64) []bandit.Option

// Shared hands the same options to every replicate. Reporters and loggers in opts must be
// safe for concurrent use; a run id given here would be overridden per replicate.
func Shared(opts ...bandit.Option) Options {
	return func(int, uint64) []bandit.Option {
		return opts
	}
}

// Run plays one full loop per seed with at most workers goroutines in flight. results[i]
// belongs to seeds[i] and every replicate gets its own run id. The first failing replicate
// cancels those not yet finished.
func Run(ctx context.Context, cfg mocb.Config, seeds []uint64, factory Factory, workers int, opts Options) ([]bandit.Result, error) {
	if len(seeds) == 0 {
		return nil, ErrNoSeeds
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = Gaussian
	}
	if workers <= 0 {
		workers = 1
	}

	results := make([]bandit.Result, len(seeds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, seed := range seeds {
		var loopOpts []bandit.Option
		if opts != nil {
			loopOpts = append(loopOpts, opts(i, seed)...)
		}
		loopOpts = append(loopOpts, bandit.WithRunID(uuid.New()))
		g.Go(func() error {
			res, err := replicate(ctx, cfg, seed, factory, loopOpts)
			if err != nil {
				return fmt.Errorf("seed=%d: %w", seed, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func replicate(ctx context.Context, cfg mocb.Config, seed uint64, factory Factory, opts []bandit.Option) (bandit.Result, error) {
	cfg.Seed = seed
	e, err := factory(randx.NewMt19937(seed), cfg)
	if err != nil {
		return bandit.Result{}, err
	}
	loop, err := bandit.New(cfg, e, opts...)
	if err != nil {
		return bandit.Result{}, err
	}
	for loop.State() != bandit.Terminal {
		if err := ctx.Err(); err != nil {
			return bandit.Result{}, err
		}
		if err := loop.Step(); err != nil {
			return bandit.Result{}, err
		}
	}
	return loop.Run()
}

// Seeds returns n consecutive seeds starting at base.
func Seeds(base uint64, n int) []uint64 {
	seeds := make([]uint64, n)
	for i := range seeds {
		seeds[i] = base + uint64(i)
	}
	return seeds
}

// Mean averages the replicate series round by round.
func Mean(results []bandit.Result) report.Series {
	series := make([]report.Series, len(results))
	for i, res := range results {
		series[i] = res.Series
	}
	return report.MeanSeries(series...)
}
