// Command mocb runs GGI contextual bandit simulations on synthetic Gaussian environments.
//
//	$ mocb run -k 50 -d 5 -m 10 -t 10000 -scheme multiplicative-weights -series ggi.csv
//	$ mocb sweep -replicates 20 -workers 4 -seed 1 -series mean.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/gonuts/commander"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sw965/mocb/bandit"
	"github.com/sw965/mocb/mathx/randx"
	"github.com/sw965/mocb/report"
	"github.com/sw965/mocb/sweep"
	"go.uber.org/zap"
)

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// reporters wires the log and prometheus reporters onto a fresh registry.
func reporters(o *options, log *zap.Logger) (report.Reporter, *prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	m, err := report.NewMetrics(reg)
	if err != nil {
		return nil, nil, err
	}
	return report.Multi(report.NewLogger(log, o.every), m), reg, nil
}

func writeOutputs(o *options, s report.Series, reg *prometheus.Registry) error {
	if o.series != "" {
		f, err := os.Create(o.series)
		if err != nil {
			return err
		}
		if err := s.WriteCSV(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if o.metrics != "" {
		if err := prometheus.WriteToTextfile(o.metrics, reg); err != nil {
			return err
		}
	}
	return nil
}

func newRunCmd(o *options) *commander.Command {
	cmd := &commander.Command{
		Run: func(_ *commander.Command, _ []string) error {
			return runOnce(o)
		},
		UsageLine: "run [options]",
		Short:     "runs a single simulation",
		Long: `
runs a single simulation on a synthetic Gaussian environment seeded with -seed.

	$ mocb run -k 50 -d 5 -m 10 -t 10000 [-series out.csv] [-metrics out.prom]

Every flag can also be set with the MOCB_<FLAG> environment variable or a .env file.
`,
		Flag: *flag.NewFlagSet("run", flag.ExitOnError),
	}
	o.bind(&cmd.Flag)
	return cmd
}

func runOnce(o *options) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	log, err := newLogger(o.dev)
	if err != nil {
		return err
	}
	defer log.Sync()

	rep, reg, err := reporters(o, log)
	if err != nil {
		return err
	}
	e, err := sweep.Gaussian(randx.NewMt19937(cfg.Seed), cfg)
	if err != nil {
		return err
	}
	loop, err := bandit.New(cfg, e, bandit.WithLogger(log), bandit.WithReporter(rep))
	if err != nil {
		return err
	}
	log.Info("run started",
		zap.Int("k", cfg.K), zap.Int("d", cfg.D), zap.Int("m", cfg.M), zap.Int("t", cfg.T),
		zap.String("scheme", string(cfg.Scheme)), zap.Uint64("seed", cfg.Seed),
	)
	res, err := loop.Run()
	if err != nil {
		return err
	}
	return writeOutputs(o, res.Series, reg)
}

func newSweepCmd(ctx context.Context, o *options) *commander.Command {
	var replicates, workers int
	cmd := &commander.Command{
		UsageLine: "sweep [options]",
		Short:     "runs independent replicates and averages their GGI series",
		Long: `
runs -replicates simulations with seeds -seed, -seed+1, ... on -workers goroutines and
writes the round-wise mean GGI series.

	$ mocb sweep -replicates 20 -workers 4 -seed 1 -series mean.csv
`,
		Flag: *flag.NewFlagSet("sweep", flag.ExitOnError),
	}
	o.bind(&cmd.Flag)
	cmd.Flag.IntVar(&replicates, "replicates", 10, "number of replicates")
	cmd.Flag.IntVar(&workers, "workers", runtime.NumCPU(), "parallel replicates")
	cmd.Run = func(_ *commander.Command, _ []string) error {
		return runSweep(ctx, o, replicates, workers)
	}
	return cmd
}

func runSweep(ctx context.Context, o *options, replicates, workers int) error {
	cfg, err := o.config()
	if err != nil {
		return err
	}
	if replicates <= 0 {
		return fmt.Errorf("replicatesが不正(<=0): %d", replicates)
	}
	log, err := newLogger(o.dev)
	if err != nil {
		return err
	}
	defer log.Sync()

	rep, reg, err := reporters(o, log)
	if err != nil {
		return err
	}
	results, err := sweep.Run(ctx, cfg, sweep.Seeds(cfg.Seed, replicates), sweep.Gaussian, workers,
		sweep.Shared(bandit.WithLogger(log), bandit.WithReporter(rep)))
	if err != nil {
		return err
	}
	mean := sweep.Mean(results)
	log.Info("sweep finished", zap.Int("replicates", len(results)), zap.Float64("final_mean_ggi", mean.Last()))
	return writeOutputs(o, mean, reg)
}

func newRootCmd(ctx context.Context) (*commander.Command, error) {
	runOpts, err := loadDefaults()
	if err != nil {
		return nil, err
	}
	sweepOpts := runOpts
	return &commander.Command{
		UsageLine: os.Args[0],
		Short:     "GGI contextual bandit simulator",
		Subcommands: []*commander.Command{
			newRunCmd(&runOpts),
			newSweepCmd(ctx, &sweepOpts),
		},
	}, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	cmd, err := newRootCmd(ctx)
	if err == nil {
		err = cmd.Dispatch(ctx, os.Args[1:])
	}
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "**err**: %v\n", err)
		os.Exit(1)
	}
}
