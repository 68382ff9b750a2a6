package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sw965/mocb"
	"github.com/sw965/mocb/optimizer"
	"github.com/sw965/mocb/report"
)

const envPrefix = "MOCB_"

// options are the flags shared by run and sweep.
type options struct {
	cfg     mocb.Config
	scheme  string
	every   int
	series  string
	metrics string
	dev     bool
}

// loadDefaults starts from DefaultConfig and applies MOCB_* variables from the process
// environment or a .env file in the working directory.
func loadDefaults() (options, error) {
	_ = godotenv.Load()

	o := options{cfg: mocb.DefaultConfig(), every: report.DefaultEvery}
	o.scheme = string(o.cfg.Scheme)

	ints := []struct {
		key string
		dst *int
	}{
		{"K", &o.cfg.K},
		{"D", &o.cfg.D},
		{"M", &o.cfg.M},
		{"T", &o.cfg.T},
		{"I", &o.cfg.Iterations},
		{"EVERY", &o.every},
	}
	for _, v := range ints {
		s, ok := os.LookupEnv(envPrefix + v.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return o, fmt.Errorf("%w: %s%s=%q: %v", mocb.ErrConfig, envPrefix, v.key, s, err)
		}
		*v.dst = n
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"LAM", &o.cfg.Lambda},
		{"ETA", &o.cfg.Eta},
	}
	for _, v := range floats {
		s, ok := os.LookupEnv(envPrefix + v.key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return o, fmt.Errorf("%w: %s%s=%q: %v", mocb.ErrConfig, envPrefix, v.key, s, err)
		}
		*v.dst = f
	}

	if s, ok := os.LookupEnv(envPrefix + "SEED"); ok {
		seed, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return o, fmt.Errorf("%w: %sSEED=%q: %v", mocb.ErrConfig, envPrefix, s, err)
		}
		o.cfg.Seed = seed
	}
	if s, ok := os.LookupEnv(envPrefix + "SCHEME"); ok {
		o.scheme = s
	}
	o.series = os.Getenv(envPrefix + "SERIES")
	o.metrics = os.Getenv(envPrefix + "METRICS")
	o.dev, _ = strconv.ParseBool(os.Getenv(envPrefix + "DEV"))
	return o, nil
}

func (o *options) bind(fs *flag.FlagSet) {
	fs.IntVar(&o.cfg.K, "k", o.cfg.K, "number of arms")
	fs.IntVar(&o.cfg.D, "d", o.cfg.D, "number of objectives")
	fs.IntVar(&o.cfg.M, "m", o.cfg.M, "context dimension")
	fs.IntVar(&o.cfg.T, "t", o.cfg.T, "number of rounds")
	fs.Float64Var(&o.cfg.Lambda, "lam", o.cfg.Lambda, "ridge regularisation")
	fs.Float64Var(&o.cfg.Eta, "eta", o.cfg.Eta, "ascent step size")
	fs.IntVar(&o.cfg.Iterations, "i", o.cfg.Iterations, "ascent iterations per round")
	fs.StringVar(&o.scheme, "scheme", o.scheme, "projected-gradient | multiplicative-weights")
	fs.Uint64Var(&o.cfg.Seed, "seed", o.cfg.Seed, "MT19937 seed")
	fs.IntVar(&o.every, "every", o.every, "log every n rounds")
	fs.StringVar(&o.series, "series", o.series, "write the GGI series as CSV to this file")
	fs.StringVar(&o.metrics, "metrics", o.metrics, "write prometheus metrics in text format to this file")
	fs.BoolVar(&o.dev, "dev", o.dev, "development (console) logging")
}

// config finalises the flag values into a validated Config.
func (o *options) config() (mocb.Config, error) {
	o.cfg.Scheme = optimizer.Scheme(o.scheme)
	if err := o.cfg.Validate(); err != nil {
		return mocb.Config{}, err
	}
	return o.cfg, nil
}
