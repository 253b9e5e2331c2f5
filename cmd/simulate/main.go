package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/okian/tabulator/internal/simulate"
	"github.com/okian/tabulator/pkg/logger"
)

// Default configuration constants.
const (
	defaultJudges     = 5
	defaultCandidates = 8
	defaultDuplicates = 0.1
	defaultWorkers    = 2 // multiplier for runtime.NumCPU()
	defaultTimeout    = 10 * time.Second
	defaultDrain      = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		judges     = flag.Int("judges", defaultJudges, "Number of judges")
		candidates = flag.Int("candidates", defaultCandidates, "Candidates to register per gender (0 uses the existing roster)")
		genders    = flag.String("genders", "male,female", "Comma separated gender partitions")
		duplicates = flag.Float64("duplicates", defaultDuplicates, "Share of marks submitted twice")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		drain      = flag.Duration("drain", defaultDrain, "How long to wait for marks to persist")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Value generator seed")
		logFormat  = flag.String("log-format", logger.FormatText, "Log format: text or json")
		verbose    = flag.Bool("verbose", false, "Log every failed check as it happens")
	)
	flag.Parse()

	if err := logger.Init(logger.WithFormat(*logFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	stats, err := simulate.Run(ctx, &simulate.Config{
		BaseURL:             strings.TrimRight(*baseURL, "/"),
		Judges:              *judges,
		CandidatesPerGender: *candidates,
		Genders:             strings.Split(*genders, ","),
		DuplicateRate:       *duplicates,
		Workers:             *workers,
		Timeout:             *timeout,
		DrainTimeout:        *drain,
		Seed:                *seed,
		Verbose:             *verbose,
	})

	log.Info(ctx, "final statistics",
		logger.Any("seed", *seed),
		logger.Int("registered", stats.Registered),
		logger.Int("planned", stats.Planned),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("not_eligible", stats.NotEligible),
		logger.Int("backpressured", stats.Backpressured),
		logger.Int("failed", stats.Failed),
		logger.Int("reports_checked", stats.ReportsChecked),
		logger.Duration("duration", stats.Duration),
	)
	if err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
}
