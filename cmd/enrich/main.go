// Command enrich runs the intelligence enrichment engine: single-domain
// jobs, batches, the HTTP surface, and adapter health checks.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leadscope/enrich/internal/adapter"
	"github.com/leadscope/enrich/internal/batch"
	"github.com/leadscope/enrich/internal/config"
	"github.com/leadscope/enrich/internal/enrich"
	"github.com/leadscope/enrich/internal/enrich/modules"
	"github.com/leadscope/enrich/internal/metrics"
	"github.com/leadscope/enrich/internal/progress"
	"github.com/leadscope/enrich/internal/scheduler"
	"github.com/leadscope/enrich/internal/sources"
)

var (
	flagConfig   string
	flagLogLevel string
)

// engine bundles the wired components behind the commands.
type engine struct {
	cfg       *config.Config
	log       zerolog.Logger
	clients   *sources.Clients
	scheduler *scheduler.Scheduler
	batch     *batch.Orchestrator
	progress  *progress.Manager
	inst      *metrics.Instruments
}

// buildEngine wires the full stack from configuration.
func buildEngine() (*engine, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", cfg.LogLevel, err)
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	var cache adapter.Store = adapter.NewMemoryCache()
	if cfg.RedisAddr != "" {
		cache = adapter.NewRedisCache(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), "enrich")
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis cache")
	}

	inst := metrics.Default
	clients := sources.NewClients(cfg.Endpoints(), cache, inst)

	registry := enrich.NewRegistry()
	modules.RegisterAll(registry, modules.Deps{Clients: clients})

	progressMgr := progress.NewManager(progress.DefaultRetention, log)
	sched := scheduler.New(registry, progressMgr, inst, log)

	return &engine{
		cfg:       cfg,
		log:       log,
		clients:   clients,
		scheduler: sched,
		batch:     batch.New(sched, cfg.Batch.MaxConcurrentDomains, log),
		progress:  progressMgr,
		inst:      inst,
	}, nil
}

// jobSpec builds a JobSpec from config defaults plus command flags.
func (e *engine) jobSpec(domain string, moduleIDs []string, bypassCache bool) *scheduler.JobSpec {
	return &scheduler.JobSpec{
		Domain:               domain,
		Modules:              moduleIDs,
		ModuleTimeoutSeconds: e.cfg.Scheduler.ModuleTimeoutSeconds,
		JobTimeoutSeconds:    e.cfg.Scheduler.JobTimeoutSeconds,
		MaxRetries:           &e.cfg.Scheduler.MaxRetries,
		CriticalModules:      e.cfg.Scheduler.CriticalModules,
		BypassCache:          bypassCache,
	}
}

func main() {
	root := &cobra.Command{
		Use:          "enrich",
		Short:        "Parallel intelligence enrichment engine",
		SilenceUsage: true,
	}
	// Accept snake_case flag spellings alongside the kebab-case canon.
	root.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to YAML config (optional)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "override configured log level")

	root.AddCommand(newRunCmd(), newBatchCmd(), newServeCmd(), newHealthCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
