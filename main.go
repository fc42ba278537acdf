package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fluxcd/pkg/runtime/logger"
	"github.com/go-logr/logr"
	flag "github.com/spf13/pflag"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"github.com/weaveworks/apptrust-promoter/api/v1alpha1"
	"github.com/weaveworks/apptrust-promoter/controllers"
	"github.com/weaveworks/apptrust-promoter/internal/apptrust"
	"github.com/weaveworks/apptrust-promoter/internal/config"
	"github.com/weaveworks/apptrust-promoter/internal/rollback"
	"github.com/weaveworks/apptrust-promoter/pkg/evidence"
	"github.com/weaveworks/apptrust-promoter/server"
	"github.com/weaveworks/apptrust-promoter/server/strategy"
	"github.com/weaveworks/apptrust-promoter/server/strategy/noop"
	"github.com/weaveworks/apptrust-promoter/server/strategy/promote"
	"github.com/weaveworks/apptrust-promoter/server/strategy/release"
)

const (
	controllerName = "apptrust-promoter"

	exitFailure = 1
	exitConfig  = 2

	// evidenceFallbackKey configures the evidence command of stages without one of their own.
	evidenceFallbackKey = "*"
)

func main() {
	var (
		configFile string
		flagCfg    config.Config
		logOptions logger.Options
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [advance|rollback|serve] [flags]\n", controllerName)
		flag.PrintDefaults()
	}
	flag.StringVar(&configFile, "config", "", "YAML file providing defaults for every setting.")
	flagCfg.BindFlags(flag.CommandLine)
	logOptions.BindFlags(flag.CommandLine)

	flag.Parse()

	log := logger.NewLogger(logOptions).WithName(controllerName)
	setupLog := log.WithName("setup")

	mode := config.ModeAdvance
	if flag.NArg() > 0 {
		mode = config.Mode(flag.Arg(0))
	}

	cfg, err := config.Load(configFile, os.LookupEnv)
	if err != nil {
		setupLog.Error(err, "unable to load configuration")
		os.Exit(exitConfig)
	}
	cfg.Override(&flagCfg, flag.CommandLine)

	if err := cfg.Validate(mode); err != nil {
		setupLog.Error(err, "invalid configuration", "mode", mode)
		os.Exit(exitConfig)
	}

	ctx := signals.SetupSignalHandler()

	switch mode {
	case config.ModeAdvance:
		os.Exit(runAdvance(ctx, log, cfg))
	case config.ModeRollback:
		os.Exit(runRollback(ctx, log, cfg))
	case config.ModeServe:
		os.Exit(runServe(ctx, log, cfg))
	default:
		setupLog.Error(fmt.Errorf("unknown mode %q", mode), "expected one of advance, rollback or serve")
		os.Exit(exitConfig)
	}
}

func runAdvance(ctx context.Context, log logr.Logger, cfg *config.Config) int {
	state := controllers.RunStateFromEnv(stateSink(cfg), os.LookupEnv)

	evidenceReg, err := evidenceRegistry(cfg)
	if err != nil {
		log.Error(err, "unable to set up evidence emitters")
		return exitConfig
	}

	adv, err := newAdvancer(log, cfg, state, evidenceReg)
	if err != nil {
		log.Error(err, "unable to set up progression")
		return exitConfig
	}

	res, err := adv.AdvanceOneStep(ctx)
	if err != nil {
		log.Error(err, "advancing application failed", "application", cfg.Application, "version", cfg.Version)
		return exitFailure
	}
	log.Info("done", "action", res.Action, "from", res.From, "to", res.To, "currentStage", state.Get(v1alpha1.CurrentStageKey))
	return 0
}

func runRollback(ctx context.Context, log logr.Logger, cfg *config.Config) int {
	application := rollback.NormalizeAppKey(cfg.Application, cfg.ProjectKey)
	if application != cfg.Application {
		log.Info("normalized application key", "from", cfg.Application, "to", application)
	}

	client, err := apptrust.New(cfg.BaseURL, application, cfg.Version, cfg.Token,
		apptrust.Logger(log.WithName("apptrust")),
		apptrust.Timeout(cfg.Timeout),
		apptrust.ProjectKey(cfg.ProjectKey),
	)
	if err != nil {
		log.Error(err, "unable to create AppTrust client")
		return exitConfig
	}

	rb, err := rollback.New(client,
		rollback.Logger(log.WithName("rollback")),
		rollback.DryRun(cfg.DryRun),
		rollback.Lifecycle(client.Codec(), cfg.Stages),
	)
	if err != nil {
		log.Error(err, "unable to set up rollback")
		return exitConfig
	}

	res, err := rb.Rollback(ctx, cfg.Version)
	if err != nil {
		log.Error(err, "rollback failed", "application", application, "version", cfg.Version)
		return exitFailure
	}

	state := controllers.NewRunState(stateSink(cfg))
	state.Set(v1alpha1.StageBeforeRollbackKey, string(res.StageBefore))
	state.Set(v1alpha1.StageAfterRollbackKey, string(res.StageAfter))
	if err := state.Persist(); err != nil {
		log.Error(err, "unable to persist run state")
		return exitFailure
	}

	log.Info("rolled back", "version", res.Version, "stageBefore", res.StageBefore, "stageAfter", res.StageAfter, "newLatest", res.NewLatest)
	return 0
}

func runServe(ctx context.Context, log logr.Logger, cfg *config.Config) int {
	evidenceReg, err := evidenceRegistry(cfg)
	if err != nil {
		log.Error(err, "unable to set up evidence emitters")
		return exitConfig
	}

	var hmacKey []byte
	if cfg.Server.HMACKeyFile != "" {
		key, err := os.ReadFile(cfg.Server.HMACKeyFile)
		if err != nil {
			log.Error(err, "unable to read HMAC key")
			return exitConfig
		}
		hmacKey = []byte(strings.TrimSpace(string(key)))
	}

	factory := func(application, version string) (server.Advancer, error) {
		versionCfg := *cfg
		versionCfg.Application = application
		versionCfg.Version = version
		if err := versionCfg.Validate(config.ModeAdvance); err != nil {
			return nil, err
		}
		return newAdvancer(log, &versionCfg, controllers.NewRunState(nil), evidenceReg)
	}

	promServer, err := server.NewPromotionServer(
		factory,
		server.Logger(log.WithName("promotion")),
		server.ListenAddr(cfg.Server.ListenAddr),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateLimitInterval),
		server.HMACKey(hmacKey),
	)
	if err != nil {
		log.Error(err, "failed setting up promotion server")
		return exitConfig
	}

	if err := promServer.Start(ctx); err != nil {
		log.Error(err, "problem running promotion server")
		return exitFailure
	}
	return 0
}

// newAdvancer wires the progression of the version named by cfg.
func newAdvancer(log logr.Logger, cfg *config.Config, state *controllers.RunState, evidenceReg *evidence.Registry) (server.Advancer, error) {
	log = log.WithValues("application", cfg.Application, "version", cfg.Version)

	client, err := apptrust.New(cfg.BaseURL, cfg.Application, cfg.Version, cfg.Token,
		apptrust.Logger(log.WithName("apptrust")),
		apptrust.Timeout(cfg.Timeout),
		apptrust.ProjectKey(cfg.ProjectKey),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create AppTrust client: %w", err)
	}

	stratReg, err := strategies(log, client, cfg.DryRun)
	if err != nil {
		return nil, err
	}

	ctrl, err := controllers.NewProgressionController(client, stratReg, state,
		controllers.Logger(log.WithName("progression")),
		controllers.Identity(cfg.Application, cfg.Version),
		controllers.ProjectKey(cfg.ProjectKey),
		controllers.Stages(cfg.Stages),
		controllers.FinalStage(cfg.FinalStage),
		controllers.AllowRelease(cfg.AllowRelease),
		controllers.Service(cfg.Service),
		controllers.RepositoryKeys(cfg.RepositoryKeys),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create progression controller: %w", err)
	}

	return &evidenceAdvancer{
		log:      log.WithName("evidence"),
		advancer: ctrl,
		registry: evidenceReg,
		codec:    client.Codec(),
	}, nil
}

func strategies(log logr.Logger, client *apptrust.Client, dryRun bool) (strategy.StrategyRegistry, error) {
	var stratReg strategy.StrategyRegistry

	if dryRun {
		dry, err := noop.NewNoop(client, log.WithValues("strategy", "noop"))
		if err != nil {
			return nil, fmt.Errorf("unable to create dry run strategy: %w", err)
		}
		stratReg.Register(dry)
		return stratReg, nil
	}

	promoteStrat, err := promote.New(client)
	if err != nil {
		return nil, fmt.Errorf("unable to create promote strategy: %w", err)
	}
	releaseStrat, err := release.New(client)
	if err != nil {
		return nil, fmt.Errorf("unable to create release strategy: %w", err)
	}
	stratReg.Register(promoteStrat)
	stratReg.Register(releaseStrat)
	return stratReg, nil
}

func stateSink(cfg *config.Config) controllers.StateSink {
	sinks := controllers.MultiSink{controllers.JSONSink{W: os.Stdout}}
	if cfg.StateFile != "" {
		sinks = append(sinks, controllers.EnvFileSink{Path: cfg.StateFile})
	}
	return sinks
}

func evidenceRegistry(cfg *config.Config) (*evidence.Registry, error) {
	reg := &evidence.Registry{}
	var errs []error
	for stage, command := range cfg.Evidence {
		emitter, err := evidence.NewCommandEmitter(command)
		if err != nil {
			errs = append(errs, fmt.Errorf("stage %s: %w", stage, err))
			continue
		}
		if stage == evidenceFallbackKey {
			reg.Fallback(emitter)
			continue
		}
		reg.Register(v1alpha1.Stage(strings.ToUpper(stage)), emitter)
	}
	if len(errs) > 0 {
		return nil, utilerrors.NewAggregate(errs)
	}
	return reg, nil
}
