package app

import (
	"context"
	"fmt"
	"time"

	"meshnode/internal/gc"
	"meshnode/pkg/aggregate"
	"meshnode/pkg/banner"
	"meshnode/pkg/chains"
	"meshnode/pkg/config"
	"meshnode/pkg/confirm"
	"meshnode/pkg/dedup"
	"meshnode/pkg/ingest"
	"meshnode/pkg/logger"
	"meshnode/pkg/models"
	"meshnode/pkg/resolver"
	"meshnode/pkg/store"
	"meshnode/pkg/validator"
)

// App encapsulates the node components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	st       *store.Store
	registry *chains.Registry
	res      *resolver.Resolver
	queue    *ingest.Queue
	proc     *ingest.Processor
	tracker  *confirm.Tracker

	confirmEvents chan confirm.Event
	srv           serverHandle
}

// New initializes resources that do not require a running context: the
// store, the verifier registry and the ingest pipeline. Call Run to start
// the workers and the HTTP server.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	st, err := store.Open(eff.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}

	registry := buildRegistry(eff)

	gatewayURL := eff.Config.Resolver.GatewayURL
	if gatewayURL == "" {
		gatewayURL = "http://127.0.0.1:8080"
	}
	gw := resolver.NewGatewayClient(gatewayURL, config.ParseDuration(eff.Config.Resolver.Timeout, 10*time.Second))
	gw.MaxSize = config.ParseSize(eff.Config.Resolver.MaxBlobSize, 16<<20)
	res := resolver.New(gw, resolver.Options{
		MaxAttempts: eff.Config.Resolver.MaxAttempts,
		BaseBackoff: config.ParseDuration(eff.Config.Resolver.BaseBackoff, 250*time.Millisecond),
	})

	val := validator.New(registry, res)
	index := dedup.NewIndex(st)
	engine := aggregate.New(st)
	queue := ingest.NewQueue(eff.Config.Ingest.QueueCapacity)
	retry := ingest.RetryPolicy{
		MaxAttempts: eff.Config.Ingest.Retry.MaxAttempts,
		BaseBackoff: config.ParseDuration(eff.Config.Ingest.Retry.BaseBackoff, time.Second),
		MaxBackoff:  config.ParseDuration(eff.Config.Ingest.Retry.MaxBackoff, 30*time.Second),
	}
	proc := ingest.NewProcessor(queue, val, index, engine, st, res, nil, retry, eff.Config.Ingest.Workers)

	window := config.ParseDuration(eff.Config.Confirm.Window, 10*time.Minute)
	tracker := confirm.NewTracker(st, window)

	return &App{
		eff:           eff,
		version:       version,
		commit:        commit,
		buildDate:     buildDate,
		st:            st,
		registry:      registry,
		res:           res,
		queue:         queue,
		proc:          proc,
		tracker:       tracker,
		confirmEvents: make(chan confirm.Event, 1024),
	}, nil
}

// buildRegistry installs the verifiers enabled in config. Chain names
// default to the conventional short identifiers.
func buildRegistry(eff config.EffectiveConfigResult) *chains.Registry {
	registry := chains.NewRegistry()
	if eff.Config.Chains.Ethereum.Enabled {
		name := eff.Config.Chains.Ethereum.Name
		if name == "" {
			name = "ETH"
		}
		registry.Register(name, chains.EthereumVerifier{})
	}
	if eff.Config.Chains.Solana.Enabled {
		name := eff.Config.Chains.Solana.Name
		if name == "" {
			name = "SOL"
		}
		registry.Register(name, chains.Ed25519Verifier{})
	}
	return registry
}

// Registry exposes the verifier registry so deployments can install
// additional chain capabilities before Run.
func (a *App) Registry() *chains.Registry { return a.registry }

// SubmitGossip hands a raw envelope from the peer network to the pipeline.
func (a *App) SubmitGossip(ctx context.Context, raw []byte) error {
	return a.proc.Submit(ctx, raw, models.SourceGossip)
}

// SubmitChainReplay hands a raw envelope recovered from chain anchoring.
func (a *App) SubmitChainReplay(ctx context.Context, raw []byte) error {
	return a.proc.Submit(ctx, raw, models.SourceChain)
}

// Confirmations returns the channel chain indexers feed inclusion events
// into.
func (a *App) Confirmations() chan<- confirm.Event { return a.confirmEvents }

// Run starts the worker pool, the confirmation tracker, the sweep job and
// the HTTP server, then blocks until ctx is cancelled or a fatal server
// error occurs.
func (a *App) Run(ctx context.Context) error {
	go a.proc.Run(ctx)
	go a.tracker.Run(ctx, a.confirmEvents)

	cancelGC, err := gc.Start(ctx, a.tracker, a.eff.Config.Confirm.SweepCron)
	if err != nil {
		return err
	}
	defer cancelGC()

	a.printBanner()
	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		a.shutdown()
		return err
	}
}

func (a *App) shutdown() {
	a.queue.CloseAndDrain()
	if err := a.st.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
}

func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" {
		verStr += " @ " + a.buildDate
	}
	banner.Print(a.eff, a.registry.Chains(), verStr)
	logger.Info("meshnode_starting",
		"version", verStr,
		"addr", a.eff.Addr,
		"db", a.eff.DBPath,
		"chains", a.registry.Chains(),
		"config_source", a.eff.Source,
	)
}
