// Package app assembles the retrieval pipeline from configuration: logging,
// progress sinks, artifact storage, the browser, and the orchestrator on top.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/registrar-data/entityproc/internal/api"
	"github.com/registrar-data/entityproc/internal/artifact"
	"github.com/registrar-data/entityproc/internal/browser"
	"github.com/registrar-data/entityproc/internal/challenge"
	"github.com/registrar-data/entityproc/internal/clock/system"
	"github.com/registrar-data/entityproc/internal/config"
	"github.com/registrar-data/entityproc/internal/emit"
	"github.com/registrar-data/entityproc/internal/extract"
	"github.com/registrar-data/entityproc/internal/id/uuid"
	"github.com/registrar-data/entityproc/internal/logging"
	"github.com/registrar-data/entityproc/internal/orchestrator"
	"github.com/registrar-data/entityproc/internal/probe"
	"github.com/registrar-data/entityproc/internal/progress"
	"github.com/registrar-data/entityproc/internal/progress/sinks"
	"github.com/registrar-data/entityproc/internal/registry"
	"github.com/registrar-data/entityproc/internal/search"
)

// App owns every long-lived service of one process invocation.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	hub      *progress.Hub
	browser  *browser.Browser
	orch     *orchestrator.Orchestrator
	emitter  *emit.Emitter
	idGen    *uuid.Generator
	debugSrv *api.Server
	gcsStore *artifact.GCS
}

// NewApp builds the application from the global Viper state. Fail-fast: a
// bad config, an unwritable artifact dir or an unreachable GCS bucket all
// surface here, before any attempt is paid for.
func NewApp(ctx context.Context) (*App, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(cfg.Logging.Development); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	logger := logging.L

	a := &App{
		cfg:    cfg,
		logger: logger,
		idGen:  uuid.New(),
	}

	detector := challenge.NewDetector(challenge.DetectorConfig{
		MinHTMLBytes: cfg.Challenge.MinHTMLBytes,
		Markers:      cfg.Challenge.Markers,
	})
	gate, err := challenge.NewGate(challenge.GateConfig{
		Timeout:      cfg.Challenge.Timeout,
		PollInterval: cfg.Challenge.PollInterval,
		ClickX:       cfg.Challenge.ClickX,
		ClickY:       cfg.Challenge.ClickY,
	}, detector, logger)
	if err != nil {
		return nil, fmt.Errorf("build challenge gate: %w", err)
	}

	var prober registry.Prober
	if cfg.Probe.Enabled {
		p, err := probe.New(probe.Config{
			URL:          cfg.Portal.SearchURL,
			UserAgent:    cfg.Portal.UserAgent,
			Timeout:      cfg.Probe.Timeout,
			FormSelector: cfg.Search.InputSelector,
		}, detector, logger)
		if err != nil {
			return nil, fmt.Errorf("build probe: %w", err)
		}
		prober = p
	}

	br, err := browser.New(browser.Config{
		RemoteURL:    cfg.Browser.RemoteURL,
		Headless:     cfg.Browser.Headless,
		NoSandbox:    cfg.Browser.NoSandbox,
		UserAgent:    cfg.Portal.UserAgent,
		WindowWidth:  cfg.Browser.WindowWidth,
		WindowHeight: cfg.Browser.WindowHeight,
		NavTimeout:   cfg.Browser.NavTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("build browser: %w", err)
	}
	a.browser = br

	artifacts, err := a.buildArtifactStore(ctx)
	if err != nil {
		return nil, err
	}

	navigator, err := search.New(search.Config{
		BaseURL:             cfg.Portal.BaseURL,
		InputSelector:       cfg.Search.InputSelector,
		ButtonSelector:      cfg.Search.ButtonSelector,
		ResultLinkSelector:  cfg.Search.ResultLinkSelector,
		NoResultsText:       cfg.Search.NoResultsText,
		DetailReadySelector: cfg.Search.DetailReadySelector,
		ResultTimeout:       cfg.Search.ResultTimeout,
		PollInterval:        cfg.Search.PollInterval,
	}, gate, logger)
	if err != nil {
		return nil, fmt.Errorf("build navigator: %w", err)
	}

	sinkList := []progress.Sink{sinks.NewLogSink(logger)}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	sinkList = append(sinkList, promSink)

	var memSink *sinks.MemorySink
	if cfg.Metrics.ListenAddr != "" {
		memSink = sinks.NewMemorySink(256)
		sinkList = append(sinkList, memSink)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger}, sinkList...)

	a.orch, err = orchestrator.New(orchestrator.Config{
		SearchURL:           cfg.Portal.SearchURL,
		SearchReadySelector: cfg.Challenge.ReadySelector,
		MaxAttempts:         cfg.Run.MaxAttempts,
		AttemptTimeout:      cfg.Run.AttemptTimeout,
		BackoffBase:         cfg.Run.BackoffBase,
		BackoffMax:          cfg.Run.BackoffMax,
		TraceSteps:          cfg.Artifacts.TraceSteps,
	}, orchestrator.Deps{
		Browser:   br,
		Prober:    prober,
		Gate:      gate,
		Navigator: navigator,
		Extractor: extract.New(extract.Config{OfficerGridSelector: cfg.Extract.OfficerGridSelector}),
		Artifacts: artifacts,
		Events:    a.hub,
		Clock:     system.New(),
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	a.emitter, err = emit.New(cfg.Run.OutputDir, logger)
	if err != nil {
		return nil, fmt.Errorf("build emitter: %w", err)
	}

	if cfg.Metrics.ListenAddr != "" {
		a.debugSrv = api.NewServer(cfg.Metrics.ListenAddr,
			cfg.Application.Name, cfg.Application.Version, memSink, logger)
		a.debugSrv.Start()
	}

	logger.Info("Application ready",
		zap.String("portal", cfg.Portal.SearchURL),
		zap.String("artifacts", cfg.Artifacts.Provider),
		zap.Bool("probe", cfg.Probe.Enabled))
	return a, nil
}

func (a *App) buildArtifactStore(ctx context.Context) (artifact.Store, error) {
	switch a.cfg.Artifacts.Provider {
	case "local":
		store, err := artifact.NewLocal(artifact.LocalConfig{Dir: a.cfg.Artifacts.Dir}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build local artifact store: %w", err)
		}
		return store, nil
	case "gcs":
		store, err := artifact.NewGCS(ctx, artifact.GCSConfig{
			Bucket: a.cfg.Artifacts.GCSBucket,
			Prefix: a.cfg.Application.Name,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("build gcs artifact store: %w", err)
		}
		a.gcsStore = store
		return store, nil
	case "noop":
		return artifact.NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown artifact provider %q", a.cfg.Artifacts.Provider)
	}
}

// GetConfig returns the validated configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the application logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// NewRequestID mints a request id for runs not handed one by the workflow.
func (a *App) NewRequestID() (string, error) {
	return a.idGen.NewID()
}

// Run executes one retrieval under the configured wall-clock budget.
func (a *App) Run(ctx context.Context, req registry.Request) registry.Outcome {
	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Run.Budget)
	defer cancel()
	return a.orch.Run(runCtx, req)
}

// Emit writes the run's single output document and returns its path.
func (a *App) Emit(req registry.Request, outcome registry.Outcome) (string, error) {
	return a.emitter.Emit(req, outcome)
}

// Close releases every service. The CLI calls it once per process; a failed
// NewApp never hands out an App, so there is nothing to close on that path.
func (a *App) Close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.debugSrv != nil {
		if err := a.debugSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("Debug listener shutdown failed", zap.Error(err))
		}
	}
	if a.hub != nil {
		if err := a.hub.Close(shutdownCtx); err != nil {
			a.logger.Warn("Progress hub close failed", zap.Error(err))
		}
	}
	if a.browser != nil {
		if err := a.browser.Close(shutdownCtx); err != nil {
			a.logger.Warn("Browser close failed", zap.Error(err))
		}
	}
	if a.gcsStore != nil {
		if err := a.gcsStore.Close(); err != nil {
			a.logger.Warn("GCS client close failed", zap.Error(err))
		}
	}
	// Sync can legitimately fail on stderr; nothing to do about it.
	_ = a.logger.Sync()
}
