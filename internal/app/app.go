package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"poly-dump-hedge/internal/alerts"
	"poly-dump-hedge/internal/clob"
	"poly-dump-hedge/internal/clob/rest"
	"poly-dump-hedge/internal/clob/ws"
	"poly-dump-hedge/internal/config"
	"poly-dump-hedge/internal/events"
	"poly-dump-hedge/internal/exec"
	"poly-dump-hedge/internal/market"
	"poly-dump-hedge/internal/metrics"
	"poly-dump-hedge/internal/state"
	"poly-dump-hedge/internal/state/sqlite"
	"poly-dump-hedge/internal/strategy"
	"poly-dump-hedge/internal/timescale"

	"go.uber.org/zap"
)

const checkpointTimeout = 5 * time.Second

type App struct {
	cfg      *config.Config
	log      *zap.Logger
	store    state.Store
	feed     *clob.Feed
	tracker  *market.Tracker
	buffer   *market.Buffer
	detector *strategy.Detector
	calc     strategy.Calculator
	machine  *strategy.StateMachine
	trader   exec.Trader
	bus      *events.Bus
	telegram *alerts.Telegram
	notifier *alerts.Notifier
	metrics  *metrics.Metrics
	prom     *metrics.Prometheus
	research *timescale.Writer

	opsMu          sync.RWMutex
	paused         bool
	operatorWarned bool

	// touched only from the tick loop
	lastRoundCheck time.Time

	feedMu        sync.Mutex
	feedConnected bool
	everConnected bool
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	var signer *clob.Signer
	if !cfg.Strategy.DryRun {
		privateKey := strings.TrimSpace(os.Getenv("POLY_PRIVATE_KEY"))
		if privateKey == "" {
			return nil, errors.New("POLY_PRIVATE_KEY is required for live trading")
		}
		signer, err = clob.NewSigner(privateKey)
		if err != nil {
			return nil, err
		}
	}
	restClient := rest.New(cfg.Gamma.BaseURL, cfg.Clob.BaseURL, cfg.Clob.Timeout, signer, log)
	wsClient := ws.New(cfg.WS.URL, cfg.WS.ReconnectDelay, cfg.WS.MaxRetries, cfg.WS.PingInterval, log)
	feed := clob.NewFeed(wsClient, log)
	tracker := market.NewTracker(restClient, cfg.Market.SeriesSlug, fallbackRound(cfg.Market), log)

	var trader exec.Trader
	if cfg.Strategy.DryRun {
		trader = exec.NewDryRun(log)
	} else {
		trader = exec.New(restClient, store, log)
	}

	telegram := alerts.NewTelegram(cfg.Telegram, log)
	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}
	research, err := timescale.New(cfg.Research, log)
	if err != nil {
		log.Warn("research recording disabled", zap.Error(err))
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		feed:     feed,
		tracker:  tracker,
		buffer:   market.NewBuffer(cfg.Strategy.BufferSize),
		detector: strategy.NewDetector(cfg.Strategy.DropThreshold, cfg.Strategy.MonitorWindowMin, cfg.Strategy.SubWindow, log),
		calc:     strategy.NewCalculator(cfg.Strategy.HedgeSumTarget, cfg.Strategy.FeeRate),
		machine:  strategy.NewStateMachine(log),
		trader:   trader,
		bus:      events.NewBus(64),
		telegram: telegram,
		notifier: alerts.NewNotifier(telegram, log),
		metrics:  m,
		prom:     prom,
		research: research,
		paused:   !cfg.Strategy.AutoStart,
	}
	a.machine.OnCheckpoint(a.persistCycle)
	a.machine.OnCompleted(a.onCycleCompleted)
	feed.OnSnapshot(a.handleSnapshot)
	feed.OnStateChange(a.handleFeedState)
	return a, nil
}

func fallbackRound(cfg config.MarketConfig) market.RoundInfo {
	if cfg.FallbackSlug == "" {
		return market.RoundInfo{}
	}
	return market.RoundInfo{
		Slug:      cfg.FallbackSlug,
		UpToken:   cfg.FallbackUpToken,
		DownToken: cfg.FallbackDownToken,
		Start:     cfg.FallbackStart,
		End:       cfg.FallbackEnd,
	}
}

// Events exposes the domain event stream for embedders and tests.
func (a *App) Events() *events.Bus {
	return a.bus
}

// MetricsHandler returns the Prometheus scrape handler, nil when metrics are
// disabled.
func (a *App) MetricsHandler() http.Handler {
	if a.prom == nil {
		return nil
	}
	return a.prom.Handler()
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	if a.research != nil {
		defer a.research.Close()
		a.research.Start(ctx)
	}
	a.logRecoveredCycle(ctx)
	a.startMetricsServer(ctx)
	a.startOperator(ctx)

	feedDone := make(chan error, 1)
	go func() {
		feedDone <- a.feed.Run(ctx)
	}()

	if change := a.tracker.Refresh(ctx); !change.Empty() {
		a.applyRoundChange(ctx, change)
	}

	ticker := time.NewTicker(a.cfg.Strategy.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-feedDone:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.notifier.SystemError("market feed", err)
			return err
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// logRecoveredCycle surfaces what the previous process left behind. The store
// keeps the record either way; a cycle interrupted mid-flight needs an
// operator decision, not an automatic replay.
func (a *App) logRecoveredCycle(ctx context.Context) {
	cycle, ok, err := state.LoadCurrentTradeCycle(ctx, a.store)
	if err != nil {
		a.log.Warn("failed to load persisted cycle", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	if cycle.Status.Terminal() {
		a.log.Info("previous cycle finished",
			zap.String("cycle_id", cycle.ID),
			zap.String("status", string(cycle.Status)),
		)
		return
	}
	a.log.Warn("recovered unfinished cycle, manual review required",
		zap.String("cycle_id", cycle.ID),
		zap.String("round", cycle.RoundSlug),
		zap.String("status", string(cycle.Status)),
	)
	a.notifier.Info("⚠️ Recovered unfinished cycle " + cycle.ID + " in status " + string(cycle.Status))
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil || a.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
}

func (a *App) handleSnapshot(snap market.PriceSnapshot) {
	a.buffer.Push(snap)
	if a.research != nil {
		a.research.EnqueueTick(snap)
	}
	a.bus.Publish(events.TypePriceUpdate, snap)
}

func (a *App) handleFeedState(connected bool) {
	a.feedMu.Lock()
	wasConnected := a.feedConnected
	a.feedConnected = connected
	reconnected := connected && !wasConnected && a.everConnected
	if connected {
		a.everConnected = true
	}
	a.feedMu.Unlock()
	if connected == wasConnected {
		return
	}
	if reconnected {
		a.metrics.WSReconnects.Inc()
	}
	a.bus.Publish(events.TypeConnection, connected)
	a.log.Info("market feed state changed", zap.Bool("connected", connected))
}

func (a *App) feedUp() bool {
	a.feedMu.Lock()
	defer a.feedMu.Unlock()
	return a.feedConnected
}

func (a *App) persistCycle(cycle strategy.TradeCycle) {
	ctx, cancel := context.WithTimeout(context.Background(), checkpointTimeout)
	defer cancel()
	if err := state.SaveTradeCycle(ctx, a.store, cycle); err != nil {
		a.log.Error("cycle checkpoint failed",
			zap.String("cycle_id", cycle.ID),
			zap.Error(err),
		)
	}
	if a.research != nil && cycle.Status.Terminal() {
		a.research.EnqueueCycle(cycle)
	}
}

func (a *App) onCycleCompleted(cycle strategy.TradeCycle) {
	a.metrics.CyclesCompleted.Inc()
	a.bus.Publish(events.TypeCycleCompleted, cycle)
	a.notifier.CycleCompleted(cycle)
	net := 0.0
	if cycle.GuaranteedProfit != nil {
		net = *cycle.GuaranteedProfit
	}
	a.log.Info("trade cycle completed",
		zap.String("cycle_id", cycle.ID),
		zap.String("round", cycle.RoundSlug),
		zap.Float64("guaranteed_profit", net),
	)
}

func (a *App) isPaused() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.paused
}

func (a *App) setPaused(paused bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.paused = paused
	return a.paused
}
