package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"poly-dump-hedge/internal/config"
	"poly-dump-hedge/internal/market"
	"poly-dump-hedge/internal/strategy"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	queueSize    = 256
)

// Writer streams price ticks and finished trade cycles into TimescaleDB for
// offline research. Everything is best-effort: the trading loop enqueues and
// moves on, and a full queue or failed insert only logs.
type Writer struct {
	db        *sql.DB
	log       *zap.Logger
	schema    string
	ticks     chan market.PriceSnapshot
	cycles    chan strategy.TradeCycle
	started   atomic.Bool
	dropTick  atomic.Uint64
	dropCycle atomic.Uint64
}

// New returns nil when research recording is disabled; every method on a nil
// Writer is a no-op.
func New(cfg config.ResearchConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("research dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		ticks:  make(chan market.PriceSnapshot, queueSize),
		cycles: make(chan strategy.TradeCycle, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTick(snap market.PriceSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.ticks <- snap:
		return
	default:
		if w.dropTick.Add(1) == 1 && w.log != nil {
			w.log.Warn("research tick queue full")
		}
	}
}

func (w *Writer) EnqueueCycle(cycle strategy.TradeCycle) {
	if w == nil {
		return
	}
	select {
	case w.cycles <- cycle:
		return
	default:
		if w.dropCycle.Add(1) == 1 && w.log != nil {
			w.log.Warn("research cycle queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.ticks:
			w.writeTick(ctx, snap)
		case cycle := <-w.cycles:
			w.writeCycle(ctx, cycle)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("research db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		round_slug TEXT NOT NULL,
		up_bid DOUBLE PRECISION NOT NULL,
		up_ask DOUBLE PRECISION NOT NULL,
		down_bid DOUBLE PRECISION NOT NULL,
		down_ask DOUBLE PRECISION NOT NULL,
		seconds_left DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, round_slug)
	)`, w.table("price_ticks"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		round_slug TEXT NOT NULL,
		status TEXT NOT NULL,
		leg1_side TEXT,
		leg1_shares INTEGER,
		leg1_price DOUBLE PRECISION,
		leg1_cost DOUBLE PRECISION,
		leg2_side TEXT,
		leg2_shares INTEGER,
		leg2_price DOUBLE PRECISION,
		leg2_cost DOUBLE PRECISION,
		profit DOUBLE PRECISION,
		guaranteed_profit DOUBLE PRECISION,
		error TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`, w.table("trade_cycles"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("price_ticks"))); err != nil && w.log != nil {
		w.log.Warn("price_ticks hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeTick(ctx context.Context, snap market.PriceSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, round_slug, up_bid, up_ask, down_bid, down_ask, seconds_left
	) VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (ts, round_slug) DO NOTHING`, w.table("price_ticks"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Timestamp,
		snap.RoundSlug,
		snap.Up.Bid,
		snap.Up.Ask,
		snap.Down.Bid,
		snap.Down.Ask,
		snap.SecondsLeft,
	); err != nil && w.log != nil {
		w.log.Warn("research tick insert failed", zap.Error(err))
	}
}

func (w *Writer) writeCycle(ctx context.Context, cycle strategy.TradeCycle) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	var (
		leg1Side, leg2Side     sql.NullString
		leg1Shares, leg2Shares sql.NullInt64
		leg1Price, leg2Price   sql.NullFloat64
		leg1Cost, leg2Cost     sql.NullFloat64
		profit, guaranteed     sql.NullFloat64
	)
	if cycle.Leg1 != nil {
		leg1Side = sql.NullString{String: string(cycle.Leg1.Side), Valid: true}
		leg1Shares = sql.NullInt64{Int64: int64(cycle.Leg1.Shares), Valid: true}
		leg1Price = sql.NullFloat64{Float64: cycle.Leg1.Price, Valid: true}
		leg1Cost = sql.NullFloat64{Float64: cycle.Leg1.TotalCost, Valid: true}
	}
	if cycle.Leg2 != nil {
		leg2Side = sql.NullString{String: string(cycle.Leg2.Side), Valid: true}
		leg2Shares = sql.NullInt64{Int64: int64(cycle.Leg2.Shares), Valid: true}
		leg2Price = sql.NullFloat64{Float64: cycle.Leg2.Price, Valid: true}
		leg2Cost = sql.NullFloat64{Float64: cycle.Leg2.TotalCost, Valid: true}
	}
	if cycle.Profit != nil {
		profit = sql.NullFloat64{Float64: *cycle.Profit, Valid: true}
	}
	if cycle.GuaranteedProfit != nil {
		guaranteed = sql.NullFloat64{Float64: *cycle.GuaranteedProfit, Valid: true}
	}
	query := fmt.Sprintf(`INSERT INTO %s (
		id, round_slug, status, leg1_side, leg1_shares, leg1_price, leg1_cost,
		leg2_side, leg2_shares, leg2_price, leg2_cost, profit, guaranteed_profit,
		error, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		leg1_side = EXCLUDED.leg1_side,
		leg1_shares = EXCLUDED.leg1_shares,
		leg1_price = EXCLUDED.leg1_price,
		leg1_cost = EXCLUDED.leg1_cost,
		leg2_side = EXCLUDED.leg2_side,
		leg2_shares = EXCLUDED.leg2_shares,
		leg2_price = EXCLUDED.leg2_price,
		leg2_cost = EXCLUDED.leg2_cost,
		profit = EXCLUDED.profit,
		guaranteed_profit = EXCLUDED.guaranteed_profit,
		error = EXCLUDED.error,
		updated_at = EXCLUDED.updated_at`, w.table("trade_cycles"))
	if _, err := w.db.ExecContext(ctx, query,
		cycle.ID,
		cycle.RoundSlug,
		string(cycle.Status),
		leg1Side, leg1Shares, leg1Price, leg1Cost,
		leg2Side, leg2Shares, leg2Price, leg2Cost,
		profit, guaranteed,
		cycle.Error,
		cycle.CreatedAt,
		cycle.UpdatedAt,
	); err != nil && w.log != nil {
		w.log.Warn("research cycle upsert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
