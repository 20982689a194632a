package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ecoledger/internal/aggregate"
	"github.com/sells-group/ecoledger/internal/api"
	"github.com/sells-group/ecoledger/internal/calc"
	"github.com/sells-group/ecoledger/internal/classify"
	"github.com/sells-group/ecoledger/internal/config"
	"github.com/sells-group/ecoledger/internal/explain"
	"github.com/sells-group/ecoledger/internal/factor"
	"github.com/sells-group/ecoledger/internal/ledger"
	"github.com/sells-group/ecoledger/internal/normalize"
	"github.com/sells-group/ecoledger/internal/pipeline"
	"github.com/sells-group/ecoledger/internal/recommend"
	"github.com/sells-group/ecoledger/internal/resilience"
	"github.com/sells-group/ecoledger/internal/scenario"
	"github.com/sells-group/ecoledger/internal/store"
)

// engineEnv holds the store and every engine component built on it.
type engineEnv struct {
	Store       store.Store
	Factors     *factor.Table
	Ledger      *ledger.Ledger
	Normalizer  *normalize.Normalizer
	Pipeline    *pipeline.Pipeline
	Explainer   *explain.Explainer
	Recommender *recommend.Recommender
	Simulator   *scenario.Simulator
}

// Close releases the store.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine validates cfg for mode, opens and migrates the store, loads the
// factor table, and wires the engine. Callers should defer env.Close().
func initEngine(ctx context.Context, mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	tbl, err := loadFactors()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	th := cfg.Recommend.Thresholds()
	l := ledger.New(st)
	n := normalize.New(tbl, normalize.Options{
		DateLayouts: cfg.Ingest.DateLayouts,
		Charset:     cfg.Ingest.Charset,
	})
	return &engineEnv{
		Store:       st,
		Factors:     tbl,
		Ledger:      l,
		Normalizer:  n,
		Pipeline:    pipeline.New(n, classify.New(tbl), calc.NewEngine(tbl), l, pipeline.Options{Workers: cfg.Ingest.Workers}),
		Explainer:   explain.New(l),
		Recommender: recommend.New(cfg.Recommend.TopK, th),
		Simulator:   scenario.New(l, tbl),
	}, nil
}

// loadFactors returns the built-in factor table, or the file named by
// factors.path, with any configured unit aliases added.
func loadFactors() (*factor.Table, error) {
	var (
		tbl *factor.Table
		err error
	)
	if cfg.Factors.Path != "" {
		tbl, err = factor.LoadFile(cfg.Factors.Path)
	} else {
		tbl, err = factor.Default()
	}
	if err != nil {
		return nil, eris.Wrap(err, "load factors")
	}
	tbl, err = tbl.WithAliases(cfg.Ingest.UnitAliases)
	if err != nil {
		return nil, eris.Wrap(err, "load factors")
	}
	zap.L().Debug("factor table loaded",
		zap.Int("factors", len(tbl.Factors())),
		zap.String("path", cfg.Factors.Path),
	)
	return tbl, nil
}

// initStore opens and migrates the configured store, retrying transient
// failures such as a database that is still starting.
func initStore(ctx context.Context) (store.Store, error) {
	rc := resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	rc.OnRetry = resilience.LogRetry("store", "open")

	st, err := resilience.DoVal(ctx, rc, openStore)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}

	rc.OnRetry = resilience.LogRetry("store", "migrate")
	if err := resilience.Do(ctx, rc, st.Migrate); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Ping(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// apiConfig maps the loaded configuration onto the HTTP layer.
func apiConfig(c *config.Config) api.Config {
	period, _ := aggregate.ParsePeriod(c.Aggregate.Period)
	unit, _ := aggregate.ParseUnit(c.Aggregate.CO2eUnit)
	return api.Config{
		CORSOrigins:    c.Server.CORSOrigins,
		RateLimitRPS:   c.Server.RateLimitRPS,
		RateLimitBurst: c.Server.RateLimitBurst,
		MaxUploadBytes: int64(c.Server.MaxUploadMB) << 20,
		Period:         period,
		ZeroFill:       c.Aggregate.ZeroFill,
		HotspotLimit:   c.Aggregate.HotspotLimit,
		Thresholds:     c.Recommend.Thresholds(),
		CO2eUnit:       unit,
		Precision:      c.Aggregate.Precision,
	}
}

// aggregateOptions builds summary options for CLI commands. An empty period
// keeps the configured one.
func aggregateOptions(c *config.Config, period string, from, to *time.Time) (aggregate.Options, error) {
	if period == "" {
		period = c.Aggregate.Period
	}
	p, err := aggregate.ParsePeriod(period)
	if err != nil {
		return aggregate.Options{}, err
	}
	th := c.Recommend.Thresholds()
	return aggregate.Options{
		Period:       p,
		ZeroFill:     c.Aggregate.ZeroFill,
		HotspotLimit: c.Aggregate.HotspotLimit,
		From:         from,
		To:           to,
		Thresholds:   &th,
	}, nil
}
