package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"salesforce-bulk/salesforce"
	"salesforce-bulk/salesforce/bulk"
	"salesforce-bulk/salesforce/domain"
	"salesforce-bulk/salesforce/infra"
)

// app junta o que os comandos compartilham: flags globais, config e os
// recursos abertos sob demanda (conexão, histórico, Redis).
type app struct {
	verbose      bool
	settingsPath string

	cfg    config
	logger *zap.Logger
	// ownLogger indica que o logger foi criado aqui (e precisa de Sync).
	ownLogger bool

	stats   *infra.MemoryStatsStore
	history *infra.SQLiteHistory
	closers []func()
}

func (a *app) init() error {
	cfg, err := readConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	a.cfg = cfg
	if a.settingsPath == "" {
		a.settingsPath = cfg.settingsPath
	}

	if a.logger == nil {
		zc := zap.NewProductionConfig()
		if a.verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		a.logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.ownLogger = true
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil

	if a.logger == nil {
		return
	}
	if a.stats != nil {
		total := a.stats.Total()
		a.logger.Debug("salesforce calls",
			zap.Int64("allowed", total.Allowed),
			zap.Int64("denied", total.Denied),
			zap.Int64("throttled", total.Throttled),
			zap.Duration("waited", total.Waited))
	}
	if a.ownLogger {
		_ = a.logger.Sync()
		a.logger = nil
		a.ownLogger = false
	}
}

func (a *app) settings() (salesforce.Settings, error) {
	if a.settingsPath == "" {
		return salesforce.SettingsFromEnv("SF_")
	}
	data, err := os.ReadFile(a.settingsPath)
	if err != nil {
		return salesforce.Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}
	return salesforce.ParseSettings(string(data))
}

// statsStore sempre conta em memória; com SF_STATS_REDIS_ADDR também no Redis.
func (a *app) statsStore(ctx context.Context) (domain.StatsStore, error) {
	a.stats = infra.NewMemoryStatsStore(infra.WithTrackKeys(a.cfg.statsTrackKeys))
	if a.cfg.statsRedisAddr == "" {
		return a.stats, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.statsRedisAddr,
		Password: a.cfg.statsRedisPassword,
		DB:       a.cfg.statsRedisDB,
	})
	a.closers = append(a.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis stats ping error: %w", err)
	}

	redisStats := infra.NewRedisStatsStore(rdb,
		infra.WithStatsPrefix(a.cfg.statsPrefix),
		infra.WithStatsTTL(a.cfg.statsTTL),
		infra.WithStatsBucket(a.cfg.statsBucket),
		infra.WithStatsTrackKeys(a.cfg.statsTrackKeys),
	)
	return infra.MultiStats{a.stats, redisStats}, nil
}

// httpClient monta a cadeia throttle -> concorrência -> transport padrão.
func (a *app) httpClient(ctx context.Context) (*http.Client, error) {
	rt := salesforce.LimitConcurrency(salesforce.ConcurrencyOptions{
		Max:            a.cfg.concurrencyMax,
		AcquireTimeout: a.cfg.concurrencyTimeout,
	})(http.DefaultTransport)

	stats, err := a.statsStore(ctx)
	if err != nil {
		return nil, err
	}

	if a.cfg.rateEnabled {
		store := infra.NewStore(a.cfg.rateRPS, a.cfg.rateBurst)
		janitorCtx, cancel := context.WithCancel(ctx)
		done := store.StartJanitor(janitorCtx)
		a.closers = append(a.closers, func() { cancel(); <-done })

		rt = salesforce.Throttle(salesforce.ThrottleOptions{
			Store:     store,
			Stats:     stats,
			KeyHeader: a.cfg.rateKeyHeader,
			Logger:    a.logger,
		})(rt)
	}

	return &http.Client{Transport: rt}, nil
}

func (a *app) connect(ctx context.Context) (*salesforce.Client, error) {
	s, err := a.settings()
	if err != nil {
		return nil, err
	}
	hc, err := a.httpClient(ctx)
	if err != nil {
		return nil, err
	}

	opts := []salesforce.Option{
		salesforce.WithHTTPClient(hc),
		salesforce.WithLogger(a.logger),
	}
	if a.cfg.loginURL != "" {
		opts = append(opts, salesforce.WithLoginURL(a.cfg.loginURL))
	}
	return salesforce.Connect(ctx, s, opts...)
}

var errHistoryDisabled = errors.New("job history is disabled (SF_HISTORY_DB=off)")

func (a *app) openHistory() (*infra.SQLiteHistory, error) {
	if a.history != nil {
		return a.history, nil
	}
	if a.cfg.historyPath == "off" {
		return nil, errHistoryDisabled
	}
	h, err := infra.OpenSQLiteHistory(a.cfg.historyPath)
	if err != nil {
		return nil, err
	}
	a.history = h
	a.closers = append(a.closers, func() { _ = h.Close() })
	return h, nil
}

func (a *app) bulk(ctx context.Context) (*bulk.Bulk, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}

	opts := []bulk.Option{
		bulk.WithInterval(a.cfg.pollInterval),
		bulk.WithTimeout(a.cfg.requestTimeout),
		bulk.WithMaxRecords(a.cfg.maxRecords),
		bulk.WithLogger(a.logger.Named("bulk")),
	}
	h, err := a.openHistory()
	switch {
	case err == nil:
		opts = append(opts, bulk.WithHistory(h))
	case errors.Is(err, errHistoryDisabled):
	default:
		a.logger.Warn("job history unavailable", zap.Error(err))
	}
	return bulk.New(client, opts...), nil
}
