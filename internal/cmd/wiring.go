package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/careerlens/careerlens/internal/admission"
	"github.com/careerlens/careerlens/internal/analysis"
	"github.com/careerlens/careerlens/internal/config"
	"github.com/careerlens/careerlens/internal/document"
	"github.com/careerlens/careerlens/internal/events"
	"github.com/careerlens/careerlens/internal/inference"
	"github.com/careerlens/careerlens/internal/metrics"
	"github.com/careerlens/careerlens/internal/store"
)

// services holds the long-lived components shared by serve and the one-shot
// commands. Optional parts stay nil when their config is empty.
type services struct {
	policies  *analysis.Policies
	service   *analysis.Service
	sink      *inference.AsyncSink
	store     *store.Store
	publisher *events.Publisher
	redis     *redis.Client
	stats     *admission.RedisStats
	statsQ    *admission.AsyncStats
	extractor *document.Extractor
	objects   *document.S3Source
}

// buildServices creates the gateway and analysis service. withSinks adds the
// outcome sinks: logs, metrics, the store and the event publisher.
func buildServices(ctx context.Context, cfg *config.Config, logger *logging.Logger, withSinks bool) (*services, error) {
	table, err := cfg.Policies()
	if err != nil {
		return nil, err
	}

	rt := &services{
		policies:  analysis.NewPolicies(table),
		extractor: document.NewExtractor(cfg.DocumentLimits()),
	}

	drv, err := inference.NewDriver(cfg.Inference.ProviderConfig)
	if err != nil {
		return nil, fmt.Errorf("inference provider: %w", err)
	}

	opts := []inference.Option{
		inference.WithPacer(cfg.Inference.PacerRPS, cfg.Inference.PacerBurst),
		inference.WithDefaultDeadline(cfg.Inference.DefaultDeadline),
	}

	if withSinks {
		sinks := inference.MultiSink{inference.NewLogSink(logger), metrics.InferenceSink()}

		if cfg.Store.Enabled {
			db, err := openStore(ctx, cfg.Store)
			if err != nil {
				rt.Close(ctx)
				return nil, err
			}
			rt.store = db
			sinks = append(sinks, db.OutcomeSink())
		}

		if url := strings.TrimSpace(cfg.Events.URL); url != "" {
			pub, err := events.Dial(url, cfg.Events.Exchange)
			if err != nil {
				rt.Close(ctx)
				return nil, err
			}
			rt.publisher = pub
			sinks = append(sinks, pub)
		}

		rt.sink = inference.NewAsyncSink(sinks, cfg.Inference.SinkBuffer, logger)
		opts = append(opts, inference.WithSink(rt.sink))
	}

	gw := inference.NewGateway(drv, cfg.Inference.Model, opts...)
	rt.service = analysis.NewService(gw, rt.policies)
	return rt, nil
}

// attachStats connects the Redis admission counters when configured.
func (rt *services) attachStats(ctx context.Context, cfg config.StatsConfig, logger *logging.Logger) error {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return nil
	}
	client, err := admission.NewRedisClient(url)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx).Err(); err != nil && logger != nil {
		logger.Warn("Redis unreachable at startup, admission stats will retry per request", zap.Error(err))
	}
	rt.redis = client
	rt.stats = admission.NewRedisStats(client,
		admission.WithStatsPrefix(cfg.Prefix),
		admission.WithStatsTTL(cfg.TTL),
		admission.WithStatsTrackKeys(cfg.TrackKeys),
	)
	rt.statsQ = admission.NewAsyncStats(rt.stats, 0, logger)
	return nil
}

// attachObjects builds the S3 source when a bucket is configured.
func (rt *services) attachObjects(ctx context.Context, cfg config.DocumentsConfig) error {
	if !cfg.S3.Enabled() {
		return nil
	}
	src, err := document.NewS3Source(ctx, cfg.S3, cfg.MaxBytes)
	if err != nil {
		return err
	}
	rt.objects = src
	return nil
}

// Close drains the sink before closing what it writes to.
func (rt *services) Close(ctx context.Context) {
	if rt == nil {
		return
	}
	if rt.sink != nil {
		_ = rt.sink.Close(ctx)
	}
	if rt.publisher != nil {
		_ = rt.publisher.Close()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
	if rt.statsQ != nil {
		_ = rt.statsQ.Close(ctx)
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (*store.Store, error) {
	db, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
