package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maprender/tilesource/internal/app/server"
	"github.com/maprender/tilesource/internal/cache"
	"github.com/maprender/tilesource/internal/cache/memstore"
	"github.com/maprender/tilesource/internal/cache/redisstore"
	"github.com/maprender/tilesource/internal/config"
	"github.com/maprender/tilesource/internal/fetch"
	"github.com/maprender/tilesource/internal/invalidation/kafkaconsumer"
	"github.com/maprender/tilesource/internal/logger"
	"github.com/maprender/tilesource/internal/source"
	"github.com/maprender/tilesource/internal/source/arcgis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		Component: "tileproxy",
	}, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(cfg.SourceURLs) == 0 {
		log.Fatal().Msg("no sources configured; set SOURCES=name=url[,name=url]")
	}

	fetcher := fetch.New(cfg.FetchTimeout, log)
	source.Register(arcgis.Token, arcgis.Factory(fetcher))

	entries := map[string]server.Entry{}
	consumerSources := map[string]kafkaconsumer.SourceInfo{}
	for name, u := range cfg.SourceURLs {
		opts := source.Options{URL: u, Profile: cfg.SourceProfiles[name]}
		src, err := source.New(ctx, arcgis.Token, opts, &log)
		if err != nil {
			// construction only fails on configuration errors; a failed
			// metadata fetch yields a disabled source instead
			log.Fatal().Err(err).Str("source", name).Msg("source configuration invalid")
		}
		entries[name] = server.Entry{Name: name, URL: u, Source: src}
		consumerSources[name] = kafkaconsumer.SourceInfo{
			Profile: src.Profile(),
			URL:     u,
			Format:  "png",
		}
	}

	var (
		store  cache.Store
		tiered cache.Tiered
	)
	if cfg.CacheEnabled {
		mem, err := memstore.New(cfg.MemCacheSize)
		if err != nil {
			log.Fatal().Err(err).Msg("memory cache init failed")
		}
		tiered = cache.Tiered{Front: mem}

		rs, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable; caching in memory only")
		} else {
			tiered.Back = rs
			defer func() { _ = rs.Close() }()
		}
		store = tiered
	}

	if cfg.Invalidation.Enabled && store != nil {
		kcfg := kafkaconsumer.NewConfig(
			cfg.Invalidation.Brokers,
			cfg.Invalidation.Topic,
			cfg.Invalidation.GroupID,
			cfg.Invalidation.MaxLevel,
		)
		consumer := kafkaconsumer.New(kcfg, tiered, consumerSources,
			log.With().Str("component", "invalidator").Logger())
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("invalidation consumer stopped")
			}
		}()
	}

	h := server.New(server.Deps{
		Sources:        entries,
		Cache:          store,
		CacheTTL:       cfg.CacheTTLDefault,
		CacheOpTimeout: cfg.CacheOpTimeout,
	}, log)

	if err := server.Run(ctx, cfg.Addr, h, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
