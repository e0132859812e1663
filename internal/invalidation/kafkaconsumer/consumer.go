package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/maprender/tilesource/internal/cache/keys"
	"github.com/maprender/tilesource/internal/geo"
	"github.com/maprender/tilesource/internal/invalidation"
	"github.com/maprender/tilesource/internal/model"
	"github.com/maprender/tilesource/internal/observability"
)

// Below this many covering tiles per level the purge enumerates exact keys;
// past it the finer levels would only multiply, so the source is purged
// wholesale instead.
const maxKeysPerLevel = 2048

// Store is what the consumer needs from the tile cache.
type Store interface {
	Del(ctx context.Context, keys ...string) error
	DelPrefix(ctx context.Context, prefix string) (int, error)
}

// SourceInfo is the per-source data needed to turn an extent into cache keys.
type SourceInfo struct {
	Profile geo.Profile
	URL     string
	Format  string
}

type Consumer struct {
	cfg     Config
	store   Store
	sources map[string]SourceInfo
	log     zerolog.Logger
}

func New(cfg Config, store Store, sources map[string]SourceInfo, logger zerolog.Logger) *Consumer {
	return &Consumer{cfg: cfg, store: store, sources: sources, log: logger}
}

// Start consumes purge events until the context is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil || len(c.sources) == 0 {
		return errors.New("kafkaconsumer: missing dependencies (store/sources)")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.log.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Msg("invalidation consumer starting")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.log.Error().Err(err).Str("topic", c.cfg.Topic).Msg("consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single purge event message.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidationEvent("decode_error")
		c.log.Error().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("event decode failed")
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidationEvent("invalid")
		c.log.Warn().Err(err).Str("source", ev.Source).Msg("invalid event (skipping)")
		return nil
	}

	info, ok := c.sources[ev.Source]
	if !ok {
		observability.IncInvalidationEvent("unknown_source")
		c.log.Debug().Str("source", ev.Source).Msg("event for unknown source (skipping)")
		return nil
	}

	purged, err := c.purge(ctx, ev, info)
	if err != nil {
		observability.IncInvalidationEvent("purge_error")
		return fmt.Errorf("purge: %w", err)
	}

	observability.IncInvalidationEvent("ok")
	observability.AddInvalidationPurged(purged)
	c.log.Info().
		Str("source", ev.Source).
		Int("purged", purged).
		Bool("full", ev.Extent == nil).
		Msg("tiles invalidated")
	return nil
}

func (c *Consumer) purge(ctx context.Context, ev invalidation.Event, info SourceInfo) (int, error) {
	prefix := keys.Prefix(ev.Source, info.URL)

	if ev.Extent == nil {
		return c.store.DelPrefix(ctx, prefix)
	}

	maxLevel := ev.MaxLevel
	if maxLevel == 0 || maxLevel > c.cfg.MaxLevel {
		maxLevel = c.cfg.MaxLevel
	}
	ext := model.Extent{
		XMin: ev.Extent.XMin, YMin: ev.Extent.YMin,
		XMax: ev.Extent.XMax, YMax: ev.Extent.YMax,
	}

	var delKeys []string
	for level := 0; level <= maxLevel; level++ {
		cover := info.Profile.CoverWGS84(ext, level)
		if len(cover) > maxKeysPerLevel {
			return c.store.DelPrefix(ctx, prefix)
		}
		for _, k := range cover {
			delKeys = append(delKeys, keys.Tile(ev.Source, info.URL, k.Level, k.Row, k.Col, info.Format))
		}
	}
	if len(delKeys) == 0 {
		return 0, nil
	}
	if err := c.store.Del(ctx, delKeys...); err != nil {
		return 0, err
	}
	return len(delKeys), nil
}
