package ingest

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"market-news-alerts/internal/config"
	"market-news-alerts/internal/engine"
	"market-news-alerts/internal/model"
)

// envelope is the wire shape of a classified event on the topic. Messages
// carrying a user_id evaluate for that user only; the rest fan out to every
// user with stored preferences.
type envelope struct {
	UserID string            `json:"user_id,omitempty"`
	Event  model.MarketEvent `json:"event"`
}

// StartKafka consumes classified events from the configured topic and feeds
// them into the engine. Malformed or rejected messages are logged and
// skipped; the consumer never stops on a bad record.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, eng *engine.Engine, logger zerolog.Logger) {
	log := logger.With().Str("component", "ingest_kafka").Logger()
	if !cfg.Enabled {
		log.Info().Msg("kafka ingest disabled")
		return
	}
	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("group_id", cfg.GroupID).
		Msg("kafka ingest enabled")

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})

	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("kafka read error")
				continue
			}

			var env envelope
			if err := json.Unmarshal(m.Value, &env); err != nil {
				log.Warn().Err(err).Msg("skipping malformed event message")
				continue
			}

			if env.UserID != "" {
				if _, err := eng.SubmitEvent(ctx, env.UserID, env.Event); err != nil {
					log.Warn().Err(err).Str("user_id", env.UserID).Msg("event rejected")
				}
				continue
			}
			if _, err := eng.Broadcast(ctx, env.Event); err != nil {
				log.Warn().Err(err).Str("event_id", env.Event.ID).Msg("broadcast rejected")
			}
		}
	}()
}
