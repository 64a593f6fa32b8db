package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"atelier/api/internal/models"
)

// Worker drains the activity stream into Postgres. Delivery is at least
// once: entries are acked only after a successful insert, and the insert is
// keyed on the entry ID, so redelivered entries collapse to no-ops.
type Worker struct {
	stream *redis.Client
	store  Store
	log    zerolog.Logger
}

func NewWorker(stream *redis.Client, store Store, log zerolog.Logger) *Worker {
	return &Worker{stream: stream, store: store, log: log}
}

func (w *Worker) Run(ctx context.Context) error {
	if err := w.ensureGroup(ctx); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w.reclaimStalled(ctx)

		res, err := w.stream.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupName,
			Consumer: consumerName,
			Streams:  []string{streamKey, ">"},
			Count:    16,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error().Err(err).Msg("activity stream read failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				w.persist(ctx, msg)
			}
		}
	}
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.stream.XGroupCreateMkStream(ctx, streamKey, groupName, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create activity consumer group: %w", err)
	}
	return nil
}

// reclaimStalled takes over entries another consumer read but never acked.
func (w *Worker) reclaimStalled(ctx context.Context) {
	msgs, _, err := w.stream.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamKey,
		Group:    groupName,
		Consumer: consumerName,
		MinIdle:  time.Minute,
		Start:    "0",
		Count:    16,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Warn().Err(err).Msg("activity stream autoclaim failed")
		}
		return
	}
	for _, msg := range msgs {
		w.persist(ctx, msg)
	}
}

func (w *Worker) persist(ctx context.Context, msg redis.XMessage) {
	entry, err := DecodeEntry(msg.Values)
	if err != nil {
		// A poisoned message would otherwise redeliver forever.
		w.log.Error().Err(err).Str("message_id", msg.ID).Msg("activity entry decode failed; dropping")
		w.ack(ctx, msg.ID)
		return
	}

	if err := w.store.Insert(ctx, entry); err != nil {
		// Left unacked: reclaimed and retried on a later pass.
		w.log.Error().Err(err).Str("entry_id", entry.ID).Msg("activity entry insert failed")
		return
	}

	w.ack(ctx, msg.ID)
}

func (w *Worker) ack(ctx context.Context, messageID string) {
	if err := w.stream.XAck(ctx, streamKey, groupName, messageID).Err(); err != nil {
		w.log.Warn().Err(err).Str("message_id", messageID).Msg("activity stream ack failed")
	}
}

// DecodeEntry unpacks an activity entry from its stream representation.
func DecodeEntry(values map[string]any) (models.ActivityEntry, error) {
	raw, ok := values["entry"].(string)
	if !ok || raw == "" {
		return models.ActivityEntry{}, fmt.Errorf("stream message missing entry payload")
	}
	var entry models.ActivityEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return models.ActivityEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	if entry.ID == "" {
		return models.ActivityEntry{}, fmt.Errorf("entry missing id")
	}
	return entry, nil
}
