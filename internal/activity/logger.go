package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"atelier/api/internal/ids"
	"atelier/api/internal/models"
)

const (
	streamKey    = "activity:log"
	groupName    = "activity-writer"
	consumerName = "api"
)

type Store interface {
	Insert(ctx context.Context, entry models.ActivityEntry) error
}

// Logger appends audit entries without ever failing the mutation it
// accompanies. Entries go through a redis stream drained by the Worker; when
// the stream is unreachable the entry is written straight to the store, and
// if that also fails the loss is logged and swallowed.
type Logger struct {
	stream *redis.Client
	store  Store
	log    zerolog.Logger
}

func NewLogger(stream *redis.Client, store Store, log zerolog.Logger) *Logger {
	return &Logger{stream: stream, store: store, log: log}
}

func (l *Logger) Record(ctx context.Context, entry models.ActivityEntry) {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		l.log.Error().Err(err).Str("action", entry.Action).Msg("activity entry encode failed")
		return
	}

	if l.stream != nil {
		err := l.stream.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey,
			Values: map[string]any{"entry": string(payload)},
		}).Err()
		if err == nil {
			return
		}
		l.log.Warn().Err(err).Str("action", entry.Action).Msg("activity stream publish failed; falling back to direct insert")
	}

	if err := l.store.Insert(ctx, entry); err != nil {
		l.log.Error().Err(err).Str("action", entry.Action).Str("entry_id", entry.ID).Msg("activity entry lost")
	}
}
