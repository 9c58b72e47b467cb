package notify

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultStream = "lending:events"

// Redis appends events to a capped Redis stream for out-of-process
// consumers (mail, chat bots).
type Redis struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

func (r Redis) Notify(ctx context.Context, ev Event) error {
	stream := r.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return r.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: r.MaxLen,
		Approx: r.MaxLen > 0,
		Values: map[string]any{
			"kind":         string(ev.Kind),
			"loan_id":      ev.LoanID,
			"asset_id":     ev.AssetID,
			"recipient_id": ev.RecipientID,
			"actor_id":     ev.ActorID,
			"at":           ev.At.UTC().Format(time.RFC3339),
		},
	}).Err()
}
