package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// BalanceNotifier implements ports.BalanceNotifier over Redis pub/sub, one
// channel per account.
type BalanceNotifier struct {
	client *goredis.Client
	prefix string
	log    zerolog.Logger
}

// NewBalanceNotifier creates a Redis-backed balance change notifier.
func NewBalanceNotifier(client *goredis.Client, log zerolog.Logger) *BalanceNotifier {
	return &BalanceNotifier{
		client: client,
		prefix: "wdr:balance:",
		log:    log,
	}
}

// Publish signals that the account's balance changed.
func (n *BalanceNotifier) Publish(ctx context.Context, accountID uuid.UUID) error {
	if err := n.client.Publish(ctx, n.prefix+accountID.String(), "changed").Err(); err != nil {
		return fmt.Errorf("redis balance publish: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is active. Signals that arrive
// while the previous one is still unread are coalesced.
func (n *BalanceNotifier) Subscribe(ctx context.Context, accountID uuid.UUID) (<-chan struct{}, error) {
	channel := n.prefix + accountID.String()
	pubsub := n.client.Subscribe(ctx, channel)

	// The first reply confirms the subscription.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis balance subscribe: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					n.log.Warn().Str("channel", channel).Msg("balance subscription closed")
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
