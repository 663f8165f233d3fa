package satellites

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// InvalidationChannel carries registry invalidations between instances.
const InvalidationChannel = "satellites:invalidate"

// Invalidator fans registry invalidations out over Redis pub/sub so that an
// admin edit on one instance is picked up by all of them.
type Invalidator struct {
	client *redis.Client
	origin string
	log    *zap.SugaredLogger
}

// NewInvalidator returns an Invalidator. origin identifies this instance;
// its own messages are ignored by Listen.
func NewInvalidator(client *redis.Client, origin string, log *zap.SugaredLogger) *Invalidator {
	return &Invalidator{client: client, origin: origin, log: log}
}

// Publish announces that the satellite set changed. A nil Invalidator is a no-op.
func (i *Invalidator) Publish(ctx context.Context) error {
	if i == nil || i.client == nil {
		return nil
	}
	return i.client.Publish(ctx, InvalidationChannel, i.origin).Err()
}

// Listen invalidates reg for every message from another instance. It blocks
// until ctx is done.
func (i *Invalidator) Listen(ctx context.Context, reg Invalidatable) error {
	pubsub := i.client.Subscribe(ctx, InvalidationChannel)
	defer pubsub.Close()
	// wait for the subscription to be confirmed so no publish is missed after return
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg.Payload == i.origin {
				continue
			}
			i.log.Infow("satellite registry invalidated by peer", "peer", msg.Payload)
			reg.Invalidate()
		}
	}
}
