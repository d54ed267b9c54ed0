package domain

import (
	"context"

	"github.com/foodlens/framelink/internal/bus"
	"github.com/foodlens/framelink/internal/connectors"
)

// WriteQueue serializes persistence writes from async domain events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartPersistenceProjection records every dispatched device command in the command log.
func StartPersistenceProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, commandRepo CommandLogRepository) {
	commandSub := b.Subscribe(connectors.TopicDeviceCommand)

	go func() {
		defer b.Unsubscribe(commandSub, connectors.TopicDeviceCommand)
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-commandSub:
				if !ok {
					return
				}
				ev, ok := raw.(connectors.CommandEvent)
				if !ok {
					continue
				}
				rec := CommandRecord{
					Type:       ev.Type,
					Success:    ev.Success,
					Reason:     ev.Reason,
					DurationMS: ev.DurationMS,
					At:         ev.Timestamp,
				}
				queue.Enqueue("insert_command_record", func(writeCtx context.Context) error {
					_, err := commandRepo.Insert(writeCtx, rec)
					return err
				})
			}
		}
	}()
}
