package notifications

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"diarylink/internal/kafka"
	"diarylink/internal/models"
	"diarylink/internal/services"
)

// KafkaEventDispatcher publishes relationship events to the notifications
// topic. It satisfies the fire-and-forget contract of services.EventDispatcher:
// the produce happens on its own goroutine with a bounded timeout, and a
// failed publish is logged and dropped rather than surfaced to the caller.
type KafkaEventDispatcher struct {
	producer kafka.MessageProducer
	topic    string
}

func NewKafkaEventDispatcher(producer kafka.MessageProducer, topic string) *KafkaEventDispatcher {
	return &KafkaEventDispatcher{producer: producer, topic: topic}
}

var _ services.EventDispatcher = (*KafkaEventDispatcher)(nil)

// Dispatch serializes the event and hands it to Kafka. The partition key is
// the canonical pair so both directions of a pair stay in one partition.
func (d *KafkaEventDispatcher) Dispatch(event models.RelationshipEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Dispatcher: failed to marshal %s event for %s/%s: %v",
			event.Type, event.ActorID, event.CounterpartID, err)
		return
	}
	key := []byte(models.CanonicalPair(event.ActorID, event.CounterpartID))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := d.producer.SendMessage(ctx, d.topic, key, payload); err != nil {
			log.Printf("Dispatcher: failed to publish %s event for pair %s: %v",
				event.Type, string(key), err)
		}
	}()
}
