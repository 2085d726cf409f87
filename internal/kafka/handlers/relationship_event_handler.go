package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"diarylink/internal/models"
	"diarylink/internal/storage"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"gorm.io/gorm"
)

// PushSender delivers one notification to one user's devices. The real
// implementation talks to the push platform; tests and the default notifier
// binary use LogPushSender.
type PushSender interface {
	Push(ctx context.Context, userID, title, body string) error
}

// LogPushSender writes notifications to the process log instead of a push
// platform. Used in development and as a fallback.
type LogPushSender struct{}

func (LogPushSender) Push(_ context.Context, userID, title, body string) error {
	log.Printf("PUSH -> %s: %s | %s", userID, title, body)
	return nil
}

// RelationshipEventHandler consumes relationship events and turns each one
// into a push notification for the affected user. Delivery is at-least-once:
// the consumer commits only after handling, so a replayed event just sends
// the same notification again.
type RelationshipEventHandler struct {
	userRepo storage.UserRepository
	sender   PushSender
}

func NewRelationshipEventHandler(userRepo storage.UserRepository, sender PushSender) *RelationshipEventHandler {
	return &RelationshipEventHandler{userRepo: userRepo, sender: sender}
}

// HandleMessage processes one event from the notifications topic.
// Malformed payloads are logged and acknowledged; redelivering them would
// never succeed.
func (h *RelationshipEventHandler) HandleMessage(ctx context.Context, msg *kafka.Message) error {
	var event models.RelationshipEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("RelationshipEventHandler: dropping malformed event at offset %v: %v", msg.TopicPartition.Offset, err)
		return nil
	}

	recipientID, title, body, err := h.composeNotification(ctx, event)
	if err != nil {
		return err
	}
	if recipientID == "" {
		// Nothing to notify for this event type.
		return nil
	}

	if err := h.sender.Push(ctx, recipientID, title, body); err != nil {
		return fmt.Errorf("push to %s failed: %w", recipientID, err)
	}
	return nil
}

// composeNotification resolves the actor's display name and picks the
// notification text. Rejections are deliberately silent: the sender just
// sees the request disappear from their pending list.
func (h *RelationshipEventHandler) composeNotification(ctx context.Context, event models.RelationshipEvent) (recipientID, title, body string, err error) {
	actorName := event.ActorID
	info, lookupErr := h.userRepo.GetBasicInfoByID(ctx, event.ActorID)
	if lookupErr != nil {
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return "", "", "", fmt.Errorf("lookup actor %s: %w", event.ActorID, lookupErr)
		}
	} else if info.DisplayName != "" {
		actorName = info.DisplayName
	}

	switch event.Type {
	case models.EventRequested:
		return event.CounterpartID,
			"New friend request",
			fmt.Sprintf("%s wants to share diaries with you", actorName),
			nil
	case models.EventAccepted:
		return event.CounterpartID,
			"Friend request accepted",
			fmt.Sprintf("%s accepted your friend request", actorName),
			nil
	case models.EventRejected, models.EventRemoved:
		return "", "", "", nil
	default:
		log.Printf("RelationshipEventHandler: ignoring unknown event type %q", event.Type)
		return "", "", "", nil
	}
}
