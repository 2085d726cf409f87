package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"diarylink/internal/models"
	"diarylink/internal/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSelfRequest        = errors.New("cannot send a friend request to yourself")
	ErrInvalidUserID      = errors.New("user id contains reserved characters")
	ErrRecipientNotFound  = errors.New("recipient user does not exist")
	ErrAlreadyFriends     = errors.New("users are already friends")
	ErrRequestExists      = errors.New("an active friend request already exists for this pair")
	ErrRequestNotFound    = errors.New("friend request not found")
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrNotAuthorized      = errors.New("acting user is not a party to this request or friendship")
	ErrAlreadyResolved    = errors.New("friend request has already been resolved")
	ErrStoreUnavailable   = errors.New("relationship store unavailable")
)

// EventDispatcher receives one event per committed transition. Dispatch is
// fire-and-forget: implementations must not block the caller on delivery,
// and delivery failure never affects relationship state.
type EventDispatcher interface {
	Dispatch(event models.RelationshipEvent)
}

// PendingFeed is nudged after every committed transition so connected
// clients of both members get a fresh pending-list snapshot. Like event
// dispatch, it is fire-and-forget.
type PendingFeed interface {
	PairChanged(userA, userB string)
}

// RelationshipService is the only component that mutates request and
// friendship state. Every mutating operation runs as one transaction keyed
// by the canonical pair, so operations on the same pair are linearized
// against each other while unrelated pairs proceed without contention.
type RelationshipService interface {
	SendRequest(ctx context.Context, fromUserID, toUserID string) (*models.FriendRequest, error)
	AcceptRequest(ctx context.Context, requestID, actingUserID string) error
	RejectRequest(ctx context.Context, requestID, actingUserID string) error
	CancelRequest(ctx context.Context, requestID, actingUserID string) error
	RemoveFriendship(ctx context.Context, pairID, actingUserID string) error

	ListFriends(ctx context.Context, userID string) ([]models.FriendEntry, error)
	ListPendingReceived(ctx context.Context, userID string) ([]models.ReceivedRequest, error)
	ListPendingSent(ctx context.Context, userID string) ([]models.SentRequest, error)
	PendingSnapshot(ctx context.Context, userID string) (*models.PendingSnapshot, error)
}

type relationshipService struct {
	db             *gorm.DB // for per-pair transactions
	userRepo       storage.UserRepository
	requestRepo    storage.RequestRepository
	friendshipRepo storage.FriendshipRepository
	dispatcher     EventDispatcher
	feed           PendingFeed
}

// NewRelationshipService creates a new RelationshipService instance.
func NewRelationshipService(
	db *gorm.DB,
	userRepo storage.UserRepository,
	requestRepo storage.RequestRepository,
	friendshipRepo storage.FriendshipRepository,
	dispatcher EventDispatcher,
	feed PendingFeed,
) RelationshipService {
	return &relationshipService{
		db:             db,
		userRepo:       userRepo,
		requestRepo:    requestRepo,
		friendshipRepo: friendshipRepo,
		dispatcher:     dispatcher,
		feed:           feed,
	}
}

// storeErr wraps unexpected persistence failures so callers can match a
// single error kind. Business preconditions keep their own sentinels.
func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// emit publishes the event and nudges the live feed for both members.
// Both paths are non-blocking; state is already committed by the time this runs.
func (s *relationshipService) emit(eventType models.RelationshipEventType, actorID, counterpartID string) {
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(models.RelationshipEvent{
			Type:          eventType,
			ActorID:       actorID,
			CounterpartID: counterpartID,
			Timestamp:     time.Now(),
		})
	}
	if s.feed != nil {
		s.feed.PairChanged(actorID, counterpartID)
	}
}

// SendRequest creates a pending request for the pair. The existence checks
// and the insert run inside one transaction, and the partial unique index on
// the pair key backstops it: two opposite-direction sends racing can never
// both succeed.
func (s *relationshipService) SendRequest(ctx context.Context, fromUserID, toUserID string) (*models.FriendRequest, error) {
	if fromUserID == toUserID {
		return nil, ErrSelfRequest
	}
	// Ids holding the pair separator would make the canonical key
	// ambiguous, so they never enter the request tables.
	if !models.ValidPairMember(fromUserID) || !models.ValidPairMember(toUserID) {
		return nil, ErrInvalidUserID
	}

	request := &models.FriendRequest{
		ID:         uuid.NewString(),
		PairID:     models.CanonicalPair(fromUserID, toUserID),
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Status:     models.FriendRequestStatusPending,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txUserRepo := storage.NewGormUserRepository(tx)
		txRequestRepo := storage.NewGormRequestRepository(tx)
		txFriendshipRepo := storage.NewGormFriendshipRepository(tx)

		if _, err := txUserRepo.GetByID(ctx, toUserID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecipientNotFound
			}
			return storeErr(err)
		}

		areFriends, err := txFriendshipRepo.Exists(ctx, fromUserID, toUserID)
		if err != nil {
			return storeErr(err)
		}
		if areFriends {
			return ErrAlreadyFriends
		}

		if err := txRequestRepo.Create(ctx, request); err != nil {
			if errors.Is(err, storage.ErrDuplicateActiveRequest) {
				return ErrRequestExists
			}
			return storeErr(err)
		}

		// The friendship pre-check above holds no lock, so under READ
		// COMMITTED an accept for this pair can commit between that read
		// and the insert. The partial unique index admits the insert only
		// once the prior request has left pending, which orders this
		// transaction after such a commit; this second read then sees the
		// new friendship and aborts the send.
		areFriends, err = txFriendshipRepo.Exists(ctx, fromUserID, toUserID)
		if err != nil {
			return storeErr(err)
		}
		if areFriends {
			return ErrAlreadyFriends
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.emit(models.EventRequested, fromUserID, toUserID)
	return request, nil
}

// AcceptRequest resolves the pending request and creates the friendship in
// the same transaction. Only the recipient may accept. A stale accept on an
// already-resolved request returns ErrAlreadyResolved; when the pair is
// already FRIENDS that is a benign idempotent outcome — the end state
// matches the caller's intent and exactly one friendship row exists.
func (s *relationshipService) AcceptRequest(ctx context.Context, requestID, actingUserID string) error {
	var fromUserID, toUserID string

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRequestRepo := storage.NewGormRequestRepository(tx)
		txFriendshipRepo := storage.NewGormFriendshipRepository(tx)

		request, err := txRequestRepo.GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return storeErr(err)
		}
		if request.ToUserID != actingUserID {
			return ErrNotAuthorized
		}
		if request.Status.Resolved() {
			return ErrAlreadyResolved
		}

		// The guarded update is the compare-and-set: of all transitions
		// racing on this request, exactly one sees RowsAffected == 1.
		won, err := txRequestRepo.Resolve(ctx, requestID, models.FriendRequestStatusAccepted)
		if err != nil {
			return storeErr(err)
		}
		if !won {
			return ErrAlreadyResolved
		}

		if err := txFriendshipRepo.Create(ctx, models.NewFriendship(request.FromUserID, request.ToUserID)); err != nil {
			return storeErr(err)
		}

		fromUserID, toUserID = request.FromUserID, request.ToUserID
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.emit(models.EventAccepted, toUserID, fromUserID)
	return nil
}

// RejectRequest resolves the pending request without creating a friendship.
// Only the recipient may reject. The pair returns to NONE and either party
// may immediately send a fresh request.
func (s *relationshipService) RejectRequest(ctx context.Context, requestID, actingUserID string) error {
	return s.resolveTerminal(ctx, requestID, actingUserID, models.FriendRequestStatusRejected)
}

// CancelRequest is the sender-side twin of RejectRequest.
func (s *relationshipService) CancelRequest(ctx context.Context, requestID, actingUserID string) error {
	return s.resolveTerminal(ctx, requestID, actingUserID, models.FriendRequestStatusCancelled)
}

func (s *relationshipService) resolveTerminal(ctx context.Context, requestID, actingUserID string, status models.FriendRequestStatus) error {
	var counterpartID string

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRequestRepo := storage.NewGormRequestRepository(tx)

		request, err := txRequestRepo.GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return storeErr(err)
		}

		switch status {
		case models.FriendRequestStatusRejected:
			if request.ToUserID != actingUserID {
				return ErrNotAuthorized
			}
			counterpartID = request.FromUserID
		case models.FriendRequestStatusCancelled:
			if request.FromUserID != actingUserID {
				return ErrNotAuthorized
			}
			counterpartID = request.ToUserID
		default:
			return fmt.Errorf("unsupported terminal status %q", status)
		}

		if request.Status.Resolved() {
			return ErrAlreadyResolved
		}

		won, err := txRequestRepo.Resolve(ctx, requestID, status)
		if err != nil {
			return storeErr(err)
		}
		if !won {
			return ErrAlreadyResolved
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.emit(models.EventRejected, actingUserID, counterpartID)
	return nil
}

// RemoveFriendship deletes the friendship and purges any still-pending
// request rows for the pair. Either member may unfriend.
func (s *relationshipService) RemoveFriendship(ctx context.Context, pairID, actingUserID string) error {
	var counterpartID string

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRequestRepo := storage.NewGormRequestRepository(tx)
		txFriendshipRepo := storage.NewGormFriendshipRepository(tx)

		friendship, err := txFriendshipRepo.GetByPairID(ctx, pairID)
		if err != nil {
			return storeErr(err)
		}
		if friendship == nil {
			return ErrFriendshipNotFound
		}
		if !friendship.HasMember(actingUserID) {
			return ErrNotAuthorized
		}

		removed, err := txFriendshipRepo.Remove(ctx, pairID)
		if err != nil {
			return storeErr(err)
		}
		if !removed {
			// Lost a race against a concurrent unfriend.
			return ErrFriendshipNotFound
		}

		// Defensive cleanup: there should be no pending row while FRIENDS,
		// but a stale one must not survive the friendship.
		if err := txRequestRepo.DeletePendingByPair(ctx, pairID); err != nil {
			return storeErr(err)
		}

		counterpartID = friendship.OtherMember(actingUserID)
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.emit(models.EventRemoved, actingUserID, counterpartID)
	return nil
}

// ListFriends returns the user's friendships enriched with counterpart info.
func (s *relationshipService) ListFriends(ctx context.Context, userID string) ([]models.FriendEntry, error) {
	friendships, err := s.friendshipRepo.ListFor(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}

	counterpartIDs := make([]string, 0, len(friendships))
	for i := range friendships {
		counterpartIDs = append(counterpartIDs, friendships[i].OtherMember(userID))
	}

	infos, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, storeErr(err)
	}

	entries := make([]models.FriendEntry, 0, len(friendships))
	for i := range friendships {
		counterpartID := friendships[i].OtherMember(userID)
		info, ok := infos[counterpartID]
		if !ok {
			// Directory projection lagging behind; skip rather than render a hole.
			log.Printf("ListFriends: no directory entry for user %s (pair %s)", counterpartID, friendships[i].PairID)
			continue
		}
		entries = append(entries, models.FriendEntry{
			PairID:    friendships[i].PairID,
			Friend:    info,
			CreatedAt: friendships[i].CreatedAt,
		})
	}
	return entries, nil
}

// ListPendingReceived returns active requests addressed to the user.
func (s *relationshipService) ListPendingReceived(ctx context.Context, userID string) ([]models.ReceivedRequest, error) {
	requests, infos, err := s.pendingWithInfos(ctx, userID)
	if err != nil {
		return nil, err
	}

	received := make([]models.ReceivedRequest, 0, len(requests))
	for i := range requests {
		if requests[i].ToUserID != userID {
			continue
		}
		info, ok := infos[requests[i].FromUserID]
		if !ok {
			continue
		}
		received = append(received, models.ReceivedRequest{
			RequestID: requests[i].ID,
			FromUser:  info,
			CreatedAt: requests[i].CreatedAt,
		})
	}
	return received, nil
}

// ListPendingSent returns active requests the user initiated.
func (s *relationshipService) ListPendingSent(ctx context.Context, userID string) ([]models.SentRequest, error) {
	requests, infos, err := s.pendingWithInfos(ctx, userID)
	if err != nil {
		return nil, err
	}

	sent := make([]models.SentRequest, 0, len(requests))
	for i := range requests {
		if requests[i].FromUserID != userID {
			continue
		}
		info, ok := infos[requests[i].ToUserID]
		if !ok {
			continue
		}
		sent = append(sent, models.SentRequest{
			RequestID: requests[i].ID,
			ToUser:    info,
			CreatedAt: requests[i].CreatedAt,
		})
	}
	return sent, nil
}

// PendingSnapshot builds the complete current pending list for the user,
// both directions. This is what the live feed delivers on every change.
func (s *relationshipService) PendingSnapshot(ctx context.Context, userID string) (*models.PendingSnapshot, error) {
	requests, infos, err := s.pendingWithInfos(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.PendingSnapshot{
		UserID:      userID,
		Requests:    make([]models.PendingEntry, 0, len(requests)),
		GeneratedAt: time.Now(),
	}
	for i := range requests {
		direction := models.PendingReceived
		counterpartID := requests[i].FromUserID
		if requests[i].FromUserID == userID {
			direction = models.PendingSent
			counterpartID = requests[i].ToUserID
		}
		info, ok := infos[counterpartID]
		if !ok {
			continue
		}
		snapshot.Requests = append(snapshot.Requests, models.PendingEntry{
			RequestID:   requests[i].ID,
			Direction:   direction,
			Counterpart: info,
			CreatedAt:   requests[i].CreatedAt,
		})
	}
	return snapshot, nil
}

func (s *relationshipService) pendingWithInfos(ctx context.Context, userID string) ([]models.FriendRequest, map[string]*models.UserBasicInfo, error) {
	requests, err := s.requestRepo.ListPendingFor(ctx, userID)
	if err != nil {
		return nil, nil, storeErr(err)
	}

	counterpartIDs := make([]string, 0, len(requests))
	for i := range requests {
		if requests[i].FromUserID == userID {
			counterpartIDs = append(counterpartIDs, requests[i].ToUserID)
		} else {
			counterpartIDs = append(counterpartIDs, requests[i].FromUserID)
		}
	}

	infos, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, counterpartIDs)
	if err != nil {
		return nil, nil, storeErr(err)
	}

	// Callers drop entries whose counterpart is missing from the
	// directory; leave a trace so a lagging projection is visible.
	for i, counterpartID := range counterpartIDs {
		if _, ok := infos[counterpartID]; !ok {
			log.Printf("pending list: no directory entry for user %s (request %s)", counterpartID, requests[i].ID)
		}
	}
	return requests, infos, nil
}
