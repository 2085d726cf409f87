package services

import (
	"bytes"
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"diarylink/internal/models"
	"diarylink/internal/storage"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// captureDispatcher records dispatched events for assertions.
type captureDispatcher struct {
	mu     sync.Mutex
	events []models.RelationshipEvent
}

func (d *captureDispatcher) Dispatch(event models.RelationshipEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *captureDispatcher) Events() []models.RelationshipEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.RelationshipEvent(nil), d.events...)
}

// captureFeed records pair-changed nudges.
type captureFeed struct {
	mu    sync.Mutex
	pairs []string
}

func (f *captureFeed) PairChanged(userA, userB string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs = append(f.pairs, models.CanonicalPair(userA, userB))
}

func (f *captureFeed) Pairs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pairs...)
}

type serviceFixture struct {
	db         *gorm.DB
	svc        RelationshipService
	dispatcher *captureDispatcher
	feed       *captureFeed
}

func newServiceFixture(t *testing.T, userIDs ...string) *serviceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, storage.AutoMigrateTables(db))

	for _, id := range userIDs {
		require.NoError(t, db.Create(&models.User{ID: id, DisplayName: "User " + id}).Error)
	}

	dispatcher := &captureDispatcher{}
	feed := &captureFeed{}
	svc := NewRelationshipService(
		db,
		storage.NewGormUserRepository(db),
		storage.NewGormRequestRepository(db),
		storage.NewGormFriendshipRepository(db),
		dispatcher,
		feed,
	)
	return &serviceFixture{db: db, svc: svc, dispatcher: dispatcher, feed: feed}
}

func TestSendAcceptLifecycle(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.Equal(t, models.FriendRequestStatusPending, request.Status)

	// Pending lists show the request on the right side for each user.
	received, err := fx.svc.ListPendingReceived(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, request.ID, received[0].RequestID)
	require.Equal(t, "u1", received[0].FromUser.ID)

	sent, err := fx.svc.ListPendingSent(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, "u2", sent[0].ToUser.ID)

	require.NoError(t, fx.svc.AcceptRequest(ctx, request.ID, "u2"))

	// Both users see the friendship, pending lists are empty.
	for _, userID := range []string{"u1", "u2"} {
		friends, err := fx.svc.ListFriends(ctx, userID)
		require.NoError(t, err)
		require.Len(t, friends, 1)
		require.Equal(t, models.CanonicalPair("u1", "u2"), friends[0].PairID)

		snapshot, err := fx.svc.PendingSnapshot(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, snapshot.Requests)
	}

	events := fx.dispatcher.Events()
	require.Len(t, events, 2)
	require.Equal(t, models.EventRequested, events[0].Type)
	require.Equal(t, "u1", events[0].ActorID)
	require.Equal(t, models.EventAccepted, events[1].Type)
	require.Equal(t, "u2", events[1].ActorID)
	require.Equal(t, "u1", events[1].CounterpartID)

	require.Len(t, fx.feed.Pairs(), 2)
}

func TestRejectAllowsFreshRequestFromEitherSide(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, fx.svc.RejectRequest(ctx, request.ID, "u2"))

	// Pair is back to NONE; the former recipient can initiate.
	again, err := fx.svc.SendRequest(ctx, "u2", "u1")
	require.NoError(t, err)
	require.NotEqual(t, request.ID, again.ID)

	events := fx.dispatcher.Events()
	require.Len(t, events, 3)
	require.Equal(t, models.EventRejected, events[1].Type)
}

func TestSendRequestPreconditions(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	_, err := fx.svc.SendRequest(ctx, "u1", "u1")
	require.ErrorIs(t, err, ErrSelfRequest)

	_, err = fx.svc.SendRequest(ctx, "u1", "ghost")
	require.ErrorIs(t, err, ErrRecipientNotFound)

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)

	// Duplicate in the same direction and the inverse direction both
	// collide with the existing pending request.
	_, err = fx.svc.SendRequest(ctx, "u1", "u2")
	require.ErrorIs(t, err, ErrRequestExists)
	_, err = fx.svc.SendRequest(ctx, "u2", "u1")
	require.ErrorIs(t, err, ErrRequestExists)

	require.NoError(t, fx.svc.AcceptRequest(ctx, request.ID, "u2"))
	_, err = fx.svc.SendRequest(ctx, "u1", "u2")
	require.ErrorIs(t, err, ErrAlreadyFriends)

	// Failed sends emit nothing.
	require.Len(t, fx.dispatcher.Events(), 2)
}

func TestResolveAuthorization(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2", "u3")
	ctx := context.Background()

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)

	// Only the recipient accepts or rejects.
	require.ErrorIs(t, fx.svc.AcceptRequest(ctx, request.ID, "u1"), ErrNotAuthorized)
	require.ErrorIs(t, fx.svc.AcceptRequest(ctx, request.ID, "u3"), ErrNotAuthorized)
	require.ErrorIs(t, fx.svc.RejectRequest(ctx, request.ID, "u1"), ErrNotAuthorized)

	// Only the sender cancels.
	require.ErrorIs(t, fx.svc.CancelRequest(ctx, request.ID, "u2"), ErrNotAuthorized)

	require.ErrorIs(t, fx.svc.AcceptRequest(ctx, "no-such-request", "u2"), ErrRequestNotFound)

	// The request survived all the failed attempts.
	snapshot, err := fx.svc.PendingSnapshot(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, snapshot.Requests, 1)
}

func TestCancelBySender(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, fx.svc.CancelRequest(ctx, request.ID, "u1"))

	snapshot, err := fx.svc.PendingSnapshot(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, snapshot.Requests)

	// Cancelled requests are already resolved for any further action.
	require.ErrorIs(t, fx.svc.AcceptRequest(ctx, request.ID, "u2"), ErrAlreadyResolved)

	// Either side can start over.
	_, err = fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
}

func TestStaleAcceptAfterResolution(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, fx.svc.AcceptRequest(ctx, request.ID, "u2"))

	// Double-tap accept: stale but harmless, state already matches intent.
	require.ErrorIs(t, fx.svc.AcceptRequest(ctx, request.ID, "u2"), ErrAlreadyResolved)

	var count int64
	require.NoError(t, fx.db.Model(&models.Friendship{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRemoveFriendship(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2", "u3")
	ctx := context.Background()

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
	require.NoError(t, fx.svc.AcceptRequest(ctx, request.ID, "u2"))

	pairID := models.CanonicalPair("u1", "u2")

	require.ErrorIs(t, fx.svc.RemoveFriendship(ctx, pairID, "u3"), ErrNotAuthorized)
	require.ErrorIs(t, fx.svc.RemoveFriendship(ctx, models.CanonicalPair("u1", "u3"), "u1"), ErrFriendshipNotFound)

	// Either member may unfriend; here the original recipient does.
	require.NoError(t, fx.svc.RemoveFriendship(ctx, pairID, "u2"))

	friends, err := fx.svc.ListFriends(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, friends)

	// Removal loser semantics.
	require.ErrorIs(t, fx.svc.RemoveFriendship(ctx, pairID, "u1"), ErrFriendshipNotFound)

	// Pair is NONE again, a fresh request goes through.
	_, err = fx.svc.SendRequest(ctx, "u2", "u1")
	require.NoError(t, err)

	events := fx.dispatcher.Events()
	require.Equal(t, models.EventRemoved, events[2].Type)
	require.Equal(t, "u2", events[2].ActorID)
	require.Equal(t, "u1", events[2].CounterpartID)
}

func TestPendingSnapshotDirections(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2", "u3")
	ctx := context.Background()

	recv, err := fx.svc.SendRequest(ctx, "u2", "u1")
	require.NoError(t, err)
	sent, err := fx.svc.SendRequest(ctx, "u1", "u3")
	require.NoError(t, err)

	snapshot, err := fx.svc.PendingSnapshot(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "u1", snapshot.UserID)
	require.Len(t, snapshot.Requests, 2)

	byID := map[string]models.PendingEntry{}
	for _, entry := range snapshot.Requests {
		byID[entry.RequestID] = entry
	}
	require.Equal(t, models.PendingReceived, byID[recv.ID].Direction)
	require.Equal(t, "u2", byID[recv.ID].Counterpart.ID)
	require.Equal(t, models.PendingSent, byID[sent.ID].Direction)
	require.Equal(t, "u3", byID[sent.ID].Counterpart.ID)
}

func TestSendRequestRejectsAmbiguousIDs(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	// Ids carrying the pair separator would alias another pair's key.
	_, err := fx.svc.SendRequest(ctx, "u1", "u_2")
	require.ErrorIs(t, err, ErrInvalidUserID)
	_, err = fx.svc.SendRequest(ctx, "u_1", "u2")
	require.ErrorIs(t, err, ErrInvalidUserID)

	// Clean ids still pass.
	_, err = fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)
}

func TestSendRequestAbortsWhenFriendshipAppearsMidTransaction(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	// Replay the interleaving where an accept for the pair commits between
	// SendRequest's friendship pre-check and its insert: a gorm callback
	// materializes the friendship right before the pending row is written,
	// so the pre-check saw nothing. The re-check after the insert must
	// observe it and abort the whole transaction.
	injected := false
	err := fx.db.Callback().Create().Before("gorm:create").Register("race_friendship", func(tx *gorm.DB) {
		if injected || tx.Statement.Schema == nil || tx.Statement.Schema.Table != "friend_requests" {
			return
		}
		injected = true
		sess := tx.Session(&gorm.Session{NewDB: true})
		if err := sess.Create(models.NewFriendship("u1", "u2")).Error; err != nil {
			t.Errorf("materializing friendship: %v", err)
		}
	})
	require.NoError(t, err)

	_, err = fx.svc.SendRequest(ctx, "u1", "u2")
	require.ErrorIs(t, err, ErrAlreadyFriends)
	require.True(t, injected)

	// The losing send left nothing behind: no pending row survives next
	// to a friendship for the pair.
	var pending int64
	require.NoError(t, fx.db.Model(&models.FriendRequest{}).
		Where("status = ?", models.FriendRequestStatusPending).
		Count(&pending).Error)
	require.EqualValues(t, 0, pending)

	// No event or feed nudge either; the transition never committed.
	require.Empty(t, fx.dispatcher.Events())
	require.Empty(t, fx.feed.Pairs())
}

func TestPendingListLogsMissingDirectoryEntry(t *testing.T) {
	fx := newServiceFixture(t, "u1")
	ctx := context.Background()

	// A pending request from a user the directory has not synced yet.
	repo := storage.NewGormRequestRepository(fx.db)
	request := &models.FriendRequest{
		ID:         uuid.NewString(),
		PairID:     models.CanonicalPair("ghost", "u1"),
		FromUserID: "ghost",
		ToUserID:   "u1",
		Status:     models.FriendRequestStatusPending,
	}
	require.NoError(t, repo.Create(ctx, request))

	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	received, err := fx.svc.ListPendingReceived(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, received)

	// The skip leaves a trace naming the missing user and the request.
	require.Contains(t, buf.String(), "ghost")
	require.Contains(t, buf.String(), request.ID)
}

func TestConcurrentOppositeSendsOneWinner(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = fx.svc.SendRequest(ctx, "u1", "u2")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = fx.svc.SendRequest(ctx, "u2", "u1")
	}()
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, ErrRequestExists)
			conflicts++
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)

	var count int64
	require.NoError(t, fx.db.Model(&models.FriendRequest{}).
		Where("status = ?", models.FriendRequestStatusPending).
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestConcurrentAcceptAndRejectOneWinner(t *testing.T) {
	fx := newServiceFixture(t, "u1", "u2")
	ctx := context.Background()

	request, err := fx.svc.SendRequest(ctx, "u1", "u2")
	require.NoError(t, err)

	var acceptErr, rejectErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptErr = fx.svc.AcceptRequest(ctx, request.ID, "u2")
	}()
	go func() {
		defer wg.Done()
		rejectErr = fx.svc.RejectRequest(ctx, request.ID, "u2")
	}()
	wg.Wait()

	// Exactly one transition wins; the loser observes the resolution.
	if acceptErr == nil {
		require.ErrorIs(t, rejectErr, ErrAlreadyResolved)
	} else {
		require.ErrorIs(t, acceptErr, ErrAlreadyResolved)
		require.NoError(t, rejectErr)
	}

	var stored models.FriendRequest
	require.NoError(t, fx.db.Where("id = ?", request.ID).First(&stored).Error)

	exists, err := storage.NewGormFriendshipRepository(fx.db).Exists(ctx, "u1", "u2")
	require.NoError(t, err)
	if acceptErr == nil {
		require.Equal(t, models.FriendRequestStatusAccepted, stored.Status)
		require.True(t, exists)
	} else {
		require.Equal(t, models.FriendRequestStatusRejected, stored.Status)
		require.False(t, exists)
	}
}
