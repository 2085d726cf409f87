package storage

import (
	"context"
	"errors"
	"time"

	"diarylink/internal/models"

	"gorm.io/gorm"
)

// ErrDuplicateActiveRequest is returned by Create when a pending request
// already exists for the pair, in either direction. The check is carried by
// the partial unique index on pair_id, so two opposite-direction creates
// racing can never both succeed.
var ErrDuplicateActiveRequest = errors.New("an active friend request already exists for this pair")

// RequestRepository defines the interface for friend request data operations.
// All lookups that concern "is there an active request between A and B" go
// through the canonical pair key, never through two directional queries.
type RequestRepository interface {
	Create(ctx context.Context, request *models.FriendRequest) error
	GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error)
	GetByPair(ctx context.Context, userA, userB string) (*models.FriendRequest, error)
	// Resolve is a compare-and-set: it moves the request from pending to the
	// given terminal status and reports whether this call won the transition.
	Resolve(ctx context.Context, requestID string, status models.FriendRequestStatus) (bool, error)
	ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error)
	DeletePendingByPair(ctx context.Context, pairID string) error
}

type gormRequestRepository struct {
	db *gorm.DB
}

func NewGormRequestRepository(db *gorm.DB) RequestRepository {
	return &gormRequestRepository{db: db}
}

func (r *gormRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	err := r.db.WithContext(ctx).Create(request).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateActiveRequest
	}
	return err
}

func (r *gormRequestRepository) GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).Where("id = ?", requestID).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// GetByPair returns the active request for the pair, if any.
// A missing row is not an error in this context.
func (r *gormRequestRepository) GetByPair(ctx context.Context, userA, userB string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("pair_id = ? AND status = ?", models.CanonicalPair(userA, userB), models.FriendRequestStatusPending).
		First(&request).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &request, nil
}

func (r *gormRequestRepository) Resolve(ctx context.Context, requestID string, status models.FriendRequestStatus) (bool, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.FriendRequest{}).
		Where("id = ? AND status = ?", requestID, models.FriendRequestStatusPending).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListPendingFor returns all active requests the user is a party to, sent or
// received. Callers filter by direction.
func (r *gormRequestRepository) ListPendingFor(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	var requests []models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("status = ?", models.FriendRequestStatusPending).
		Where("from_user_id = ? OR to_user_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&requests).Error
	return requests, err
}

// DeletePendingByPair removes any still-pending rows for the pair. Used as
// defensive cleanup when a friendship is removed; resolved rows are kept.
func (r *gormRequestRepository) DeletePendingByPair(ctx context.Context, pairID string) error {
	return r.db.WithContext(ctx).
		Where("pair_id = ? AND status = ?", pairID, models.FriendRequestStatusPending).
		Delete(&models.FriendRequest{}).Error
}
