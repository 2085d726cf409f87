package storage

import (
	"context"
	"errors"

	"diarylink/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FriendshipRepository defines the interface for friendship data operations.
type FriendshipRepository interface {
	// Create is idempotent: inserting a friendship that already exists for
	// the pair is a no-op, not an error.
	Create(ctx context.Context, friendship *models.Friendship) error
	Exists(ctx context.Context, userA, userB string) (bool, error)
	GetByPairID(ctx context.Context, pairID string) (*models.Friendship, error)
	Remove(ctx context.Context, pairID string) (bool, error)
	ListFor(ctx context.Context, userID string) ([]models.Friendship, error)
}

type gormFriendshipRepository struct {
	db *gorm.DB
}

func NewGormFriendshipRepository(db *gorm.DB) FriendshipRepository {
	return &gormFriendshipRepository{db: db}
}

func (r *gormFriendshipRepository) Create(ctx context.Context, friendship *models.Friendship) error {
	// 使用 OnConflict 处理已存在好友关系的情况
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(friendship).Error
}

func (r *gormFriendshipRepository) Exists(ctx context.Context, userA, userB string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Friendship{}).
		Where("pair_id = ?", models.CanonicalPair(userA, userB)).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormFriendshipRepository) GetByPairID(ctx context.Context, pairID string) (*models.Friendship, error) {
	var friendship models.Friendship
	err := r.db.WithContext(ctx).Where("pair_id = ?", pairID).First(&friendship).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &friendship, nil
}

// Remove deletes the friendship and reports whether a row was actually
// removed, so concurrent unfriend calls resolve to one winner.
func (r *gormFriendshipRepository) Remove(ctx context.Context, pairID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("pair_id = ?", pairID).Delete(&models.Friendship{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormFriendshipRepository) ListFor(ctx context.Context, userID string) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := r.db.WithContext(ctx).
		Where("user_id1 = ? OR user_id2 = ?", userID, userID).
		Order("created_at DESC").
		Find(&friendships).Error
	return friendships, err
}
