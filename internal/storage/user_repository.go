package storage

import (
	"context"

	"diarylink/internal/models"

	"gorm.io/gorm"
)

// UserRepository is the read-only user directory. Account creation and
// mutation belong to the hosted auth platform; this service only looks
// users up and searches them by name/email prefix.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetBasicInfoByID(ctx context.Context, id string) (*models.UserBasicInfo, error)
	GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []string) (map[string]*models.UserBasicInfo, error)
	SearchUsers(ctx context.Context, query string, excludeUserID string) ([]models.User, error)
}

type gormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) GetBasicInfoByID(ctx context.Context, id string) (*models.UserBasicInfo, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.BasicInfo(), nil
}

// GetMultipleBasicInfoByIDs returns basic info keyed by user id. Ids with no
// directory row are simply absent from the map.
func (r *gormUserRepository) GetMultipleBasicInfoByIDs(ctx context.Context, userIDs []string) (map[string]*models.UserBasicInfo, error) {
	result := make(map[string]*models.UserBasicInfo, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}

	var users []models.User
	err := r.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&users).Error
	if err != nil {
		return nil, err
	}

	for i := range users {
		result[users[i].ID] = users[i].BasicInfo()
	}
	return result, nil
}

// SearchUsers performs a prefix match on display name or email, excluding
// the calling user from the results.
func (r *gormUserRepository) SearchUsers(ctx context.Context, query string, excludeUserID string) ([]models.User, error) {
	var users []models.User
	pattern := query + "%"
	err := r.db.WithContext(ctx).
		Where("display_name LIKE ? OR email LIKE ?", pattern, pattern).
		Where("id <> ?", excludeUserID).
		Order("display_name").
		Limit(20).
		Find(&users).Error
	return users, err
}
