package services

import (
	"context"
	"errors"
	"strings"

	"diarylink/internal/models"
	"diarylink/internal/storage"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrQueryTooShort = errors.New("search query must be at least 2 characters")
)

// DirectoryService exposes the read-only user directory: profile lookups for
// rendering and prefix search for finding people to befriend.
type DirectoryService interface {
	GetProfile(ctx context.Context, userID string) (*models.UserBasicInfo, error)
	SearchUsers(ctx context.Context, query, currentUserID string) ([]models.UserBasicInfo, error)
}

type directoryService struct {
	userRepo storage.UserRepository
}

// NewDirectoryService creates a new DirectoryService instance.
func NewDirectoryService(userRepo storage.UserRepository) DirectoryService {
	return &directoryService{userRepo: userRepo}
}

func (s *directoryService) GetProfile(ctx context.Context, userID string) (*models.UserBasicInfo, error) {
	info, err := s.userRepo.GetBasicInfoByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeErr(err)
	}
	return info, nil
}

func (s *directoryService) SearchUsers(ctx context.Context, query, currentUserID string) ([]models.UserBasicInfo, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, ErrQueryTooShort
	}

	users, err := s.userRepo.SearchUsers(ctx, query, currentUserID)
	if err != nil {
		return nil, storeErr(err)
	}

	results := make([]models.UserBasicInfo, 0, len(users))
	for i := range users {
		results = append(results, *users[i].BasicInfo())
	}
	return results, nil
}
