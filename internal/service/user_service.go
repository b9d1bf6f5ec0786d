package service

import (
	"context"
	"fmt"
	"time"

	"diabetesrisk/internal/cache"
	"diabetesrisk/internal/model"
	"diabetesrisk/internal/repository"
)

const userCacheTTL = 5 * time.Minute

// UserService reads user profiles.
type UserService interface {
	GetUser(ctx context.Context, id uint) (*model.User, error)
}

type userService struct {
	repo  repository.UserRepository
	cache *cache.Client
}

// NewUserService builds a UserService with repository and cache.
func NewUserService(repo repository.UserRepository, cache *cache.Client) UserService {
	return &userService{repo: repo, cache: cache}
}

func userCacheKey(id uint) string {
	return fmt.Sprintf("user:%d", id)
}

// GetUser loads a user; users are immutable after registration so the
// cached copy never goes stale.
func (s *userService) GetUser(ctx context.Context, id uint) (*model.User, error) {
	var cached model.User
	if s.cache.GetJSON(ctx, userCacheKey(id), &cached) {
		return &cached, nil
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.cache.SetJSON(ctx, userCacheKey(id), user, userCacheTTL)
	return user, nil
}
