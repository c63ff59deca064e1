package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rental-service/internal/models"
	"rental-service/internal/payments"
	"rental-service/internal/redisclient"
	"rental-service/internal/store"
	"rental-service/internal/util"

	"go.uber.org/zap"
)

const knownProfileTTL = time.Hour

// ProfileService provisions and edits user profiles
type ProfileService struct {
	store  *store.Store
	redis  *redisclient.Client
	logger *zap.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(store *store.Store, redis *redisclient.Client) *ProfileService {
	return &ProfileService{
		store:  store,
		redis:  redis,
		logger: util.GetLogger(),
	}
}

// UpdateProfileRequest holds the editable profile fields
type UpdateProfileRequest struct {
	FullName  string `json:"full_name" binding:"max=120"`
	Phone     string `json:"phone" binding:"omitempty,msisdn"`
	AvatarURL string `json:"avatar_url" binding:"omitempty,url,max=500"`
}

// EnsureProfile creates the profile of an authenticated subject on first
// sight. Known subjects are remembered in redis to skip the insert.
func (s *ProfileService) EnsureProfile(ctx context.Context, userID, email string) error {
	key := "profile:" + userID
	fresh, err := s.redis.MarkOnce(ctx, key, knownProfileTTL)
	if err != nil {
		s.logger.Warn("Profile mark failed, falling back to database", zap.Error(err))
		fresh = true
	}
	if !fresh {
		return nil
	}

	if err := s.store.EnsureProfile(ctx, userID, email); err != nil {
		if cerr := s.redis.ClearMark(ctx, key); cerr != nil {
			s.logger.Warn("Failed to clear profile mark", zap.Error(cerr))
		}
		return fmt.Errorf("failed to provision profile: %w", err)
	}
	return nil
}

// GetProfile returns a profile by ID
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.GetProfile", "user_id", userID)
	defer span.End()

	p, err := s.store.GetProfile(ctx, userID)
	return p, util.RecordError(span, err)
}

// UpdateProfile edits the caller's profile
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, req *UpdateProfileRequest) (*models.Profile, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.UpdateProfile", "user_id", userID)
	defer span.End()

	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, util.RecordError(span, err)
	}

	p.FullName = strings.TrimSpace(req.FullName)
	p.AvatarURL = strings.TrimSpace(req.AvatarURL)
	p.Phone = ""
	if req.Phone != "" {
		if p.Phone, err = payments.NormalizePhone(req.Phone); err != nil {
			return nil, err
		}
	}

	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, util.RecordError(span, fmt.Errorf("failed to update profile: %w", err))
	}
	return p, nil
}

// IsAdmin reports whether the user has the admin role
func (s *ProfileService) IsAdmin(ctx context.Context, userID string) (bool, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.Role == models.RoleAdmin, nil
}
