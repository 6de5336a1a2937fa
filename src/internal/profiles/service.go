package profiles

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/caslinks/src/internal/database/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrLinkNotFound    = errors.New("link not found")
)

// Service handles profile business logic. Profiles are plain CRUD
// over the store; the interesting routing work happens elsewhere.
type Service struct {
	db  *gorm.DB
	cfg *viper.Viper
}

// NewService creates a new profile service
func NewService(db *gorm.DB, cfg *viper.Viper) *Service {
	return &Service{db: db, cfg: cfg}
}

// GetByUsername returns a published profile with its links for public
// serving.
func (s *Service) GetByUsername(username string) (*models.Profile, *models.User, error) {
	var user models.User
	if err := s.db.First(&user, "username = ? AND is_active = ?", username, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProfileNotFound
		}
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	profile, err := s.getByUserID(user.ID)
	if err != nil {
		return nil, nil, err
	}
	if !profile.Published {
		return nil, nil, ErrProfileNotFound
	}
	return profile, &user, nil
}

// GetByOwner returns a tenant's profile regardless of publish state.
func (s *Service) GetByOwner(userID uuid.UUID) (*models.Profile, error) {
	return s.getByUserID(userID)
}

// GetPublishedByOwner returns a published profile with its owning user,
// for serving on a custom domain resolved to that owner.
func (s *Service) GetPublishedByOwner(userID uuid.UUID) (*models.Profile, *models.User, error) {
	var user models.User
	if err := s.db.First(&user, "id = ? AND is_active = ?", userID, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrProfileNotFound
		}
		return nil, nil, fmt.Errorf("failed to load user: %w", err)
	}

	profile, err := s.getByUserID(userID)
	if err != nil {
		return nil, nil, err
	}
	if !profile.Published {
		return nil, nil, ErrProfileNotFound
	}
	return profile, &user, nil
}

func (s *Service) getByUserID(userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.
		Preload("Links", func(db *gorm.DB) *gorm.DB {
			return db.Where("enabled = ?", true).Order("position")
		}).
		First(&profile, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return &profile, nil
}

// UpdateProfileInput represents editable profile fields
type UpdateProfileInput struct {
	DisplayName         *string
	Bio                 *string
	AvatarURL           *string
	Theme               *string
	CanonicalPreference *models.CanonicalPreference
	ForceHTTPS          *bool
	Published           *bool
}

// Update applies partial updates to a tenant's profile, creating it on
// first write.
func (s *Service) Update(userID uuid.UUID, input UpdateProfileInput) (*models.Profile, error) {
	var profile models.Profile
	err := s.db.Where(models.Profile{UserID: userID}).FirstOrCreate(&profile).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	updates := map[string]interface{}{}
	if input.DisplayName != nil {
		updates["display_name"] = *input.DisplayName
	}
	if input.Bio != nil {
		updates["bio"] = *input.Bio
	}
	if input.AvatarURL != nil {
		updates["avatar_url"] = *input.AvatarURL
	}
	if input.Theme != nil {
		updates["theme"] = *input.Theme
	}
	if input.CanonicalPreference != nil {
		switch *input.CanonicalPreference {
		case models.CanonicalAuto, models.CanonicalWWW, models.CanonicalNonWWW:
		default:
			return nil, fmt.Errorf("invalid canonical preference: %s", *input.CanonicalPreference)
		}
		updates["canonical_preference"] = *input.CanonicalPreference
	}
	if input.ForceHTTPS != nil {
		updates["force_https"] = *input.ForceHTTPS
	}
	if input.Published != nil {
		updates["published"] = *input.Published
	}

	if len(updates) > 0 {
		if err := s.db.Model(&profile).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
	}
	return s.getByUserID(userID)
}

// AddLink appends a link block to a profile.
func (s *Service) AddLink(userID uuid.UUID, title, url string) (*models.ProfileLink, error) {
	profile, err := s.GetByOwner(userID)
	if err != nil {
		return nil, err
	}

	var maxPos int
	s.db.Model(&models.ProfileLink{}).
		Where("profile_id = ?", profile.ID).
		Select("COALESCE(MAX(position), -1)").
		Scan(&maxPos)

	link := &models.ProfileLink{
		ProfileID: profile.ID,
		Title:     title,
		URL:       url,
		Position:  maxPos + 1,
		Enabled:   true,
	}
	if err := s.db.Create(link).Error; err != nil {
		return nil, fmt.Errorf("failed to create link: %w", err)
	}
	return link, nil
}

// RemoveLink deletes a link block. Idempotent.
func (s *Service) RemoveLink(userID, linkID uuid.UUID) error {
	profile, err := s.GetByOwner(userID)
	if err != nil {
		return err
	}
	result := s.db.Where("id = ? AND profile_id = ?", linkID, profile.ID).Delete(&models.ProfileLink{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove link: %w", result.Error)
	}
	return nil
}
