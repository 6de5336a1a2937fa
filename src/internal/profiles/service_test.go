package profiles

import (
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/casapps/caslinks/src/internal/database/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *models.User) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.GetAllModels()...))

	user := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)

	return NewService(db, viper.New()), db, user
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestUpdateCreatesProfileOnFirstWrite(t *testing.T) {
	service, _, user := newTestService(t)

	profile, err := service.Update(user.ID, UpdateProfileInput{
		DisplayName: strPtr("Alice"),
		Bio:         strPtr("links and things"),
		Published:   boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, "links and things", profile.Bio)
	assert.True(t, profile.Published)
}

func TestUpdatePartialLeavesOtherFields(t *testing.T) {
	service, _, user := newTestService(t)

	_, err := service.Update(user.ID, UpdateProfileInput{DisplayName: strPtr("Alice"), Published: boolPtr(true)})
	require.NoError(t, err)

	profile, err := service.Update(user.ID, UpdateProfileInput{Bio: strPtr("updated bio")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, "updated bio", profile.Bio)
	assert.True(t, profile.Published)
}

func TestUpdateRejectsBadCanonicalPreference(t *testing.T) {
	service, _, user := newTestService(t)

	bad := models.CanonicalPreference("sideways")
	_, err := service.Update(user.ID, UpdateProfileInput{CanonicalPreference: &bad})
	assert.Error(t, err)
}

func TestGetByUsernamePublishedOnly(t *testing.T) {
	service, _, user := newTestService(t)

	_, err := service.Update(user.ID, UpdateProfileInput{DisplayName: strPtr("Alice")})
	require.NoError(t, err)

	// Unpublished profiles are invisible publicly.
	_, _, err = service.GetByUsername("alice")
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = service.Update(user.ID, UpdateProfileInput{Published: boolPtr(true)})
	require.NoError(t, err)

	profile, owner, err := service.GetByUsername("alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)
	assert.Equal(t, user.ID, owner.ID)

	_, _, err = service.GetByUsername("nobody")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestGetByUsernameInactiveUser(t *testing.T) {
	service, db, user := newTestService(t)

	_, err := service.Update(user.ID, UpdateProfileInput{Published: boolPtr(true)})
	require.NoError(t, err)

	require.NoError(t, db.Model(user).Update("is_active", false).Error)

	_, _, err = service.GetByUsername("alice")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestLinksOrderingAndRemoval(t *testing.T) {
	service, db, user := newTestService(t)

	_, err := service.Update(user.ID, UpdateProfileInput{Published: boolPtr(true)})
	require.NoError(t, err)

	first, err := service.AddLink(user.ID, "Blog", "https://blog.example.com")
	require.NoError(t, err)
	second, err := service.AddLink(user.ID, "Shop", "https://shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, first.Position)
	assert.Equal(t, 1, second.Position)

	// Disabled links are filtered from reads.
	third, err := service.AddLink(user.ID, "Hidden", "https://hidden.example.com")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.ProfileLink{}).Where("id = ?", third.ID).Update("enabled", false).Error)

	profile, err := service.GetByOwner(user.ID)
	require.NoError(t, err)
	require.Len(t, profile.Links, 2)
	assert.Equal(t, "Blog", profile.Links[0].Title)
	assert.Equal(t, "Shop", profile.Links[1].Title)

	require.NoError(t, service.RemoveLink(user.ID, first.ID))
	// Idempotent.
	require.NoError(t, service.RemoveLink(user.ID, first.ID))
	require.NoError(t, service.RemoveLink(user.ID, uuid.New()))

	profile, err = service.GetByOwner(user.ID)
	require.NoError(t, err)
	require.Len(t, profile.Links, 1)
	assert.Equal(t, "Shop", profile.Links[0].Title)
}

func TestPublicProfileProjection(t *testing.T) {
	service, _, user := newTestService(t)

	_, err := service.Update(user.ID, UpdateProfileInput{
		DisplayName: strPtr("Alice"),
		Published:   boolPtr(true),
	})
	require.NoError(t, err)
	_, err = service.AddLink(user.ID, "Blog", "https://blog.example.com")
	require.NoError(t, err)

	profile, owner, err := service.GetByUsername("alice")
	require.NoError(t, err)

	view := NewPublicProfile(profile, owner.Username)
	assert.Equal(t, "alice", view.Username)
	assert.Equal(t, "Alice", view.DisplayName)
	require.Len(t, view.Links, 1)
	assert.Equal(t, "https://blog.example.com", view.Links[0].URL)
}
