package profiles

import (
	"github.com/casapps/caslinks/src/internal/database/models"
)

// PublicProfile is the serving shape of a published profile. It never
// carries tenant account data beyond the username.
type PublicProfile struct {
	Username    string       `json:"username"`
	DisplayName string       `json:"display_name"`
	Bio         string       `json:"bio,omitempty"`
	AvatarURL   string       `json:"avatar_url,omitempty"`
	Theme       string       `json:"theme,omitempty"`
	Links       []PublicLink `json:"links"`
}

// PublicLink is one link block on a served profile.
type PublicLink struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NewPublicProfile projects a stored profile into its serving shape.
func NewPublicProfile(p *models.Profile, username string) PublicProfile {
	out := PublicProfile{
		Username:    username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		AvatarURL:   p.AvatarURL,
		Theme:       p.Theme,
		Links:       make([]PublicLink, 0, len(p.Links)),
	}
	for _, link := range p.Links {
		out.Links = append(out.Links, PublicLink{Title: link.Title, URL: link.URL})
	}
	return out
}
