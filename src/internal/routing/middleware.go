package routing

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/casapps/caslinks/src/internal/database/models"
)

// ClassificationKey is the echo context key the classification is
// stored under for downstream handlers.
const ClassificationKey = "host_classification"

// Middleware classifies every request's Host header once at the edge
// and enforces the routing policy before any handler runs.
type Middleware struct {
	classifier *Classifier
	policy     *Policy
	db         *gorm.DB
}

// NewMiddleware creates the host routing middleware
func NewMiddleware(classifier *Classifier, policy *Policy, db *gorm.DB) *Middleware {
	return &Middleware{
		classifier: classifier,
		policy:     policy,
		db:         db,
	}
}

// ClassifyHost classifies the request host, stores the result in the
// request context, and applies the custom-domain policy. Platform and
// local-development requests pass through untouched.
func (m *Middleware) ClassifyHost() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cl, err := m.classifier.Classify(c.Request().Context(), c.Request().Host)
			if err != nil {
				// A lookup failure must never fall through to
				// platform routing.
				return echo.NewHTTPError(http.StatusServiceUnavailable, "host classification unavailable")
			}
			c.Set(ClassificationKey, cl)

			if cl.Kind == KindCustomDomain {
				pref, forceHTTPS := m.ownerPreference(cl)
				decision := m.policy.DecideCustomDomain(cl, c.Request(), pref, forceHTTPS)
				switch decision.Decision {
				case DecisionNotFound:
					return echo.NewHTTPError(http.StatusNotFound, "domain not found")
				case DecisionRedirect:
					return c.Redirect(decision.Code, decision.Location)
				}
			}

			return next(c)
		}
	}
}

// GetClassification returns the classification stored by ClassifyHost.
func GetClassification(c echo.Context) (Classification, bool) {
	cl, ok := c.Get(ClassificationKey).(Classification)
	return cl, ok
}

// ownerPreference loads the canonical-host preference of the domain
// owner's profile. Defaults apply when the profile is missing.
func (m *Middleware) ownerPreference(cl Classification) (models.CanonicalPreference, bool) {
	if !cl.Active() {
		return models.CanonicalAuto, true
	}

	var profile models.Profile
	if err := m.db.First(&profile, "user_id = ?", cl.OwnerID).Error; err != nil {
		return models.CanonicalAuto, true
	}
	return profile.CanonicalPreference, profile.ForceHTTPS
}
