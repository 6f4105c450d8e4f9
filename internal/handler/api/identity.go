package api

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Zentex1337/crypto-tracker-api/internal/domain/models"
)

const (
	headerUserID = "X-User-ID"
	headerTier   = "X-User-Tier"
)

// Identity is the resolved caller of a request. Authenticated callers
// are keyed by user id, anonymous ones by network address.
type Identity struct {
	Key       string
	UserID    string
	Tier      models.Tier
	Anonymous bool
}

func resolveIdentity(c echo.Context) Identity {
	uid := c.Request().Header.Get(headerUserID)
	if uid == "" {
		return Identity{Key: "anon:" + c.RealIP(), Anonymous: true}
	}
	tier := models.Tier(c.Request().Header.Get(headerTier))
	return Identity{Key: "user:" + uid, UserID: uid, Tier: tier}
}

// budget returns the request budget that applies to this identity.
// Anonymous callers get the configured anonymous budget.
func (id Identity) budget(anon models.TierLimits) (limit int, window time.Duration) {
	if id.Anonymous {
		return anon.RequestLimit, anon.Window
	}
	limits := models.LimitsFor(id.Tier)
	return limits.RequestLimit, limits.Window
}
