package models

import "time"

// Tier is a named service level determining rate limits and alert caps.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// TierLimits holds per-tier admission parameters.
type TierLimits struct {
	RequestLimit    int
	Window          time.Duration
	MaxActiveAlerts int
}

var tierDefaults = map[Tier]TierLimits{
	TierFree:       {RequestLimit: 60, Window: time.Minute, MaxActiveAlerts: 5},
	TierPro:        {RequestLimit: 300, Window: time.Minute, MaxActiveAlerts: 50},
	TierEnterprise: {RequestLimit: 1200, Window: time.Minute, MaxActiveAlerts: 500},
}

// AnonymousLimits is the coarser default applied per network origin when
// no authenticated identity is present.
var AnonymousLimits = TierLimits{RequestLimit: 30, Window: time.Minute}

// AnonymousLimitsFor returns the anonymous budget with the requests per
// window overridden by configuration; perWindow <= 0 keeps the default.
func AnonymousLimitsFor(perWindow int) TierLimits {
	l := AnonymousLimits
	if perWindow > 0 {
		l.RequestLimit = perWindow
	}
	return l
}

// LimitsFor returns the limits for a tier, falling back to free.
func LimitsFor(tier Tier) TierLimits {
	if l, ok := tierDefaults[tier]; ok {
		return l
	}
	return tierDefaults[TierFree]
}
